//go:build unittest

package tmux

// RealController is a no-op stub used during unit testing (build tag:
// unittest). The real implementation is in tmux_real.go.
type RealController struct{}

func (RealController) ListSessions() ([]Session, error)            { return nil, nil }
func (RealController) SessionExists(name string) bool              { return false }
func (RealController) CreateSession(name string) error             { return nil }
func (RealController) CreateWindow(session, name string) error     { return nil }
func (RealController) RenameWindow(session string, window int, name string) error {
	return nil
}
func (RealController) CaptureWindow(session string, window, maxLines int) (string, error) {
	return "", nil
}
func (RealController) SendKeys(session string, window int, text string, submit bool) error {
	return nil
}
