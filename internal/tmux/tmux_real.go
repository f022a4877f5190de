//go:build !unittest

package tmux

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RealController is the production implementation that calls the real tmux
// binary.
type RealController struct{}

func (RealController) ListSessions() ([]Session, error) {
	cmd := exec.Command("tmux", "list-sessions", "-F",
		"#{session_name}"+fieldSep+"#{session_attached}")
	out, err := cmd.CombinedOutput()
	if err != nil {
		// No server running means no sessions, not a failure.
		if strings.Contains(string(out), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux: list sessions: %s: %w", strings.TrimSpace(string(out)), err)
	}

	var sessions []Session
	for _, line := range splitLines(string(out)) {
		name, attached, err := parseSessionLine(line)
		if err != nil {
			return nil, err
		}
		windows, err := listWindows(name)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, Session{Name: name, Attached: attached, Windows: windows})
	}
	return sessions, nil
}

func listWindows(session string) ([]Window, error) {
	cmd := exec.Command("tmux", "list-windows", "-t", session, "-F",
		"#{window_index}"+fieldSep+"#{window_name}"+fieldSep+"#{window_active}")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("tmux: list windows in %q: %s: %w", session, strings.TrimSpace(string(out)), err)
	}

	var windows []Window
	for _, line := range splitLines(string(out)) {
		w, err := parseWindowLine(line)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (RealController) SessionExists(name string) bool {
	cmd := exec.Command("tmux", "has-session", "-t", name)
	return cmd.Run() == nil
}

func (RealController) CreateSession(name string) error {
	cmd := exec.Command("tmux", "new-session", "-d", "-s", name, "-x", "200", "-y", "50")
	// Unset TMUX so this works when invoked from inside an existing tmux session.
	cmd.Env = envWithoutTMUX()
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux: create session %q: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealController) CreateWindow(session, name string) error {
	cmd := exec.Command("tmux", "new-window", "-t", session, "-n", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux: create window %q in %q: %s: %w", name, session, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealController) RenameWindow(session string, window int, name string) error {
	cmd := exec.Command("tmux", "rename-window", "-t", Target(session, window), name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux: rename window %s: %s: %w", Target(session, window), strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (RealController) CaptureWindow(session string, window, maxLines int) (string, error) {
	target := Target(session, window)
	cmd := exec.Command("tmux", "capture-pane", "-t", target, "-p")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux: capture %s: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return tailLines(string(out), maxLines), nil
}

func (RealController) SendKeys(session string, window int, text string, submit bool) error {
	target := Target(session, window)
	args := []string{"send-keys", "-t", target, text}
	if submit {
		args = append(args, "Enter")
	}
	cmd := exec.Command("tmux", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux: send keys to %s: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// envWithoutTMUX returns the current environment with the TMUX variable
// removed, allowing tmux new-session to work when called from inside an
// existing session.
func envWithoutTMUX() []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "TMUX=") {
			env = append(env, e)
		}
	}
	return env
}

func splitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
