// Package tmux wraps the tmux binary behind a Controller interface so the
// gateway and CLI can be tested without a running multiplexer.
package tmux

import (
	"fmt"
	"strconv"
	"strings"
)

// Window describes one window inside a session.
type Window struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Session describes one tmux session and its windows.
type Session struct {
	Name     string   `json:"name"`
	Attached bool     `json:"attached"`
	Windows  []Window `json:"windows"`
}

// Controller abstracts tmux operations for testability.
type Controller interface {
	ListSessions() ([]Session, error)
	SessionExists(name string) bool
	CreateSession(name string) error
	CreateWindow(session, name string) error
	RenameWindow(session string, window int, name string) error
	CaptureWindow(session string, window, maxLines int) (string, error)
	// SendKeys types text into a window. Enter is pressed only when submit
	// is true.
	SendKeys(session string, window int, text string, submit bool) error
}

// DefaultController is the controller used by the CLI. Set to
// RealController{} in tmux_real.go (excluded from test builds via build tag).
var DefaultController Controller = RealController{}

// Target formats a session:window tmux target.
func Target(session string, window int) string {
	return fmt.Sprintf("%s:%d", session, window)
}

// AttachCommand returns the shell command a user runs to attach to a
// session. The server reports this instead of attaching itself; attach takes
// over a terminal and cannot be performed on a client's behalf.
func AttachCommand(session string) string {
	return "tmux attach-session -t " + session
}

// sessions are listed with list-sessions -F using this field separator.
const fieldSep = "\x1f"

// parseSessionLine parses "name<sep>attached" from list-sessions output.
func parseSessionLine(line string) (name string, attached bool, err error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 2 {
		return "", false, fmt.Errorf("tmux: malformed session line %q", line)
	}
	return parts[0], parts[1] == "1", nil
}

// parseWindowLine parses "index<sep>name<sep>active" from list-windows
// output.
func parseWindowLine(line string) (Window, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 3 {
		return Window{}, fmt.Errorf("tmux: malformed window line %q", line)
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("tmux: window index in %q: %w", line, err)
	}
	return Window{Index: index, Name: parts[1], Active: parts[2] == "1"}, nil
}

// tailLines returns at most n trailing lines of text.
func tailLines(text string, n int) string {
	if n <= 0 {
		return text
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
