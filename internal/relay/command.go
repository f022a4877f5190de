package relay

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandAdapter runs a shell command template for each event, and shows a
// tmux status-line message when running inside tmux.
type CommandAdapter struct {
	command string
	// test hooks
	runCommand func(ctx context.Context, cmdStr string) ([]byte, error)
	inTmux     func() bool
}

// NewCommandAdapter creates a CommandAdapter for the given shell template.
// Placeholders: {{.ID}}, {{.From}}, {{.To}}, {{.Type}}, {{.Priority}}.
func NewCommandAdapter(command string) *CommandAdapter {
	return &CommandAdapter{
		command: command,
		runCommand: func(ctx context.Context, cmdStr string) ([]byte, error) {
			return exec.CommandContext(ctx, "sh", "-c", cmdStr).CombinedOutput()
		},
		inTmux: func() bool { return os.Getenv("TMUX") != "" },
	}
}

func (a *CommandAdapter) Name() string { return "command" }

func (a *CommandAdapter) Post(ctx context.Context, evt Event) error {
	if a.command != "" {
		cmdStr := templateEvent(a.command, evt)
		if out, err := a.runCommand(ctx, cmdStr); err != nil {
			return fmt.Errorf("command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}

	// If inside tmux, also display a status-line message.
	if a.inTmux() {
		display := exec.CommandContext(ctx, "tmux", "display-message", evt.Title())
		if err := display.Run(); err != nil {
			return fmt.Errorf("tmux display-message: %w", err)
		}
	}
	return nil
}

// templateEvent replaces placeholders in the command template with event
// values.
func templateEvent(command string, evt Event) string {
	r := strings.NewReplacer(
		"{{.ID}}", evt.MessageID,
		"{{.From}}", evt.From,
		"{{.To}}", evt.To,
		"{{.Type}}", evt.Type,
		"{{.Priority}}", evt.Priority,
	)
	return r.Replace(command)
}
