package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/tmux"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create the configured agency sessions",
		Long:  "Creates one tmux session per configured agency, with one window per agent, and registers the agencies. Existing sessions are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	b, cfg, err := busFromConfig(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Sessions) == 0 {
		return fmt.Errorf("no sessions configured in %s (add a sessions list)", configPath)
	}

	ctrl := controllerForCLI()
	out := cmd.OutOrStdout()

	for _, sess := range cfg.Sessions {
		if ctrl.SessionExists(sess.Name) {
			fmt.Fprintf(out, "Session %s already running, preserved\n", sess.Name)
			continue
		}

		if err := ctrl.CreateSession(sess.Name); err != nil {
			return fmt.Errorf("create session %s: %w", sess.Name, err)
		}
		for i, window := range sess.Windows {
			if i == 0 {
				err = ctrl.RenameWindow(sess.Name, 0, window)
			} else {
				err = ctrl.CreateWindow(sess.Name, window)
			}
			if err != nil {
				return fmt.Errorf("create window %s in %s: %w", window, sess.Name, err)
			}
		}
		fmt.Fprintf(out, "Created session %s (%d windows)\n", sess.Name, len(sess.Windows))
	}

	// Register every configured agency so broadcasts reach it.
	names := make([]string, 0, len(cfg.Sessions))
	for _, sess := range cfg.Sessions {
		names = append(names, sess.Name)
	}
	if err := b.Register(names...); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nAttach with: %s\n", tmux.AttachCommand(cfg.Sessions[0].Name))
	return nil
}
