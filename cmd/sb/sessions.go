package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List tmux sessions and their windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := controllerForCLI().ListSessions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions running")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tWINDOW\tNAME\tACTIVE")
			for _, s := range sessions {
				for _, win := range s.Windows {
					active := ""
					if win.Active {
						active = "*"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Name, win.Index, win.Name, active)
				}
			}
			w.Flush()
			return nil
		},
	}
	return cmd
}

func newPeekCmd() *cobra.Command {
	var (
		window int
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "peek <session>",
		Short: "Capture recent output from a session window",
		Long:  "Prints the last N lines of visible output from a tmux window without attaching to the session.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := controllerForCLI().CaptureWindow(args[0], window, lines)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", 0, "window index to capture")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of trailing lines to capture")
	return cmd
}

func newTalkCmd() *cobra.Command {
	var (
		window  int
		noEnter bool
	)

	cmd := &cobra.Command{
		Use:   "talk <session> <text>",
		Short: "Type text into a session window",
		Long:  "Sends keystrokes to a tmux window, submitting with Enter unless --no-enter is given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, text := args[0], args[1]
			ctrl := controllerForCLI()
			if !ctrl.SessionExists(session) {
				return fmt.Errorf("session %q not found", session)
			}
			if err := ctrl.SendKeys(session, window, text, !noEnter); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s:%d\n", session, window)
			return nil
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", 0, "window index to send to")
	cmd.Flags().BoolVar(&noEnter, "no-enter", false, "type the text without pressing Enter")
	return cmd
}
