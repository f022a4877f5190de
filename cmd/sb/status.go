package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registry and queue status",
		Long:  "Displays the registered agencies, message queue counts by status, and running tmux sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	b, _, err := busFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	registry, err := b.Registry()
	if err != nil {
		return err
	}
	names := registry.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "Agencies: none registered")
	} else {
		fmt.Fprintf(out, "Agencies: %s\n", strings.Join(names, ", "))
	}

	stats, err := b.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Queue: %d total (%d pending, %d delivered, %d acknowledged)\n",
		stats.Total, stats.Pending, stats.Delivered, stats.Acknowledged)

	// tmux being down is not an error for status.
	sessions, err := controllerForCLI().ListSessions()
	if err != nil {
		fmt.Fprintf(out, "Sessions: unavailable (%v)\n", err)
		return nil
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "Sessions: none")
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tWINDOWS\tATTACHED")
	for _, s := range sessions {
		attached := ""
		if s.Attached {
			attached = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name, len(s.Windows), attached)
	}
	w.Flush()
	return nil
}
