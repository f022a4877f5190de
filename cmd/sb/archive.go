package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the pruned-message archive",
	}

	cmd.AddCommand(newArchiveListCmd())
	cmd.AddCommand(newArchiveCountCmd())
	return cmd
}

func newArchiveListCmd() *cobra.Command {
	var (
		configPath string
		agency     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived messages",
		Long:  "Lists pruned messages from the archive database, newest first. Use --agency to filter by recipient.",
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := archiveFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := arc.List(agency, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "Archive is empty")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tTO\tTYPE\tSTATUS\tSENT\tARCHIVED")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.FromAgency, m.ToAgency, m.Type, m.Status,
					m.Timestamp.Format("2006-01-02 15:04"),
					m.ArchivedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agency, "agency", "", "filter by recipient agency")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to list")
	return cmd
}

func newArchiveCountCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count archived messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := archiveFromConfig(configPath)
			if err != nil {
				return err
			}

			n, err := arc.Count()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d archived messages\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}
