package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/store"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Messaging commands",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageBroadcastCmd())
	cmd.AddCommand(newMessageGetCmd())
	cmd.AddCommand(newMessagePendingCmd())
	cmd.AddCommand(newMessageListCmd())
	cmd.AddCommand(newMessageShowCmd())
	cmd.AddCommand(newMessageDeliverCmd())
	cmd.AddCommand(newMessageAckCmd())
	cmd.AddCommand(newMessagePruneCmd())
	return cmd
}

// parsePayload decodes the --payload JSON object, treating "" as no payload.
func parsePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func newMessageSendCmd() *cobra.Command {
	var (
		configPath string
		from       string
		to         string
		msgType    string
		payload    string
		priority   string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to an agency",
		Long:  "Queues a message from one agency to another. The message stays pending until the recipient collects and acknowledges it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cfg, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			p, err := parsePayload(payload)
			if err != nil {
				return err
			}

			id, err := b.Send(from, to, msgType, p, bus.SendOpts{Priority: priority})
			if err != nil {
				return err
			}

			relay.FromConfig(cfg.Relay).Publish(cmd.Context(), relay.Event{
				MessageID: id,
				From:      from,
				To:        to,
				Type:      msgType,
				Priority:  priority,
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", id, to)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&from, "from", "", "sender agency (required)")
	cmd.Flags().StringVar(&to, "to", "", "recipient agency (required)")
	cmd.Flags().StringVar(&msgType, "type", "", "message type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "message payload as a JSON object")
	cmd.Flags().StringVar(&priority, "priority", "medium", "message priority (high, medium, low)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newMessageBroadcastCmd() *cobra.Command {
	var (
		configPath string
		from       string
		msgType    string
		payload    string
		priority   string
	)

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Broadcast a message to all registered agencies",
		Long:  "Sends one copy of a message to every agency in the registry except the sender.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			p, err := parsePayload(payload)
			if err != nil {
				return err
			}

			ids, err := b.Broadcast(from, msgType, p, bus.SendOpts{Priority: priority})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No recipients registered")
				return nil
			}
			fmt.Fprintf(out, "Broadcast %d messages\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&from, "from", "", "sender agency (required)")
	cmd.Flags().StringVar(&msgType, "type", "", "message type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "message payload as a JSON object")
	cmd.Flags().StringVar(&priority, "priority", "high", "message priority (high, medium, low)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("type")
	return cmd
}

func writeMessageTable(cmd *cobra.Command, msgs []store.Message) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFROM\tTO\tTYPE\tPRIORITY\tSTATUS\tSENT")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.FromAgency, m.ToAgency, m.Type, m.Priority, m.Status,
			m.Timestamp.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func newMessageGetCmd() *cobra.Command {
	var (
		configPath string
		agency     string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get messages addressed to an agency",
		Long:  "Lists messages addressed to an agency in send order, optionally filtered by status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := b.Get(agency, store.Status(status))
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No messages for %s\n", agency)
				return nil
			}
			writeMessageTable(cmd, msgs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agency, "agency", "", "recipient agency (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, delivered, acknowledged)")
	cmd.MarkFlagRequired("agency")
	return cmd
}

func newMessagePendingCmd() *cobra.Command {
	var (
		configPath string
		agency     string
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending messages for an agency",
		Long:  "Lists messages addressed to an agency that have not yet been delivered, in the order they were sent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := b.Get(agency, store.StatusPending)
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No pending messages for %s\n", agency)
				return nil
			}
			writeMessageTable(cmd, msgs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agency, "agency", "", "agency to check (required)")
	cmd.MarkFlagRequired("agency")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages in the queue",
		Long:  "Lists every message in the live queue, optionally filtered by status (pending, delivered, acknowledged).",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := b.List(store.Status(status))
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			writeMessageTable(cmd, msgs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, delivered, acknowledged)")
	return cmd
}

func newMessageShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show a single message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			m, err := b.Find(args[0])
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("message %s not found", args[0])
			}

			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newMessageDeliverCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deliver <message-id>",
		Short: "Mark a message as delivered",
		Long:  "Records that the recipient has received the message. Messages already delivered or acknowledged are left unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			if err := b.MarkDelivered(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newMessageAckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ack <message-id>",
		Short: "Acknowledge a message",
		Long:  "Marks a message as acknowledged, completing its lifecycle. Acknowledged messages never move back.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			if err := b.MarkAcknowledged(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newMessagePruneCmd() *cobra.Command {
	var (
		configPath string
		maxAge     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune messages older than the retention window",
		Long:  "Removes messages older than --max-age from the live queue, archiving them first when an archive is configured. The retention default comes from the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, cfg, err := busFromConfig(configPath)
			if err != nil {
				return err
			}

			age := maxAge
			if !cmd.Flags().Changed("max-age") {
				age = cfg.Retention.MaxAgeDuration()
			}

			result, err := b.Prune(age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d messages (%d archived)\n", result.Pruned, result.Archived)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().DurationVar(&maxAge, "max-age", 168*time.Hour, "retention window; older messages are pruned")
	return cmd
}
