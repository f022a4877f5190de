package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/relay"
)

func newServeCmd() *cobra.Command {
	var (
		configPath    string
		socket        string
		stdio         bool
		withDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC gateway daemon",
		Long:  "Listens on a local unix socket for newline-delimited JSON-RPC requests, runs the scheduled retention prune, and optionally serves the dashboard. With --stdio it serves a single connection over stdin/stdout instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, socket, stdio, withDashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&socket, "socket", "", "unix socket path (default from config)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve one connection over stdin/stdout instead of a socket")
	cmd.Flags().BoolVar(&withDashboard, "dashboard", false, "also serve the HTTP dashboard")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, socket string, stdio, withDashboard bool) error {
	b, cfg, err := busFromConfig(configPath)
	if err != nil {
		return err
	}
	if socket == "" {
		socket = cfg.Socket
	}

	ctrl := controllerForCLI()
	srv, err := gateway.New(gateway.Opts{
		Bus:        b,
		Controller: ctrl,
		Relay:      relay.FromConfig(cfg.Relay),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go runRetentionLoop(ctx, b, cfg.Retention.Schedule, cfg.Retention.MaxAgeDuration())

	if stdio {
		return srv.ServeConn(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if withDashboard {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Bus:        b,
				Controller: ctrl,
				Port:       cfg.Dashboard.Port,
				Out:        cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on %s\n", socket)
	return srv.Serve(ctx, socket)
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// pruner is the slice of the bus the retention loop needs. Allows test
// substitution.
type pruner interface {
	Prune(maxAge time.Duration) (bus.PruneResult, error)
}

// runRetentionLoop prunes the queue on the configured cron schedule until
// ctx is cancelled. Prune failures are logged, not fatal.
func runRetentionLoop(ctx context.Context, b pruner, schedule string, maxAge time.Duration) {
	for {
		d := nextCronDuration(schedule)
		if d == 0 {
			log.Printf("retention: invalid schedule %q, retention disabled", schedule)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}

		result, err := b.Prune(maxAge)
		if err != nil {
			log.Printf("retention: prune: %v", err)
			continue
		}
		if result.Pruned > 0 {
			log.Printf("retention: pruned %d messages (%d archived)", result.Pruned, result.Archived)
		}
	}
}
