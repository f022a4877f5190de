// Package dashboard serves a read-only HTTP status API over the message
// bus and tmux sessions, for operators who want to watch the agencies
// without attaching to the orchestrator session.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/tmux"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Bus        *bus.Bus
	Controller tmux.Controller
	Port       int
	Out        io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Bus == nil {
		return fmt.Errorf("dashboard: bus is required")
	}
	if opts.Controller == nil {
		opts.Controller = tmux.DefaultController
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts.Bus, opts.Controller)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the Gin router with all API routes registered.
func newRouter(b *bus.Bus, ctrl tmux.Controller) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/status", handleStatus(b, ctrl))
	api.GET("/messages", handleMessages(b))
	api.GET("/sessions", handleSessions(ctrl))

	return router
}

func handleStatus(b *bus.Bus, ctrl tmux.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := b.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		registry, err := b.Registry()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sessions, err := ctrl.ListSessions()
		if err != nil {
			// tmux being down should not blank the queue stats.
			sessions = nil
		}
		if sessions == nil {
			sessions = []tmux.Session{}
		}
		c.JSON(http.StatusOK, gin.H{
			"agencies": registry.Names(),
			"queue":    stats,
			"sessions": sessions,
		})
	}
}

func handleMessages(b *bus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		agency := c.Query("agency")
		status := store.Status(c.Query("status"))
		if status != "" && !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid status %q", status)})
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
				return
			}
			limit = n
		}

		var msgs []store.Message
		var err error
		if agency == "" {
			msgs, err = b.List(status)
		} else {
			msgs, err = b.Get(agency, status)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		if msgs == nil {
			msgs = []store.Message{}
		}
		c.JSON(http.StatusOK, gin.H{
			"count":    len(msgs),
			"messages": msgs,
		})
	}
}

func handleSessions(ctrl tmux.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := ctrl.ListSessions()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sessions == nil {
			sessions = []tmux.Session{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}
