// Package relay pushes high-priority bus traffic to chat platforms and the
// local desktop. Delivery is best-effort: a relay failure never fails the
// send that triggered it.
package relay

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/store"
)

// Event is one bus message formatted for humans.
type Event struct {
	MessageID string
	From      string
	To        string
	Type      string
	Priority  string
	Broadcast bool
}

// Title returns the event headline.
func (e Event) Title() string {
	if e.Broadcast {
		return fmt.Sprintf("%s broadcast: %s", e.From, e.Type)
	}
	return fmt.Sprintf("%s → %s: %s", e.From, e.To, e.Type)
}

// Color returns a sidebar color hint for the event's priority.
func (e Event) Color() string {
	switch e.Priority {
	case "high":
		return "#d00000"
	case "low":
		return "#36a64f"
	default:
		return "#daa520"
	}
}

// Adapter delivers an Event to one destination.
type Adapter interface {
	Name() string
	Post(ctx context.Context, evt Event) error
}

// Relay fans events out to all configured adapters, filtered by priority.
type Relay struct {
	adapters    []Adapter
	minPriority string
}

// New creates a Relay. minPriority is the lowest priority that gets relayed.
func New(minPriority string, adapters ...Adapter) *Relay {
	return &Relay{adapters: adapters, minPriority: minPriority}
}

// FromConfig builds a Relay with one adapter per configured destination.
// Returns nil when nothing is configured.
func FromConfig(cfg config.RelayConfig) *Relay {
	var adapters []Adapter
	if cfg.Command != "" {
		adapters = append(adapters, NewCommandAdapter(cfg.Command))
	}
	if cfg.Slack.Token != "" && cfg.Slack.Channel != "" {
		adapters = append(adapters, NewSlackAdapter(SlackOpts{
			Token:   cfg.Slack.Token,
			Channel: cfg.Slack.Channel,
		}))
	}
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		adapters = append(adapters, NewDiscordAdapter(DiscordOpts{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		}))
	}
	if len(adapters) == 0 {
		return nil
	}
	return New(cfg.MinPriority, adapters...)
}

// MessageEvent builds the Event for a sent message.
func MessageEvent(m store.Message) Event {
	return Event{
		MessageID: m.ID,
		From:      m.FromAgency,
		To:        m.ToAgency,
		Type:      m.Type,
		Priority:  m.Priority,
	}
}

// Publish relays the event to every adapter. Failures are logged, not
// returned; a nil Relay publishes nothing.
func (r *Relay) Publish(ctx context.Context, evt Event) {
	if r == nil {
		return
	}
	if priorityRank(evt.Priority) < priorityRank(r.minPriority) {
		return
	}
	for _, a := range r.adapters {
		if err := a.Post(ctx, evt); err != nil {
			log.Printf("relay: %s: %v", a.Name(), err)
		}
	}
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}
