package relay

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackAdapter posts events to a Slack channel as attachments.
type SlackAdapter struct {
	client  slackClient
	channel string
}

// SlackOpts holds parameters for creating a SlackAdapter.
type SlackOpts struct {
	Token   string // xoxb-... bot token
	Channel string // channel ID to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlackAdapter creates a SlackAdapter.
func NewSlackAdapter(opts SlackOpts) *SlackAdapter {
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.Token)
	}
	return &SlackAdapter{client: client, channel: opts.Channel}
}

func (a *SlackAdapter) Name() string { return "slack" }

func (a *SlackAdapter) Post(ctx context.Context, evt Event) error {
	attachment := slackapi.Attachment{
		Title:    evt.Title(),
		Color:    evt.Color(),
		Fallback: evt.Title(),
		Fields: []slackapi.AttachmentField{
			{Title: "Message", Value: evt.MessageID, Short: true},
			{Title: "Priority", Value: evt.Priority, Short: true},
		},
	}

	_, _, err := a.client.PostMessageContext(ctx, a.channel,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("post to %s: %w", a.channel, err)
	}
	return nil
}
