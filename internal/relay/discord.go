package relay

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAdapter posts events to a Discord channel as embeds. Sending is a
// plain REST call; no gateway connection is opened.
type DiscordAdapter struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordAdapter.
type DiscordOpts struct {
	Token     string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscordAdapter creates a DiscordAdapter.
func NewDiscordAdapter(opts DiscordOpts) *DiscordAdapter {
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			// discordgo.New only fails on a malformed token; surface it at
			// post time instead of panicking here.
			log.Printf("relay: discord session: %v", err)
		} else {
			sess = dg
		}
	}
	return &DiscordAdapter{sess: sess, channelID: opts.ChannelID}
}

func (a *DiscordAdapter) Name() string { return "discord" }

func (a *DiscordAdapter) Post(ctx context.Context, evt Event) error {
	if a.sess == nil {
		return fmt.Errorf("session unavailable")
	}

	embed := &discordgo.MessageEmbed{
		Title: evt.Title(),
		Color: hexColor(evt.Color()),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Message", Value: evt.MessageID, Inline: true},
			{Name: "Priority", Value: evt.Priority, Inline: true},
		},
	}

	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post to %s: %w", a.channelID, err)
	}
	return nil
}

// hexColor converts "#rrggbb" to the integer form Discord embeds expect.
func hexColor(c string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(c, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
