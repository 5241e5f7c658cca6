package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordClient abstracts the discordgo method we use, enabling test mocks.
type discordClient interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a DiscordSink.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
}

// DiscordSink posts alerts as Discord embeds.
type DiscordSink struct {
	client    discordClient
	channelID string
}

// NewDiscord creates a DiscordSink. No gateway connection is opened; posting
// goes through the REST API only.
func NewDiscord(opts DiscordOpts) (*DiscordSink, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord: channel id is required")
	}
	s, err := discordgo.New("Bot " + opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify: discord: create session: %w", err)
	}
	return &DiscordSink{client: s, channelID: opts.ChannelID}, nil
}

func (d *DiscordSink) Name() string { return "discord" }

// Post sends a as one embed. discordgo has no context-aware send, so the
// request is bound to ctx through a RequestOption.
func (d *DiscordSink) Post(ctx context.Context, a Alert) error {
	if _, err := d.client.ChannelMessageSendEmbed(d.channelID, alertToEmbed(a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	return nil
}

// alertToEmbed converts an Alert to a Discord embed.
func alertToEmbed(a Alert) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Body,
		Color:       parseHexColor(a.Color),
	}
	if !a.At.IsZero() {
		embed.Timestamp = a.At.UTC().Format(time.RFC3339)
	}
	for _, f := range a.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts "#rrggbb" to an int. Malformed input yields 0.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
