package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API method we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts holds parameters for creating a SlackSink.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
}

// SlackSink posts alerts as Slack attachments.
type SlackSink struct {
	client    slackClient
	channelID string
}

// NewSlack creates a SlackSink.
func NewSlack(opts SlackOpts) (*SlackSink, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack: channel id is required")
	}
	return &SlackSink{client: slackapi.New(opts.BotToken), channelID: opts.ChannelID}, nil
}

func (s *SlackSink) Name() string { return "slack" }

// Post sends a as a single attachment with the title as fallback text.
func (s *SlackSink) Post(ctx context.Context, a Alert) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slackapi.MsgOptionAttachments(alertToAttachment(a)),
		slackapi.MsgOptionText(a.Title, false),
	)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}

// alertToAttachment converts an Alert to a Slack Attachment.
func alertToAttachment(a Alert) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    a.Title,
		Text:     a.Body,
		Color:    a.Color,
		Fallback: a.Title,
	}
	if !a.At.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(a.At.Unix(), 10))
	}
	for _, f := range a.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}
