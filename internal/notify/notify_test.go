package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/rentbell/internal/session"
	"go.uber.org/zap"
)

// --- helpers ---

type fakeSink struct {
	mu     sync.Mutex
	name   string
	alerts []Alert
	err    error
	sawDL  bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Post(ctx context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.sawDL = ctx.Deadline()
	f.alerts = append(f.alerts, a)
	return f.err
}

type mockSlack struct {
	channel string
	opts    int
	err     error
}

func (m *mockSlack) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.channel = channelID
	m.opts = len(options)
	return channelID, "1700000000.000100", m.err
}

type mockDiscord struct {
	channel string
	embed   *discordgo.MessageEmbed
	err     error
}

func (m *mockDiscord) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.channel = channelID
	m.embed = embed
	return &discordgo.Message{}, m.err
}

func failure(trigger string, to session.State) session.Transition {
	return session.Transition{
		TenantID: "t1",
		From:     session.StateAuthenticating,
		To:       to,
		Trigger:  trigger,
		Detail:   "stream error",
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// --- Notifier ---

func TestNotifier_AlertsOnUnexpectedFailures(t *testing.T) {
	tests := []struct {
		trigger string
		to      session.State
		color   string
	}{
		{"auth_failed", session.StateFailed, ColorError},
		{"open_failed", session.StateFailed, ColorError},
		{"ready_timeout", session.StateFailed, ColorError},
		{"transport_disconnected", session.StateDisconnected, ColorWarning},
	}
	for _, tt := range tests {
		sink := &fakeSink{name: "fake"}
		n := NewNotifier(NotifierOpts{Sinks: []Sink{sink}, Logger: zap.NewNop()})
		n.OnTransition(failure(tt.trigger, tt.to))

		if len(sink.alerts) != 1 {
			t.Fatalf("%s: got %d alerts, want 1", tt.trigger, len(sink.alerts))
		}
		a := sink.alerts[0]
		if a.Color != tt.color {
			t.Errorf("%s: color = %q, want %q", tt.trigger, a.Color, tt.color)
		}
		if !strings.Contains(a.Title, "t1") || a.Body != "stream error" {
			t.Errorf("%s: alert = %+v", tt.trigger, a)
		}
		if !sink.sawDL {
			t.Errorf("%s: post context has no deadline", tt.trigger)
		}
	}
}

func TestNotifier_IgnoresUserActionsAndProgress(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	n := NewNotifier(NotifierOpts{Sinks: []Sink{sink}, Logger: zap.NewNop()})
	n.OnTransition(failure("disconnect", session.StateDisconnected))
	n.OnTransition(failure("forget", session.StateDisconnected))
	n.OnTransition(failure("reset", session.StateInitializing))
	n.OnTransition(failure("ready", session.StateReady))
	if len(sink.alerts) != 0 {
		t.Errorf("got %d alerts, want 0", len(sink.alerts))
	}
}

func TestNotifier_SinkErrorDoesNotStopOthers(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("boom")}
	good := &fakeSink{name: "good"}
	n := NewNotifier(NotifierOpts{Sinks: []Sink{bad, good}, Logger: zap.NewNop()})
	n.OnTransition(failure("auth_failed", session.StateFailed))
	if len(good.alerts) != 1 {
		t.Errorf("second sink got %d alerts, want 1", len(good.alerts))
	}
}

func TestNotifier_EmptyDetail(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	n := NewNotifier(NotifierOpts{Sinks: []Sink{sink}, Logger: zap.NewNop()})
	tr := failure("ready_timeout", session.StateFailed)
	tr.Detail = ""
	n.OnTransition(tr)
	if sink.alerts[0].Body == "" {
		t.Error("body should not be empty")
	}
}

// --- Slack ---

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack(SlackOpts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewSlack(SlackOpts{BotToken: "xoxb-1"}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestSlackSink_Post(t *testing.T) {
	m := &mockSlack{}
	s := &SlackSink{client: m, channelID: "C123"}
	a, _ := alertFor(failure("auth_failed", session.StateFailed))
	if err := s.Post(context.Background(), a); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if m.channel != "C123" || m.opts != 2 {
		t.Errorf("channel = %q, opts = %d", m.channel, m.opts)
	}

	m.err = errors.New("rate_limited")
	if err := s.Post(context.Background(), a); err == nil || !strings.Contains(err.Error(), "rate_limited") {
		t.Errorf("err = %v, want wrapped rate_limited", err)
	}
}

func TestAlertToAttachment(t *testing.T) {
	a, _ := alertFor(failure("auth_failed", session.StateFailed))
	att := alertToAttachment(a)
	if att.Color != ColorError || att.Fallback != a.Title || att.Text != "stream error" {
		t.Errorf("attachment = %+v", att)
	}
	if len(att.Fields) != 2 || att.Fields[0].Value != "t1" {
		t.Errorf("fields = %+v", att.Fields)
	}
	if string(att.Ts) != "1767323045" {
		t.Errorf("Ts = %q", att.Ts)
	}
}

// --- Discord ---

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{ChannelID: "1"}); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewDiscord(DiscordOpts{BotToken: "abc"}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestDiscordSink_Post(t *testing.T) {
	m := &mockDiscord{}
	d := &DiscordSink{client: m, channelID: "42"}
	a, _ := alertFor(failure("transport_disconnected", session.StateDisconnected))
	if err := d.Post(context.Background(), a); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if m.channel != "42" {
		t.Errorf("channel = %q", m.channel)
	}
	if m.embed.Color != 0xff9800 {
		t.Errorf("color = %x, want ff9800", m.embed.Color)
	}
	if m.embed.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %q", m.embed.Timestamp)
	}
	if len(m.embed.Fields) != 2 || !m.embed.Fields[0].Inline {
		t.Errorf("fields = %+v", m.embed.Fields)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"E53935", 0xe53935},
		{"", 0},
		{"#zzz", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}
