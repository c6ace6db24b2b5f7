package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/narrator/internal/sink"
)

type fakeSender struct {
	mu      sync.Mutex
	err     error
	sent    []*discordgo.MessageEmbed
	edited  []*discordgo.MessageEmbed
	editIDs []string
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, embed)
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID}, nil
}

func (f *fakeSender) ChannelMessageEditEmbed(_, messageID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.edited = append(f.edited, embed)
	f.editIDs = append(f.editIDs, messageID)
	return &discordgo.Message{ID: messageID}, nil
}

func (f *fakeSender) counts() (sent, edited int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), len(f.edited)
}

func TestSink_Deliver(t *testing.T) {
	t.Parallel()

	f := &fakeSender{}
	s := NewWithSender(f, "chan-1")
	line := sink.Line{Persona: "Ada", Text: "The harvest looks thin.", Model: "gpt-4o-mini"}
	if err := s.Deliver(context.Background(), line); err != nil {
		t.Fatal(err)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent = %d embeds, want 1", len(f.sent))
	}
	e := f.sent[0]
	if e.Author == nil || e.Author.Name != "Ada" || e.Description != line.Text {
		t.Errorf("embed = %+v", e)
	}
	if e.Footer == nil || e.Footer.Text != "gpt-4o-mini" {
		t.Errorf("footer = %+v", e.Footer)
	}
	if e.Color != personaColor("Ada") {
		t.Errorf("color = %x, want stable persona color", e.Color)
	}
}

func TestSink_DeliverErrors(t *testing.T) {
	t.Parallel()

	f := &fakeSender{err: errors.New("rate limited")}
	s := NewWithSender(f, "chan-1")
	if err := s.Deliver(context.Background(), sink.Line{Text: "x"}); err == nil || !strings.Contains(err.Error(), "chan-1") {
		t.Errorf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWithSender(&fakeSender{}, "c").Deliver(ctx, sink.Line{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Deliver err = %v", err)
	}
}

func TestLineEmbed_Truncates(t *testing.T) {
	t.Parallel()

	e := lineEmbed(sink.Line{Text: strings.Repeat("é", maxDescription+10)})
	if n := len([]rune(e.Description)); n != maxDescription {
		t.Errorf("description length = %d runes, want %d", n, maxDescription)
	}
}

func TestBuildStatusEmbed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := Status{
		Profile:   "openai",
		Model:     "gpt-4o-mini",
		StartedAt: now.Add(-90 * time.Second),
		Sent:      1200,
		Received:  300,
		Personas: []PersonaStatus{
			{Name: "Ada", Enabled: true, Penalty: 0.5, History: 3},
			{Name: "Bob", Penalty: 2},
		},
	}

	e := buildStatusEmbed(st, false, now)
	if e.Color != embedColorGreen || e.Footer.Text != "Live" {
		t.Errorf("live embed = %+v", e)
	}
	if e.Fields[2].Value != "1m30s" {
		t.Errorf("uptime = %q", e.Fields[2].Value)
	}
	if e.Fields[3].Value != "1200 sent / 300 received" {
		t.Errorf("characters = %q", e.Fields[3].Value)
	}
	table := e.Fields[4].Value
	if !strings.Contains(table, "Ada") || !strings.Contains(table, "off") {
		t.Errorf("persona table = %q", table)
	}

	stopped := buildStatusEmbed(Status{}, true, now)
	if stopped.Color != embedColorRed || stopped.Description == "" || stopped.Fields[0].Value != "-" {
		t.Errorf("stopped embed = %+v", stopped)
	}
}

func TestDashboard_Run(t *testing.T) {
	t.Parallel()

	f := &fakeSender{}
	d := NewDashboard(f, "chan-1", 10*time.Millisecond, func() Status { return Status{Profile: "p"} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, edited := f.counts(); edited >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}

	sent, edited := f.counts()
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if edited < 3 {
		t.Fatalf("edited = %d, want at least 3", edited)
	}
	f.mu.Lock()
	last := f.edited[len(f.edited)-1]
	f.mu.Unlock()
	if last.Color != embedColorRed {
		t.Error("final edit is not the stopped embed")
	}
}

func TestDashboard_SendFailure(t *testing.T) {
	t.Parallel()

	f := &fakeSender{err: errors.New("forbidden")}
	d := NewDashboard(f, "chan-1", 0, func() Status { return Status{} })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if d.messageID != "" {
		t.Error("messageID set after failed send")
	}
}
