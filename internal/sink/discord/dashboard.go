package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	embedColorGreen = 0x2ECC71
	embedColorRed   = 0xE74C3C
)

// DefaultDashboardInterval is the status embed refresh interval.
const DefaultDashboardInterval = time.Minute

// PersonaStatus is one persona's row in the status embed.
type PersonaStatus struct {
	Name    string
	Enabled bool
	Penalty float64
	History int
}

// Status is the data rendered by the [Dashboard].
type Status struct {
	Profile   string
	Model     string
	StartedAt time.Time
	Sent      int64
	Received  int64
	Personas  []PersonaStatus
}

// Dashboard keeps a status embed up to date. The embed is posted on the
// first refresh and edited afterwards. Not safe for concurrent use; run one
// [Dashboard.Run] at a time.
type Dashboard struct {
	sender    Sender
	channelID string
	interval  time.Duration
	status    func() Status

	messageID string
}

// NewDashboard creates a dashboard. A non-positive interval uses
// [DefaultDashboardInterval].
func NewDashboard(sender Sender, channelID string, interval time.Duration, status func() Status) *Dashboard {
	if interval <= 0 {
		interval = DefaultDashboardInterval
	}
	return &Dashboard{sender: sender, channelID: channelID, interval: interval, status: status}
}

// Run refreshes the embed until ctx is done, then marks it as stopped.
// It always returns nil.
func (d *Dashboard) Run(ctx context.Context) error {
	d.refresh(ctx, false)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.refresh(context.WithoutCancel(ctx), true)
			return nil
		case <-ticker.C:
			d.refresh(ctx, false)
		}
	}
}

func (d *Dashboard) refresh(ctx context.Context, stopped bool) {
	embed := buildStatusEmbed(d.status(), stopped, time.Now())
	if d.messageID == "" {
		if stopped {
			return
		}
		msg, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
		if err != nil {
			slog.Warn("discord: failed to create status embed", "channel", d.channelID, "err", err)
			return
		}
		d.messageID = msg.ID
		return
	}
	if _, err := d.sender.ChannelMessageEditEmbed(d.channelID, d.messageID, embed, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("discord: failed to edit status embed", "message_id", d.messageID, "err", err)
	}
}

func buildStatusEmbed(st Status, stopped bool, now time.Time) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Profile", Value: orDash(st.Profile), Inline: true},
		{Name: "Model", Value: orDash(st.Model), Inline: true},
		{Name: "Uptime", Value: now.Sub(st.StartedAt).Truncate(time.Second).String(), Inline: true},
		{Name: "Characters", Value: fmt.Sprintf("%d sent / %d received", st.Sent, st.Received), Inline: false},
	}
	if table := formatPersonas(st.Personas); table != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Personas", Value: table})
	}

	e := &discordgo.MessageEmbed{
		Title:     "Narrator",
		Color:     embedColorGreen,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Live"},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if stopped {
		e.Description = "Narrator has stopped."
		e.Color = embedColorRed
		e.Footer.Text = "Stopped"
	}
	return e
}

func formatPersonas(ps []PersonaStatus) string {
	if len(ps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, p := range ps {
		state := "on "
		if !p.Enabled {
			state = "off"
		}
		fmt.Fprintf(&b, "%-16s %s penalty=%.2f history=%d\n", p.Name, state, p.Penalty, p.History)
	}
	b.WriteString("```")
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
