// Package discord posts narration to a Discord text channel: every accepted
// line as an embed authored by its persona, plus an optional status embed
// that is edited in place.
package discord

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/narrator/internal/sink"
)

// maxDescription is Discord's embed description limit in characters.
const maxDescription = 4096

// personaColors are the embed sidebar colors; each persona keeps one.
var personaColors = []int{0x3498DB, 0x9B59B6, 0xE67E22, 0x1ABC9C, 0xF1C40F, 0xE91E63}

// Sender is the subset of *discordgo.Session used to post and edit embeds.
type Sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sink is a sink.Sink posting to one channel. It only uses the REST API and
// never opens a gateway connection.
type Sink struct {
	sender    Sender
	channelID string
}

// New creates a sink authenticated with a bot token.
func New(token, channelID string) (*Sink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return NewWithSender(session, channelID), nil
}

// NewWithSender creates a sink using an existing sender.
func NewWithSender(sender Sender, channelID string) *Sink {
	return &Sink{sender: sender, channelID: channelID}
}

// Sender returns the underlying sender, e.g. to share it with a [Dashboard].
func (s *Sink) Sender() Sender { return s.sender }

// ChannelID returns the target channel.
func (s *Sink) ChannelID() string { return s.channelID }

// Deliver posts line as an embed.
func (s *Sink) Deliver(ctx context.Context, line sink.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sender.ChannelMessageSendEmbed(s.channelID, lineEmbed(line), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send to %s: %w", s.channelID, err)
	}
	return nil
}

func lineEmbed(line sink.Line) *discordgo.MessageEmbed {
	text := line.Text
	if r := []rune(text); len(r) > maxDescription {
		text = string(r[:maxDescription-1]) + "…"
	}
	at := line.At
	if at.IsZero() {
		at = time.Now()
	}
	e := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: line.Persona},
		Description: text,
		Color:       personaColor(line.Persona),
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	if line.Model != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: line.Model}
	}
	return e
}

func personaColor(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return personaColors[h.Sum32()%uint32(len(personaColors))]
}

var _ sink.Sink = (*Sink)(nil)
