// Package discord delivers admin alerts to a Discord channel over the REST
// API. No gateway connection is opened.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/efyoos/bellhop/internal/alert"
)

const maxRetries = 3

// session abstracts the discordgo methods we use.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Opts configures the Discord channel.
type Opts struct {
	BotToken  string
	ChannelID string
	// Session overrides the discordgo session; used by tests.
	Session     session
	BaseBackoff time.Duration
	Logger      *slog.Logger
}

// Channel implements alert.Channel for Discord.
type Channel struct {
	sess        session
	channelID   string
	baseBackoff time.Duration
	logger      *slog.Logger
}

// New creates a Discord alert channel.
func New(opts Opts) (*Channel, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	c := &Channel{sess: sess, channelID: opts.ChannelID, baseBackoff: opts.BaseBackoff, logger: opts.Logger}
	if c.baseBackoff <= 0 {
		c.baseBackoff = time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Name implements alert.Channel.
func (c *Channel) Name() string { return "discord" }

// Deliver sends the notice as an embed and returns the message id.
func (c *Channel) Deliver(ctx context.Context, n alert.Notice) (string, error) {
	var msg *discordgo.Message
	err := c.retryOnRateLimit(ctx, func() error {
		var sendErr error
		msg, sendErr = c.sess.ChannelMessageSendEmbed(c.channelID, noticeToEmbed(n))
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send embed: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.ID, nil
}

func noticeToEmbed(n alert.Notice) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Message,
	}
	if n.Color != "" {
		embed.Color = parseHexColor(n.Color)
	}
	for _, f := range n.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts "#rrggbb" to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

func (c *Channel) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil ||
			restErr.Response.StatusCode != http.StatusTooManyRequests || attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * c.baseBackoff
		c.logger.Warn("discord rate limited", "attempt", attempt+1, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
