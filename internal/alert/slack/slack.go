// Package slack delivers admin alerts to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/efyoos/bellhop/internal/alert"
)

const maxRetries = 3

// slackClient abstracts the Slack API methods we use.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Opts configures the Slack channel.
type Opts struct {
	BotToken  string
	ChannelID string
	// Client overrides the API client; used by tests.
	Client slackClient
}

// Channel implements alert.Channel for Slack.
type Channel struct {
	client    slackClient
	channelID string
}

// New creates a Slack alert channel.
func New(opts Opts) (*Channel, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		client = slackapi.New(opts.BotToken)
	}
	return &Channel{client: client, channelID: opts.ChannelID}, nil
}

// Name implements alert.Channel.
func (c *Channel) Name() string { return "slack" }

// Deliver posts the notice as a colored attachment and returns the
// message timestamp.
func (c *Channel) Deliver(ctx context.Context, n alert.Notice) (string, error) {
	var ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, ts, postErr = c.client.PostMessage(c.channelID,
			slackapi.MsgOptionText(n.Title, false),
			slackapi.MsgOptionAttachments(noticeToAttachment(n)),
		)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

func noticeToAttachment(n alert.Notice) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    n.Title,
		Text:     n.Message,
		Color:    n.Color,
		Fallback: n.Title,
	}
	for _, f := range n.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries on Slack rate limit errors, waiting
// for RetryAfter when Slack provides it.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
