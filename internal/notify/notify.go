// Package notify delivers staff and admin messages over WhatsApp.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannelUnavailable is returned by a gateway that has no credentials.
var ErrChannelUnavailable = errors.New("notify: channel unavailable")

// Gateway sends WhatsApp messages. Implementations must be safe for
// concurrent use.
type Gateway interface {
	SendTemplate(ctx context.Context, to string, tpl Template) (*SendResult, error)
	SendText(ctx context.Context, to, body string) (*SendResult, error)
	SendButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error)
}

// Template is a pre-approved WhatsApp message template.
type Template struct {
	Name     string
	Language string
	// HeaderParams fill the text header, BodyParams the body placeholders.
	HeaderParams []string
	BodyParams   []string
	// ButtonPayloads are the quick-reply payloads, one per button index.
	ButtonPayloads []string
}

// Button is an interactive reply button.
type Button struct {
	ID    string
	Title string
}

// SendResult identifies a delivered message.
type SendResult struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

// ExternalID returns the provider message id.
func (r *SendResult) ExternalID() string {
	if r == nil {
		return ""
	}
	return r.MessageID
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notify: whatsapp api returned %d: %s", e.Status, e.Body)
}

// Unavailable is the gateway used when WhatsApp is not configured. Every
// call fails with ErrChannelUnavailable.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return ErrChannelUnavailable
	}
	return fmt.Errorf("%w: %s", ErrChannelUnavailable, u.Reason)
}

// SendTemplate implements Gateway.
func (u Unavailable) SendTemplate(context.Context, string, Template) (*SendResult, error) {
	return nil, u.err()
}

// SendText implements Gateway.
func (u Unavailable) SendText(context.Context, string, string) (*SendResult, error) {
	return nil, u.err()
}

// SendButtons implements Gateway.
func (u Unavailable) SendButtons(context.Context, string, string, []Button) (*SendResult, error) {
	return nil, u.err()
}
