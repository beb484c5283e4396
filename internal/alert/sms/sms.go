// Package sms texts escalated admin alerts through Twilio.
package sms

import (
	"context"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/efyoos/bellhop/internal/alert"
)

// messageAPI is the part of the Twilio REST API we use.
type messageAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// Opts configures the SMS channel. Leaving any of AccountSID, AuthToken
// or From empty disables delivery.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

// Channel implements alert.Channel for SMS. It only sends escalations.
type Channel struct {
	api  messageAPI
	from string
}

// New creates an SMS alert channel.
func New(opts Opts) *Channel {
	if opts.AccountSID == "" || opts.AuthToken == "" || opts.From == "" {
		return &Channel{}
	}
	params := twilio.ClientParams{Username: opts.AccountSID, Password: opts.AuthToken}
	if opts.HTTPClient != nil {
		c := &client.Client{
			Credentials: client.NewCredentials(opts.AccountSID, opts.AuthToken),
			HTTPClient:  opts.HTTPClient,
		}
		c.SetAccountSid(opts.AccountSID)
		params.Client = c
	}
	rest := twilio.NewRestClientWithParams(params)
	return &Channel{api: rest.Api, from: opts.From}
}

// Name implements alert.Channel.
func (c *Channel) Name() string { return "sms" }

// Deliver texts the admin's number and returns the message SID.
func (c *Channel) Deliver(ctx context.Context, n alert.Notice) (string, error) {
	if !n.Escalation {
		return "", &alert.Skipped{Reason: "sms is sent for escalations only"}
	}
	if c.api == nil {
		return "", &alert.Skipped{Reason: "Twilio credentials not configured"}
	}
	if n.Admin == nil || n.Admin.WhatsappNumber == "" {
		return "", &alert.Skipped{Reason: "no admin phone number"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(n.Admin.WhatsappNumber)
	params.SetFrom(c.from)
	params.SetBody(Body(n))
	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("sms: send to %s: %w", n.Admin.WhatsappNumber, err)
	}
	if msg.Sid == nil {
		return "", nil
	}
	return *msg.Sid, nil
}

// Body is the SMS text for an escalated notice.
func Body(n alert.Notice) string {
	return fmt.Sprintf("🚨 URGENT Alert #%d unacknowledged: %s", n.AlertID, alert.Truncate(n.Message, 100))
}
