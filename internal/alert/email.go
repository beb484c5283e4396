package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailSender sends a plain-text e-mail.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SESSender sends e-mail through Amazon SES.
type SESSender struct {
	client    *sesv2.Client
	fromEmail string
}

// NewSESSender loads the default AWS credential chain for region.
func NewSESSender(ctx context.Context, from, region string) (*SESSender, error) {
	if from == "" {
		return nil, fmt.Errorf("alert: email from address is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("alert: load aws config: %w", err)
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg), fromEmail: from}, nil
}

// Send implements EmailSender.
func (s *SESSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("alert: ses send to %s: %w", to, err)
	}
	return aws.ToString(out.MessageId), nil
}

// EmailChannel e-mails the hotel admin.
type EmailChannel struct {
	sender EmailSender
}

// NewEmailChannel creates an EmailChannel. A nil sender makes every
// delivery a skip.
func NewEmailChannel(sender EmailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Deliver implements Channel.
func (c *EmailChannel) Deliver(ctx context.Context, n Notice) (string, error) {
	if c.sender == nil {
		return "", &Skipped{Reason: "email sender not configured"}
	}
	if n.Admin == nil || n.Admin.Email == "" {
		return "", &Skipped{Reason: "no admin email"}
	}
	return c.sender.Send(ctx, n.Admin.Email, EmailSubject(n), EmailBody(n))
}

// EmailSubject builds the subject line for n.
func EmailSubject(n Notice) string {
	prefix := "⚠️ "
	if n.Escalation {
		prefix = "🚨 ESCALATED: "
	}
	return fmt.Sprintf("%sAlert #%d [%s]", prefix, n.AlertID, strings.ToUpper(n.Severity))
}

// EmailBody builds the plain-text body for n.
func EmailBody(n Notice) string {
	var b strings.Builder
	if n.Escalation {
		b.WriteString("ESCALATED ALERT\n")
	}
	fmt.Fprintf(&b, "Alert #%d\nSeverity: %s\n\n%s\n\n", n.AlertID, n.Severity, n.Message)
	b.WriteString("Acknowledge or resolve this alert with `bellhop alerts ack` or the /alerts API.")
	return b.String()
}
