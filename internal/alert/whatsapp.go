package alert

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/efyoos/bellhop/internal/notify"
)

// WhatsAppChannel sends the admin_alert template to the hotel admin.
type WhatsAppChannel struct {
	gw       notify.Gateway
	language string
}

// NewWhatsAppChannel creates a WhatsAppChannel.
func NewWhatsAppChannel(gw notify.Gateway, language string) *WhatsAppChannel {
	if language == "" {
		language = "en_US"
	}
	return &WhatsAppChannel{gw: gw, language: language}
}

// Name implements Channel.
func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Deliver implements Channel.
func (c *WhatsAppChannel) Deliver(ctx context.Context, n Notice) (string, error) {
	if n.Admin == nil || n.Admin.WhatsappNumber == "" {
		return "", &Skipped{Reason: "no admin whatsapp number"}
	}
	res, err := c.gw.SendTemplate(ctx, n.Admin.WhatsappNumber, notify.Template{
		Name:     "admin_alert",
		Language: c.language,
		BodyParams: []string{
			n.Prefix(),
			strconv.FormatUint(uint64(n.AlertID), 10),
			strings.ToUpper(n.Severity),
			Truncate(n.Message, 200),
		},
	})
	if errors.Is(err, notify.ErrChannelUnavailable) {
		return "", &Skipped{Reason: err.Error()}
	}
	if err != nil {
		return "", err
	}
	return res.ExternalID(), nil
}
