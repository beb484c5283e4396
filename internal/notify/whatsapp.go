package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/efyoos/bellhop/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every WhatsApp API request.
const DefaultTimeout = 10 * time.Second

// WhatsAppOpts configures a WhatsApp Cloud API client.
type WhatsAppOpts struct {
	PhoneID       string
	AccessToken   string
	APIVersion    string
	BaseURL       string
	RatePerSecond float64
	Timeout       time.Duration
	// HTTPClient is the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// WhatsApp sends messages through the WhatsApp Cloud API.
type WhatsApp struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewWhatsApp creates a WhatsApp client.
func NewWhatsApp(opts WhatsAppOpts) (*WhatsApp, error) {
	if opts.PhoneID == "" {
		return nil, fmt.Errorf("notify: phone id is required")
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("notify: access token is required")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v17.0"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.facebook.com"
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.AccessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = opts.Timeout

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &WhatsApp{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(opts.BaseURL, "/"), opts.APIVersion, opts.PhoneID),
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   opts.Logger,
	}, nil
}

// New returns the gateway for cfg: a WhatsApp client when credentials are
// present, Unavailable otherwise.
func New(cfg config.WhatsAppConfig, logger *slog.Logger) (Gateway, error) {
	if !cfg.Enabled() {
		return Unavailable{Reason: "WHATSAPP_PHONE_ID or WHATSAPP_ACCESS_TOKEN not configured"}, nil
	}
	return NewWhatsApp(WhatsAppOpts{
		PhoneID:       cfg.PhoneID,
		AccessToken:   cfg.AccessToken,
		APIVersion:    cfg.APIVersion,
		BaseURL:       cfg.BaseURL,
		RatePerSecond: cfg.RatePerSecond,
		Logger:        logger,
	})
}

type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Template         *templateMsg `json:"template,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type templateMsg struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type interactive struct {
	Type   string            `json:"type"`
	Body   textBody          `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveAction struct {
	Buttons []replyButton `json:"buttons"`
}

type replyButton struct {
	Type  string     `json:"type"`
	Reply replyTitle `json:"reply"`
}

type replyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func textParams(values []string) []parameter {
	out := make([]parameter, len(values))
	for i, v := range values {
		out[i] = parameter{Type: "text", Text: v}
	}
	return out
}

// SendTemplate sends an approved template message.
func (w *WhatsApp) SendTemplate(ctx context.Context, to string, tpl Template) (*SendResult, error) {
	msg := templateMsg{Name: tpl.Name, Language: language{Code: tpl.Language}}
	if len(tpl.HeaderParams) > 0 {
		msg.Components = append(msg.Components, component{Type: "header", Parameters: textParams(tpl.HeaderParams)})
	}
	if len(tpl.BodyParams) > 0 {
		msg.Components = append(msg.Components, component{Type: "body", Parameters: textParams(tpl.BodyParams)})
	}
	for i, p := range tpl.ButtonPayloads {
		msg.Components = append(msg.Components, component{
			Type:       "button",
			SubType:    "quick_reply",
			Index:      strconv.Itoa(i),
			Parameters: []parameter{{Type: "payload", Payload: p}},
		})
	}
	return w.send(ctx, outbound{Type: "template", To: to, Template: &msg})
}

// SendText sends a plain text message.
func (w *WhatsApp) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	return w.send(ctx, outbound{Type: "text", To: to, Text: &textBody{Body: body}})
}

// SendButtons sends an interactive message with reply buttons.
func (w *WhatsApp) SendButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	in := interactive{Type: "button", Body: textBody{Body: body}}
	for _, b := range buttons {
		in.Action.Buttons = append(in.Action.Buttons, replyButton{Type: "reply", Reply: replyTitle{ID: b.ID, Title: b.Title}})
	}
	return w.send(ctx, outbound{Type: "interactive", To: to, Interactive: &in})
}

func (w *WhatsApp) send(ctx context.Context, msg outbound) (*SendResult, error) {
	msg.MessagingProduct = "whatsapp"
	msg.To = strings.TrimPrefix(msg.To, "+")

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("notify: rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal %s message: %w", msg.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notify: send %s to %s: %w", msg.Type, msg.To, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("notify: decode response: %w", err)
	}
	res := &SendResult{To: msg.To}
	if len(parsed.Messages) > 0 {
		res.MessageID = parsed.Messages[0].ID
	}
	w.logger.Debug("whatsapp message sent", "type", msg.Type, "to", msg.To, "message_id", res.MessageID)
	return res, nil
}
