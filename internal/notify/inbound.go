package notify

import (
	"encoding/json"
	"fmt"
)

// Reply is a button press received on the webhook.
type Reply struct {
	// From is the sender's number with a leading '+'.
	From      string
	Token     string
	MessageID string
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	Type        string `json:"type"`
	Interactive *struct {
		ButtonReply *struct {
			ID string `json:"id"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
	} `json:"button"`
}

// ParseWebhook extracts button replies from a WhatsApp webhook body. Both
// interactive button replies and template quick-reply buttons are
// recognized; status callbacks and other message types yield nothing.
func ParseWebhook(body []byte) ([]Reply, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("notify: decode webhook: %w", err)
	}
	var out []Reply
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				token := ""
				switch {
				case m.Type == "interactive" && m.Interactive != nil && m.Interactive.ButtonReply != nil:
					token = m.Interactive.ButtonReply.ID
				case m.Type == "button" && m.Button != nil:
					token = m.Button.Payload
				}
				if token == "" || m.From == "" {
					continue
				}
				out = append(out, Reply{From: "+" + m.From, Token: token, MessageID: m.ID})
			}
		}
	}
	return out, nil
}
