package notify

import (
	"context"
	"fmt"
	"sync"
)

// Sent is one message recorded by Mock.
type Sent struct {
	Kind     string // template, text, buttons
	To       string
	Template Template
	Body     string
	Buttons  []Button
}

// Mock implements Gateway for testing. It records every successful send and
// can be told to fail a kind of message.
type Mock struct {
	mu      sync.Mutex
	sent    []Sent
	counter int
	fail    map[string]error
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{fail: make(map[string]error)}
}

// FailKind makes every subsequent send of kind return err. A nil err clears
// the failure.
func (m *Mock) FailKind(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, kind)
		return
	}
	m.fail[kind] = err
}

func (m *Mock) record(s Sent) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[s.Kind]; err != nil {
		return nil, err
	}
	m.counter++
	m.sent = append(m.sent, s)
	return &SendResult{MessageID: fmt.Sprintf("wamid.mock-%d", m.counter), To: s.To}, nil
}

// SendTemplate records a template message.
func (m *Mock) SendTemplate(_ context.Context, to string, tpl Template) (*SendResult, error) {
	return m.record(Sent{Kind: "template", To: to, Template: tpl})
}

// SendText records a text message.
func (m *Mock) SendText(_ context.Context, to, body string) (*SendResult, error) {
	return m.record(Sent{Kind: "text", To: to, Body: body})
}

// SendButtons records an interactive message.
func (m *Mock) SendButtons(_ context.Context, to, body string, buttons []Button) (*SendResult, error) {
	return m.record(Sent{Kind: "buttons", To: to, Body: body, Buttons: buttons})
}

// AllSent returns a copy of every recorded message.
func (m *Mock) AllSent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of recorded messages.
func (m *Mock) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastSent returns the most recent message, or nil.
func (m *Mock) LastSent() *Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	s := m.sent[len(m.sent)-1]
	return &s
}

// SentTo returns the messages recorded for one recipient.
func (m *Mock) SentTo(to string) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}
