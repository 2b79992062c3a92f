// Package notify delivers patient-facing notifications for intake lifecycle
// events. Delivery is best-effort and asynchronous: the transition engine
// enqueues and returns, and a failed delivery never reverts a committed
// status change.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel represents the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in intake
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "intake-approved",
			Name:    "Intake Approved",
			Subject: "Your request {{reference}} has been approved",
			Body:    "Hi {{patient_name}}, your {{service}} request {{reference}} has been reviewed and approved.",
			Channel: ChannelEmail,
		},
		{
			ID:      "intake-declined",
			Name:    "Intake Declined",
			Subject: "An update on your request {{reference}}",
			Body:    "Hi {{patient_name}}, your {{service}} request {{reference}} could not be approved. Our team will contact you with details.",
			Channel: ChannelEmail,
		},
		{
			ID:      "intake-info-requested",
			Name:    "More Information Needed",
			Subject: "We need more information for {{reference}}",
			Body:    "Hi {{patient_name}}, the reviewing doctor needs more information to progress your {{service}} request {{reference}}. Please log in to respond.",
			Channel: ChannelEmail,
		},
		{
			ID:      "script-sent",
			Name:    "Prescription Sent",
			Subject: "Your prescription is on its way",
			Body:    "Hi {{patient_name}}, your prescription for request {{reference}} has been sent via {{channel}}.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Lookup returns the template registered under id, if any.
func (e *TemplateEngine) Lookup(id string) (*Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[id]
	return t, ok
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Sender routes a notification through the right channel implementation.
type Sender struct {
	email EmailSender
	sms   SMSSender
	tpl   *TemplateEngine
}

// NewSender constructs a Sender.
func NewSender(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Sender {
	return &Sender{email: email, sms: sms, tpl: tpl}
}

// Send renders the notification's template when set and dispatches it through
// the appropriate channel.
func (s *Sender) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if n.TemplateID != "" {
		subject, body, err := s.tpl.Render(n.TemplateID, n.TemplateData)
		if err != nil {
			n.Status = "failed"
			n.Error = err.Error()
			return fmt.Errorf("render template: %w", err)
		}
		n.Subject = subject
		n.Body = body
		if n.Channel == "" {
			if t, ok := s.tpl.Lookup(n.TemplateID); ok {
				n.Channel = t.Channel
			}
		}
	}

	var sendErr error
	switch n.Channel {
	case ChannelEmail:
		sendErr = s.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		sendErr = s.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported notification channel: %s", n.Channel)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		return sendErr
	}

	n.Status = "sent"
	sentAt := time.Now().UTC()
	n.SentAt = &sentAt
	return nil
}
