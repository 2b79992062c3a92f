package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_RendersBuiltIn(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render("script-sent", map[string]string{
		"patient_name": "Alice",
		"reference":    "INT-1A2B3C4D",
		"channel":      "parchment",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Your prescription is on its way" {
		t.Errorf("subject = %q", subject)
	}
	want := "Hi Alice, your prescription for request INT-1A2B3C4D has been sent via parchment."
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "partial",
		Subject: "Hello {{name}}",
		Body:    "Code {{code}}",
		Channel: ChannelEmail,
	})
	subject, body, err := eng.Render("partial", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Bob" {
		t.Errorf("subject = %q", subject)
	}
	if body != "Code {{code}}" {
		t.Errorf("body = %q, missing keys should stay literal", body)
	}
}

func TestSender_RoutesByChannel(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	s := NewSender(email, sms, NewTemplateEngine())

	n := &Notification{
		Channel:   ChannelEmail,
		Recipient: "alice@example.com",
		Subject:   "hi",
		Body:      "body",
	}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.Calls()) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(email.Calls()))
	}
	if n.Status != "sent" || n.SentAt == nil {
		t.Error("expected notification marked sent")
	}

	n2 := &Notification{Channel: ChannelSMS, Recipient: "+61400000000", Body: "ping"}
	if err := s.Send(context.Background(), n2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sms.Calls()) != 1 {
		t.Fatalf("expected 1 sms call, got %d", len(sms.Calls()))
	}
}

func TestSender_TemplateDrivesChannelAndContent(t *testing.T) {
	email := &MockEmailSender{}
	s := NewSender(email, &MockSMSSender{}, NewTemplateEngine())

	n := &Notification{
		Recipient:  "alice@example.com",
		TemplateID: "intake-approved",
		TemplateData: map[string]string{
			"patient_name": "Alice",
			"service":      "repeat prescription",
			"reference":    "INT-1A2B3C4D",
		},
	}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].Subject != "Your request INT-1A2B3C4D has been approved" {
		t.Errorf("subject = %q", calls[0].Subject)
	}
}

func TestSender_FailureMarksNotification(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	s := NewSender(email, &MockSMSSender{}, NewTemplateEngine())

	n := &Notification{Channel: ChannelEmail, Recipient: "x@example.com", Body: "b"}
	if err := s.Send(context.Background(), n); err == nil {
		t.Fatal("expected error")
	}
	if n.Status != "failed" || n.Error != "smtp down" {
		t.Errorf("status=%q error=%q", n.Status, n.Error)
	}
}

func TestDispatcher_DeliversAsync(t *testing.T) {
	email := &MockEmailSender{}
	sender := NewSender(email, &MockSMSSender{}, NewTemplateEngine())
	d := NewDispatcher(sender, zerolog.New(os.Stderr), 8)
	d.Start()

	d.Dispatch(&Notification{
		Channel:   ChannelEmail,
		Recipient: "alice@example.com",
		Subject:   "s",
		Body:      "b",
	})
	d.Stop()

	if len(email.Calls()) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(email.Calls()))
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	// Worker never started, queue size 1: second dispatch must drop, not block.
	sender := NewSender(&MockEmailSender{}, &MockSMSSender{}, NewTemplateEngine())
	d := NewDispatcher(sender, zerolog.New(os.Stderr), 1)

	done := make(chan struct{})
	go func() {
		d.Dispatch(&Notification{Channel: ChannelEmail, Recipient: "a", Body: "1"})
		d.Dispatch(&Notification{Channel: ChannelEmail, Recipient: "b", Body: "2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on full queue")
	}
}
