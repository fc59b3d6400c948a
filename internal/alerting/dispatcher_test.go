package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/storage"
)

type fakeRecipients struct {
	recipients []storage.Recipient
	err        error
}

func (f *fakeRecipients) RecipientsFor(ctx context.Context, symbol string) ([]storage.Recipient, error) {
	return f.recipients, f.err
}

type recordingEmail struct {
	sent []string
	err  error
}

func (r *recordingEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	r.sent = append(r.sent, to)
	return r.err
}

type recordingSMS struct {
	sent []string
	err  error
}

func (r *recordingSMS) SendSMS(ctx context.Context, to, body string) error {
	r.sent = append(r.sent, to)
	return r.err
}

type recordingBroadcast struct {
	events []Event
	err    error
}

func (r *recordingBroadcast) Broadcast(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func strPtr(s string) *string { return &s }

func testEvent() Event {
	return NewEvent("AAPL", "ALERT: AAPL moved 1.60% in 20m", decimal.NewFromFloat(1.6), nil, time.Now())
}

func TestDispatchEmailOnlyRecipient(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	recipients := &fakeRecipients{recipients: []storage.Recipient{
		{Email: strPtr("a@example.com")},
	}}

	d := NewDispatcher(recipients, email, sms, nil, zerolog.Nop())
	d.Dispatch(context.Background(), testEvent())

	if len(email.sent) != 1 || email.sent[0] != "a@example.com" {
		t.Fatalf("期望 1 封邮件, 实际 %v", email.sent)
	}
	if len(sms.sent) != 0 {
		t.Fatalf("无手机号不应发短信, 实际 %v", sms.sent)
	}
}

func TestDispatchBothChannels(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	recipients := &fakeRecipients{recipients: []storage.Recipient{
		{Email: strPtr("a@example.com"), Phone: strPtr("+15550001111")},
	}}

	d := NewDispatcher(recipients, email, sms, nil, zerolog.Nop())
	d.Dispatch(context.Background(), testEvent())

	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email attempt, got %d", len(email.sent))
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected 1 sms attempt, got %d", len(sms.sent))
	}
}

func TestDispatchChannelFailureIsIsolated(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	sms := &recordingSMS{}
	recipients := &fakeRecipients{recipients: []storage.Recipient{
		{Email: strPtr("a@example.com"), Phone: strPtr("+15550001111")},
		{Email: strPtr("b@example.com")},
	}}
	broadcast := &recordingBroadcast{}

	d := NewDispatcher(recipients, email, sms, broadcast, zerolog.Nop())
	d.Dispatch(context.Background(), testEvent())

	if len(email.sent) != 2 {
		t.Fatalf("邮件失败仍应逐个尝试, 实际 %d 次", len(email.sent))
	}
	if len(sms.sent) != 1 {
		t.Fatalf("邮件失败不应影响短信, 实际 %d 次", len(sms.sent))
	}
	if len(broadcast.events) != 1 {
		t.Fatalf("邮件失败不应影响广播, 实际 %d 次", len(broadcast.events))
	}
}

func TestDispatchRecipientLookupFailureStillBroadcasts(t *testing.T) {
	recipients := &fakeRecipients{err: errors.New("db unavailable")}
	broadcast := &recordingBroadcast{}

	d := NewDispatcher(recipients, &recordingEmail{}, nil, broadcast, zerolog.Nop())
	d.Dispatch(context.Background(), testEvent())

	if len(broadcast.events) != 1 {
		t.Fatalf("expected broadcast despite recipient error, got %d", len(broadcast.events))
	}
}

func TestDispatchNoChannelsConfigured(t *testing.T) {
	recipients := &fakeRecipients{recipients: []storage.Recipient{
		{Email: strPtr("a@example.com")},
	}}

	// 不配置任何渠道时不应 panic。
	d := NewDispatcher(recipients, nil, nil, nil, zerolog.Nop())
	d.Dispatch(context.Background(), testEvent())
}
