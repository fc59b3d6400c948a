package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stock-alert-engine/internal/storage"
)

// Event 封装一次待派发的告警。
type Event struct {
	ID        uuid.UUID
	Symbol    string
	Message   string
	ChangePct decimal.Decimal
	Phase     *string
	At        time.Time
}

// NewEvent stamps an alert event with a fresh identifier.
func NewEvent(symbol, message string, changePct decimal.Decimal, phase *string, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Symbol:    symbol,
		Message:   message,
		ChangePct: changePct,
		Phase:     phase,
		At:        at,
	}
}

// EmailSender delivers an alert to a single email address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers an alert to a single phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Broadcaster delivers an alert to a deployment-wide channel such as a
// Telegram group, independent of the per-user recipient list.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// RecipientSource resolves who tracks a symbol.
type RecipientSource interface {
	RecipientsFor(ctx context.Context, symbol string) ([]storage.Recipient, error)
}
