package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase labels for the named trading-day trigger points.
const (
	PhaseOpen   = "open"
	PhaseMidday = "midday"
	PhaseClose  = "close"
)

// PriceObservation is one persisted price sample for a symbol.
// Phase is nil when the engine runs in interval mode.
type PriceObservation struct {
	ID         int64
	Symbol     string
	Price      decimal.Decimal
	Phase      *string
	ObservedAt time.Time
}

// TrackedSymbol links a ticker to the user tracking it.
type TrackedSymbol struct {
	Symbol  string
	OwnerID int64
}

// Recipient holds the contact channels of one user tracking a symbol.
type Recipient struct {
	Email *string
	Phone *string
}

// AlertRecord captures a dispatched alert for auditing.
type AlertRecord struct {
	ID        int64
	EventID   string
	Symbol    string
	Message   string
	ChangePct decimal.Decimal
	Phase     *string
	CreatedAt time.Time
}
