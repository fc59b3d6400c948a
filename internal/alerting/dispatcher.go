package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Dispatcher fans one alert event out to every recipient and channel.
// Each delivery attempt is independent: one failure never blocks another
// channel or another recipient, and nothing is retried or queued.
type Dispatcher struct {
	recipients RecipientSource
	email      EmailSender
	sms        SMSSender
	broadcast  Broadcaster
	logger     zerolog.Logger
}

// NewDispatcher wires the configured channels. Any sender may be nil.
func NewDispatcher(recipients RecipientSource, email EmailSender, sms SMSSender, broadcast Broadcaster, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		recipients: recipients,
		email:      email,
		sms:        sms,
		broadcast:  broadcast,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch resolves recipients for the event's symbol and attempts every
// configured channel for each of them. Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	log := d.logger.With().
		Str("event_id", event.ID.String()).
		Str("symbol", event.Symbol).
		Logger()

	if d.recipients != nil && (d.email != nil || d.sms != nil) {
		recipients, err := d.recipients.RecipientsFor(ctx, event.Symbol)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve recipients")
		} else {
			for _, r := range recipients {
				if d.email != nil && r.Email != nil {
					subject := fmt.Sprintf("Stock Alert for %s", event.Symbol)
					if err := d.email.SendEmail(ctx, *r.Email, subject, event.Message); err != nil {
						log.Error().Err(err).Str("to", *r.Email).Msg("email delivery failed")
					} else {
						log.Info().Str("to", *r.Email).Msg("email alert sent")
					}
				}
				if d.sms != nil && r.Phone != nil {
					if err := d.sms.SendSMS(ctx, *r.Phone, event.Message); err != nil {
						log.Error().Err(err).Str("to", *r.Phone).Msg("sms delivery failed")
					} else {
						log.Info().Str("to", *r.Phone).Msg("sms alert sent")
					}
				}
			}
		}
	}

	if d.broadcast != nil {
		if err := d.broadcast.Broadcast(ctx, event); err != nil {
			log.Error().Err(err).Msg("broadcast delivery failed")
		}
	}
}
