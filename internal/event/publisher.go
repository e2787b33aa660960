// Package event publishes the side effects of a reconciled payment.
package event

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PaymentCompleted Type = "payment.completed"
	PaymentCancelled Type = "payment.cancelled"
	VbankDeposited   Type = "vbank.deposited"
)

type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	SiteID      string    `json:"site_id"`
	ImpUID      string    `json:"imp_uid"`
	MerchantUID string    `json:"merchant_uid"`
	CustomerUID string    `json:"customer_uid,omitempty"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func New(t Type, siteID, impUID, merchantUID string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		SiteID:      siteID,
		ImpUID:      impUID,
		MerchantUID: merchantUID,
		OccurredAt:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the process log only.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "payment event",
		"event_id", e.ID,
		"type", e.Type,
		"site_id", e.SiteID,
		"imp_uid", e.ImpUID,
		"merchant_uid", e.MerchantUID,
		"amount", e.Amount,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
