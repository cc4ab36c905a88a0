package events

import (
	"context"
	"time"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

const TopicTransactionSettled = "vtu.transaction.settled"

// TransactionSettled is emitted when a transaction reaches a terminal state.
// Notification fan-out (push, email, bots) consumes it downstream.
type TransactionSettled struct {
	TransactionID     string        `json:"transaction_id"`
	OwnerID           string        `json:"owner_id"`
	Kind              domain.Kind   `json:"kind"`
	Amount            int64         `json:"amount"`
	Status            domain.Status `json:"status"`
	Reference         string        `json:"reference"`
	ExternalReference string        `json:"external_reference,omitempty"`
	RefundOf          string        `json:"refund_of,omitempty"`
	NewBalance        int64         `json:"new_balance"`
	OccurredAt        time.Time     `json:"occurred_at"`
}

func NewTransactionSettled(e domain.Entry, at time.Time) TransactionSettled {
	t := e.Transaction
	return TransactionSettled{
		TransactionID:     t.ID,
		OwnerID:           t.OwnerID,
		Kind:              t.Kind,
		Amount:            t.Amount,
		Status:            t.Status,
		Reference:         t.Reference,
		ExternalReference: t.ExternalReference,
		RefundOf:          t.RefundOf,
		NewBalance:        e.NewBalance,
		OccurredAt:        at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

// Noop drops events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }
