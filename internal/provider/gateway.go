// Package provider abstracts the VTU and payment providers that fulfill
// wallet transactions. Providers only ever report an outcome; the ledger
// decides what that outcome means for the balance.
package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

// Outcome is how a provider classified a fulfillment or status lookup.
type Outcome string

const (
	Confirmed Outcome = "confirmed"
	Declined  Outcome = "declined"
	Ambiguous Outcome = "ambiguous"
	// Reversed is only reported by status lookups on previously confirmed work.
	Reversed Outcome = "reversed"
)

var ErrNoGateway = errors.New("no provider configured for kind")

type FulfillRequest struct {
	TransactionID string
	Reference     string
	Kind          domain.Kind
	Amount        int64
	Recipient     string
	Params        map[string]string
}

type Result struct {
	Outcome           Outcome
	ExternalReference string
	Payload           json.RawMessage
	Message           string
}

// Gateway is implemented by every provider adapter. A non-nil error is
// treated by callers exactly like an Ambiguous result.
type Gateway interface {
	Fulfill(ctx context.Context, req FulfillRequest) (Result, error)
	Status(ctx context.Context, kind domain.Kind, reference string) (Result, error)
}

// PaymentState is what a payment processor reports for a deposit.
type PaymentState string

const (
	PaymentPaid    PaymentState = "paid"
	PaymentFailed  PaymentState = "failed"
	PaymentUnknown PaymentState = "unknown"
)

type Verification struct {
	State  PaymentState
	Amount int64
	// OwnerID is the wallet owner the processor has on the payment's
	// metadata, empty when the processor does not report one.
	OwnerID string
	Payload json.RawMessage
}

// PaymentVerifier confirms externally initiated deposits by reference.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (Verification, error)
}
