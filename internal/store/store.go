package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

// DefaultDedupWindow is how long an idempotency reference stays claimed.
const DefaultDedupWindow = 30 * time.Minute

// Ledger is the only component allowed to mutate wallet balances. Every
// balance change and its transaction row are applied as one atomic unit;
// an error return means nothing was applied.
type Ledger interface {
	CreateWallet(ctx context.Context, ownerID string) (domain.Wallet, error)
	GetWallet(ctx context.Context, ownerID string) (domain.Wallet, error)
	SetWalletActive(ctx context.Context, ownerID string, active bool) (domain.Wallet, error)

	// Reserve debits the wallet and records a pending transaction. A live
	// reference returns the existing transaction with Replayed set.
	Reserve(ctx context.Context, p ReserveParams) (domain.Entry, error)
	// Credit increases the balance and records a successful transaction,
	// with the same reference semantics as Reserve.
	Credit(ctx context.Context, p CreditParams) (domain.Entry, error)
	// Finalize moves a pending transaction to success, or to failed with a
	// compensating credit. Finalizing a terminal transaction is a no-op.
	Finalize(ctx context.Context, p FinalizeParams) (domain.Entry, error)
	// Reverse turns a successful debit into refunded and credits it back once.
	Reverse(ctx context.Context, transactionID, reason string) (domain.Entry, error)

	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, ownerID, reference string) (domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error)
	ListStalePending(ctx context.Context, kinds []domain.Kind, olderThan time.Time, limit int) ([]domain.Transaction, error)
	PurgeExpiredKeys(ctx context.Context, now time.Time) (int64, error)

	Payments
}

// Payments tracks deposits waiting on the payment processor.
type Payments interface {
	CreatePendingPayment(ctx context.Context, p domain.PendingPayment) (domain.PendingPayment, error)
	GetPendingPayment(ctx context.Context, reference string) (domain.PendingPayment, error)
	ListPendingPayments(ctx context.Context, limit int) ([]domain.PendingPayment, error)
	RecordVerification(ctx context.Context, reference string, at time.Time) (domain.PendingPayment, error)
	MarkPaymentCredited(ctx context.Context, reference, transactionID string) error
	MarkPaymentFailed(ctx context.Context, reference string) error
}

type ReserveParams struct {
	OwnerID     string
	Amount      int64 // positive; stored negated
	Kind        domain.Kind
	Reference   string
	Description string
}

type CreditParams struct {
	OwnerID     string
	Amount      int64
	Kind        domain.Kind
	Reference   string
	Description string
	RefundOf    string
}

type FinalizeParams struct {
	TransactionID     string
	Outcome           domain.Outcome
	ExternalReference string
	Payload           json.RawMessage
}

func (p ReserveParams) validate() error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if p.OwnerID == "" || p.Reference == "" || !p.Kind.Valid() {
		return domain.ErrInvalidRequest
	}
	return nil
}

func (p CreditParams) validate() error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if p.OwnerID == "" || p.Reference == "" || !p.Kind.Valid() {
		return domain.ErrInvalidRequest
	}
	return nil
}

func (p FinalizeParams) validate() error {
	if p.TransactionID == "" {
		return domain.ErrInvalidRequest
	}
	if p.Outcome != domain.OutcomeSuccess && p.Outcome != domain.OutcomeFailure {
		return domain.ErrInvalidRequest
	}
	return nil
}

// sameRequest reports whether an existing transaction claimed under a
// reference describes the same logical request.
func sameRequest(tx domain.Transaction, kind domain.Kind, signedAmount int64) bool {
	return tx.Kind == kind && tx.Amount == signedAmount
}

func refundDescription(orig domain.Transaction, reason string) string {
	if reason == "" {
		reason = "reversal"
	}
	return "Refund for " + string(orig.Kind) + " " + orig.ID + ": " + reason
}
