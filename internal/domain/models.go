package domain

import (
	"encoding/json"
	"time"
)

// Kind classifies what a transaction did to the wallet.
type Kind string

const (
	KindDeposit        Kind = "deposit"
	KindAirtime        Kind = "airtime"
	KindData           Kind = "data"
	KindCable          Kind = "cable"
	KindElectricity    Kind = "electricity"
	KindWithdrawal     Kind = "withdrawal"
	KindRefund         Kind = "refund"
	KindGiftAdjustment Kind = "gift-adjustment"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindAirtime, KindData, KindCable, KindElectricity,
		KindWithdrawal, KindRefund, KindGiftAdjustment:
		return true
	}
	return false
}

// IsPurchase reports whether k debits the wallet and is fulfilled by an external provider.
func (k Kind) IsPurchase() bool {
	switch k {
	case KindAirtime, KindData, KindCable, KindElectricity, KindWithdrawal:
		return true
	}
	return false
}

// RefundableKinds are the kinds the sweeper is allowed to fail and compensate.
var RefundableKinds = []Kind{KindAirtime, KindData, KindCable, KindElectricity, KindWithdrawal}

// Status is the lifecycle state of a transaction record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// Terminal reports whether no further transition out of s is allowed,
// with the exception of success -> refunded via an explicit reversal.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Outcome is the result a caller reports when finalizing a pending transaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Wallet holds a user's balance in minor units (kobo).
type Wallet struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one row of the append-mostly transaction log.
// Amount is signed: negative for debits, positive for credits.
type Transaction struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	Kind              Kind            `json:"kind"`
	Amount            int64           `json:"amount"`
	Status            Status          `json:"status"`
	Reference         string          `json:"reference"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Description       string          `json:"description,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	RefundOf          string          `json:"refund_of,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Entry is what the ledger returns from a balance mutation.
// Replayed is set when the reference matched a live existing transaction
// and nothing was mutated.
type Entry struct {
	Transaction Transaction `json:"transaction"`
	NewBalance  int64       `json:"new_balance"`
	Replayed    bool        `json:"replayed"`
}

// PaymentStatus is the state of a deposit awaiting processor confirmation.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentCredited PaymentStatus = "credited"
	PaymentFailed   PaymentStatus = "failed"
)

// PendingPayment tracks an externally initiated deposit until it is verified.
type PendingPayment struct {
	Reference      string        `json:"reference"`
	OwnerID        string        `json:"owner_id"`
	Amount         int64         `json:"amount"`
	Status         PaymentStatus `json:"status"`
	Attempts       int           `json:"attempts"`
	LastVerifiedAt *time.Time    `json:"last_verified_at,omitempty"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
