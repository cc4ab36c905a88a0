package models

import "github.com/punchamoorthee/vtuledger/internal/domain"

// Amounts on the wire are decimal naira strings ("150.50"); the ledger
// stores kobo.

// PurchaseRequest is the payload for POST /api/v1/purchases.
type PurchaseRequest struct {
	Kind      domain.Kind       `json:"kind"`
	Amount    string            `json:"amount"`
	Recipient string            `json:"recipient"`
	Reference string            `json:"reference,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// DepositRequest is the payload for POST /api/v1/deposits.
type DepositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// Transaction is the client view of a ledger row.
type Transaction struct {
	ID                string        `json:"id"`
	Kind              domain.Kind   `json:"kind"`
	Amount            string        `json:"amount"`
	Status            domain.Status `json:"status"`
	Reference         string        `json:"reference"`
	ExternalReference string        `json:"external_reference,omitempty"`
	Description       string        `json:"description,omitempty"`
	RefundOf          string        `json:"refund_of,omitempty"`
	CreatedAt         string        `json:"created_at"`
	UpdatedAt         string        `json:"updated_at"`
}

// PurchaseResponse is returned for new, replayed and processing purchases.
type PurchaseResponse struct {
	Status      string      `json:"status"`
	Message     string      `json:"message,omitempty"`
	Replayed    bool        `json:"replayed"`
	Balance     string      `json:"balance"`
	Transaction Transaction `json:"transaction"`
}

type Wallet struct {
	OwnerID string `json:"owner_id"`
	Balance string `json:"balance"`
	Active  bool   `json:"active"`
}

type Deposit struct {
	Reference     string               `json:"reference"`
	Amount        string               `json:"amount"`
	Status        domain.PaymentStatus `json:"status"`
	Attempts      int                  `json:"attempts"`
	TransactionID string               `json:"transaction_id,omitempty"`
}

type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
}

// SweepResponse is the scheduler-facing sweep summary.
type SweepResponse struct {
	ProcessedCount int `json:"processedCount"`
	ErrorCount     int `json:"errorCount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
