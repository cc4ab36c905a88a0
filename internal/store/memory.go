package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/idempotency"
)

type keyID struct {
	owner     string
	reference string
}

type claim struct {
	transactionID string
	expiresAt     time.Time
}

// Memory is an in-process Ledger. A single mutex makes every operation one
// atomic unit, which mirrors what the Postgres store gets from a DB transaction.
type Memory struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	wallets  map[string]*domain.Wallet
	txs      map[string]*domain.Transaction
	order    []string
	keys     map[keyID]claim
	refunds  map[string]string
	payments map[string]*domain.PendingPayment
}

func NewMemory(clk clock.Clock, window time.Duration) *Memory {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Memory{
		clock:    clk,
		window:   window,
		wallets:  make(map[string]*domain.Wallet),
		txs:      make(map[string]*domain.Transaction),
		keys:     make(map[keyID]claim),
		refunds:  make(map[string]string),
		payments: make(map[string]*domain.PendingPayment),
	}
}

func (m *Memory) CreateWallet(ctx context.Context, ownerID string) (domain.Wallet, error) {
	if ownerID == "" {
		return domain.Wallet{}, domain.ErrInvalidRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[ownerID]; ok {
		return *w, nil
	}
	now := m.clock.Now()
	w := &domain.Wallet{OwnerID: ownerID, Active: true, CreatedAt: now, UpdatedAt: now}
	m.wallets[ownerID] = w
	return *w, nil
}

func (m *Memory) GetWallet(ctx context.Context, ownerID string) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[ownerID]
	if !ok {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	return *w, nil
}

func (m *Memory) SetWalletActive(ctx context.Context, ownerID string, active bool) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[ownerID]
	if !ok {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	w.Active = active
	w.UpdatedAt = m.clock.Now()
	return *w, nil
}

// replayLocked returns the live transaction claimed under key, if any.
func (m *Memory) replayLocked(k keyID, now time.Time) (*domain.Transaction, bool) {
	c, ok := m.keys[k]
	if !ok {
		return nil, false
	}
	if !now.Before(c.expiresAt) {
		delete(m.keys, k)
		return nil, false
	}
	return m.txs[c.transactionID], true
}

func (m *Memory) Reserve(ctx context.Context, p ReserveParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.wallets[p.OwnerID]
	if !ok {
		return domain.Entry{}, domain.ErrWalletNotFound
	}
	k := keyID{p.OwnerID, p.Reference}
	if existing, ok := m.replayLocked(k, now); ok {
		if !sameRequest(*existing, p.Kind, -p.Amount) {
			return domain.Entry{}, domain.ErrReferenceMismatch
		}
		return domain.Entry{Transaction: *existing, NewBalance: w.Balance, Replayed: true}, nil
	}
	if !w.Active {
		return domain.Entry{}, domain.ErrWalletInactive
	}
	if w.Balance < p.Amount {
		return domain.Entry{}, domain.ErrInsufficientFunds
	}

	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     p.OwnerID,
		Kind:        p.Kind,
		Amount:      -p.Amount,
		Status:      domain.StatusPending,
		Reference:   p.Reference,
		Description: p.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.Balance -= p.Amount
	w.UpdatedAt = now
	m.insertLocked(tx)
	m.keys[k] = claim{transactionID: tx.ID, expiresAt: now.Add(m.window)}
	return domain.Entry{Transaction: *tx, NewBalance: w.Balance}, nil
}

func (m *Memory) Credit(ctx context.Context, p CreditParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.wallets[p.OwnerID]
	if !ok {
		return domain.Entry{}, domain.ErrWalletNotFound
	}
	k := keyID{p.OwnerID, p.Reference}
	if existing, ok := m.replayLocked(k, now); ok {
		if !sameRequest(*existing, p.Kind, p.Amount) {
			return domain.Entry{}, domain.ErrReferenceMismatch
		}
		return domain.Entry{Transaction: *existing, NewBalance: w.Balance, Replayed: true}, nil
	}
	if p.RefundOf != "" {
		if id, ok := m.refunds[p.RefundOf]; ok {
			return domain.Entry{Transaction: *m.txs[id], NewBalance: w.Balance, Replayed: true}, nil
		}
	}
	if !w.Active {
		return domain.Entry{}, domain.ErrWalletInactive
	}

	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     p.OwnerID,
		Kind:        p.Kind,
		Amount:      p.Amount,
		Status:      domain.StatusSuccess,
		Reference:   p.Reference,
		Description: p.Description,
		RefundOf:    p.RefundOf,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.Balance += p.Amount
	w.UpdatedAt = now
	m.insertLocked(tx)
	if p.RefundOf != "" {
		m.refunds[p.RefundOf] = tx.ID
	}
	m.keys[k] = claim{transactionID: tx.ID, expiresAt: now.Add(m.window)}
	return domain.Entry{Transaction: *tx, NewBalance: w.Balance}, nil
}

func (m *Memory) Finalize(ctx context.Context, p FinalizeParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[p.TransactionID]
	if !ok {
		return domain.Entry{}, domain.ErrTransactionNotFound
	}
	w := m.wallets[tx.OwnerID]
	if tx.Status.Terminal() {
		return domain.Entry{Transaction: *tx, NewBalance: w.Balance, Replayed: true}, nil
	}

	now := m.clock.Now()
	if p.ExternalReference != "" {
		tx.ExternalReference = p.ExternalReference
	}
	if len(p.Payload) > 0 {
		tx.Payload = append([]byte(nil), p.Payload...)
	}
	tx.UpdatedAt = now
	if p.Outcome == domain.OutcomeSuccess {
		tx.Status = domain.StatusSuccess
		return domain.Entry{Transaction: *tx, NewBalance: w.Balance}, nil
	}
	tx.Status = domain.StatusFailed
	m.compensateLocked(tx, "provider failure", now)
	return domain.Entry{Transaction: *tx, NewBalance: w.Balance}, nil
}

func (m *Memory) Reverse(ctx context.Context, transactionID, reason string) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[transactionID]
	if !ok {
		return domain.Entry{}, domain.ErrTransactionNotFound
	}
	w := m.wallets[tx.OwnerID]
	switch {
	case tx.Status == domain.StatusRefunded:
		return domain.Entry{Transaction: *tx, NewBalance: w.Balance, Replayed: true}, nil
	case tx.Status != domain.StatusSuccess || tx.Amount >= 0:
		return domain.Entry{}, domain.ErrInvalidTransition
	}
	now := m.clock.Now()
	tx.Status = domain.StatusRefunded
	tx.UpdatedAt = now
	m.compensateLocked(tx, reason, now)
	return domain.Entry{Transaction: *tx, NewBalance: w.Balance}, nil
}

// compensateLocked credits a debit back at most once. Inactive wallets
// still receive compensation.
func (m *Memory) compensateLocked(orig *domain.Transaction, reason string, now time.Time) {
	if _, done := m.refunds[orig.ID]; done {
		return
	}
	w := m.wallets[orig.OwnerID]
	refund := &domain.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     orig.OwnerID,
		Kind:        domain.KindRefund,
		Amount:      -orig.Amount,
		Status:      domain.StatusSuccess,
		Reference:   idempotency.RefundReference(orig.ID),
		Description: refundDescription(*orig, reason),
		RefundOf:    orig.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.Balance += refund.Amount
	w.UpdatedAt = now
	m.insertLocked(refund)
	m.refunds[orig.ID] = refund.ID
}

func (m *Memory) insertLocked(tx *domain.Transaction) {
	m.txs[tx.ID] = tx
	m.order = append(m.order, tx.ID)
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return *tx, nil
}

func (m *Memory) GetTransactionByReference(ctx context.Context, ownerID, reference string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		tx := m.txs[m.order[i]]
		if tx.OwnerID == ownerID && tx.Reference == reference {
			return *tx, nil
		}
	}
	return domain.Transaction{}, domain.ErrTransactionNotFound
}

// ListTransactions returns the owner's transactions, newest first.
func (m *Memory) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if tx := m.txs[m.order[i]]; tx.OwnerID == ownerID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *Memory) ListStalePending(ctx context.Context, kinds []domain.Kind, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	want := make(map[domain.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, id := range m.order {
		tx := m.txs[id]
		if tx.Status == domain.StatusPending && want[tx.Kind] && tx.CreatedAt.Before(olderThan) {
			out = append(out, *tx)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) PurgeExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.keys {
		if !now.Before(c.expiresAt) {
			delete(m.keys, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreatePendingPayment(ctx context.Context, p domain.PendingPayment) (domain.PendingPayment, error) {
	if p.Reference == "" || p.OwnerID == "" {
		return domain.PendingPayment{}, domain.ErrInvalidRequest
	}
	if p.Amount <= 0 {
		return domain.PendingPayment{}, domain.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[p.OwnerID]; !ok {
		return domain.PendingPayment{}, domain.ErrWalletNotFound
	}
	if existing, ok := m.payments[p.Reference]; ok {
		if existing.OwnerID != p.OwnerID || existing.Amount != p.Amount {
			return domain.PendingPayment{}, domain.ErrReferenceMismatch
		}
		return *existing, nil
	}
	now := m.clock.Now()
	pp := &domain.PendingPayment{
		Reference: p.Reference,
		OwnerID:   p.OwnerID,
		Amount:    p.Amount,
		Status:    domain.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.payments[p.Reference] = pp
	return *pp, nil
}

func (m *Memory) GetPendingPayment(ctx context.Context, reference string) (domain.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pp, ok := m.payments[reference]
	if !ok {
		return domain.PendingPayment{}, domain.ErrPaymentNotFound
	}
	return *pp, nil
}

// ListPendingPayments returns payments still awaiting confirmation, oldest first.
func (m *Memory) ListPendingPayments(ctx context.Context, limit int) ([]domain.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingPayment
	for _, pp := range m.payments {
		if pp.Status == domain.PaymentPending {
			out = append(out, *pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecordVerification(ctx context.Context, reference string, at time.Time) (domain.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pp, ok := m.payments[reference]
	if !ok {
		return domain.PendingPayment{}, domain.ErrPaymentNotFound
	}
	if pp.Status != domain.PaymentPending {
		return *pp, nil
	}
	pp.Attempts++
	t := at
	pp.LastVerifiedAt = &t
	pp.UpdatedAt = m.clock.Now()
	return *pp, nil
}

func (m *Memory) MarkPaymentCredited(ctx context.Context, reference, transactionID string) error {
	return m.settlePayment(reference, domain.PaymentCredited, transactionID)
}

func (m *Memory) MarkPaymentFailed(ctx context.Context, reference string) error {
	return m.settlePayment(reference, domain.PaymentFailed, "")
}

func (m *Memory) settlePayment(reference string, to domain.PaymentStatus, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pp, ok := m.payments[reference]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	switch pp.Status {
	case to:
		return nil
	case domain.PaymentPending:
		pp.Status = to
		pp.TransactionID = transactionID
		pp.UpdatedAt = m.clock.Now()
		return nil
	default:
		return domain.ErrInvalidTransition
	}
}

var _ Ledger = (*Memory)(nil)
