package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/idempotency"
)

//go:embed schema.sql
var schemaSQL string

// errReplay aborts a DB transaction whose reference or status check showed
// that the request was already applied.
var errReplay = errors.New("replay")

const txColumns = `id::text, owner_id, kind, amount, status, reference, external_reference,
	description, payload, refund_of::text, created_at, updated_at`

const paymentColumns = `reference, owner_id, amount, status, attempts, last_verified_at,
	transaction_id::text, created_at, updated_at`

// Postgres is the durable Ledger. Balance changes are single conditional
// UPDATE statements executed in the same DB transaction as the log write.
type Postgres struct {
	db     *pgxpool.Pool
	window time.Duration
}

func NewPostgres(ctx context.Context, connString string, window time.Duration) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return NewPostgresFromPool(pool, window), nil
}

func NewPostgresFromPool(pool *pgxpool.Pool, window time.Duration) *Postgres {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Postgres{db: pool, window: window}
}

func (s *Postgres) Close() {
	s.db.Close()
}

func (s *Postgres) Pool() *pgxpool.Pool {
	return s.db
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// classify passes domain errors through and marks everything else as a
// storage failure. The DB transaction was rolled back, so nothing applied.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrInvalidAmount,
		domain.ErrInvalidRequest,
		domain.ErrWalletNotFound,
		domain.ErrWalletInactive,
		domain.ErrInsufficientFunds,
		domain.ErrReferenceMismatch,
		domain.ErrTransactionNotFound,
		domain.ErrPaymentNotFound,
		domain.ErrInvalidTransition,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == "23505" }

func isForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

func scanTx(row pgx.Row) (domain.Transaction, error) {
	var (
		t        domain.Transaction
		kind     string
		status   string
		extRef   *string
		refundOf *string
		payload  []byte
	)
	err := row.Scan(&t.ID, &t.OwnerID, &kind, &t.Amount, &status, &t.Reference, &extRef,
		&t.Description, &payload, &refundOf, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Kind = domain.Kind(kind)
	t.Status = domain.Status(status)
	if extRef != nil {
		t.ExternalReference = *extRef
	}
	if refundOf != nil {
		t.RefundOf = *refundOf
	}
	if len(payload) > 0 {
		t.Payload = payload
	}
	return t, nil
}

func scanPayment(row pgx.Row) (domain.PendingPayment, error) {
	var (
		p      domain.PendingPayment
		status string
		txID   *string
	)
	err := row.Scan(&p.Reference, &p.OwnerID, &p.Amount, &status, &p.Attempts, &p.LastVerifiedAt,
		&txID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	if txID != nil {
		p.TransactionID = *txID
	}
	return p, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (s *Postgres) CreateWallet(ctx context.Context, ownerID string) (domain.Wallet, error) {
	if ownerID == "" {
		return domain.Wallet{}, domain.ErrInvalidRequest
	}
	_, err := s.db.Exec(ctx, "INSERT INTO wallets (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING", ownerID)
	if err != nil {
		return domain.Wallet{}, classify("create wallet", err)
	}
	return s.GetWallet(ctx, ownerID)
}

func (s *Postgres) GetWallet(ctx context.Context, ownerID string) (domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.QueryRow(ctx,
		"SELECT owner_id, balance, active, created_at, updated_at FROM wallets WHERE owner_id = $1",
		ownerID,
	).Scan(&w.OwnerID, &w.Balance, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	if err != nil {
		return domain.Wallet{}, classify("get wallet", err)
	}
	return w, nil
}

func (s *Postgres) SetWalletActive(ctx context.Context, ownerID string, active bool) (domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.QueryRow(ctx,
		`UPDATE wallets SET active = $2, updated_at = NOW() WHERE owner_id = $1
		 RETURNING owner_id, balance, active, created_at, updated_at`,
		ownerID, active,
	).Scan(&w.OwnerID, &w.Balance, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{}, domain.ErrWalletNotFound
	}
	if err != nil {
		return domain.Wallet{}, classify("set wallet active", err)
	}
	return w, nil
}

// claimKey inserts the (owner, reference) key, first dropping an expired
// claim. A concurrent claim for the same key blocks on the primary key until
// the other DB transaction finishes; false means the key is held.
func (s *Postgres) claimKey(ctx context.Context, tx pgx.Tx, ownerID, reference, transactionID string) (bool, error) {
	_, err := tx.Exec(ctx,
		"DELETE FROM idempotency_keys WHERE owner_id = $1 AND reference = $2 AND expires_at <= NOW()",
		ownerID, reference,
	)
	if err != nil {
		return false, fmt.Errorf("expire key failed: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO idempotency_keys (owner_id, reference, transaction_id, expires_at)
		 VALUES ($1, $2, $3, NOW() + ($4::bigint * INTERVAL '1 millisecond'))
		 ON CONFLICT (owner_id, reference) DO NOTHING`,
		ownerID, reference, transactionID, s.window.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("key reservation failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// replay loads the transaction a live key points at.
func (s *Postgres) replay(ctx context.Context, ownerID, reference string, kind domain.Kind, signedAmount int64) (domain.Entry, error) {
	var txID string
	err := s.db.QueryRow(ctx,
		"SELECT transaction_id::text FROM idempotency_keys WHERE owner_id = $1 AND reference = $2",
		ownerID, reference,
	).Scan(&txID)
	if err != nil {
		// the key expired between the claim attempt and this read
		return domain.Entry{}, classify("replay lookup", err)
	}
	t, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return domain.Entry{}, err
	}
	if !sameRequest(t, kind, signedAmount) {
		return domain.Entry{}, domain.ErrReferenceMismatch
	}
	w, err := s.GetWallet(ctx, ownerID)
	if err != nil {
		return domain.Entry{}, err
	}
	return domain.Entry{Transaction: t, NewBalance: w.Balance, Replayed: true}, nil
}

// walletRejection explains why a conditional balance update matched no row.
func walletRejection(ctx context.Context, tx pgx.Tx, ownerID string) error {
	var active bool
	err := tx.QueryRow(ctx, "SELECT active FROM wallets WHERE owner_id = $1", ownerID).Scan(&active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrWalletNotFound
	case err != nil:
		return err
	case !active:
		return domain.ErrWalletInactive
	default:
		return domain.ErrInsufficientFunds
	}
}

const insertTransaction = `
INSERT INTO transactions (id, owner_id, kind, amount, status, reference, description, refund_of)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid)
RETURNING ` + txColumns

func (s *Postgres) Reserve(ctx context.Context, p ReserveParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}

	var entry domain.Entry
	txID := uuid.NewString()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		claimed, err := s.claimKey(ctx, tx, p.OwnerID, p.Reference, txID)
		if err != nil {
			return err
		}
		if !claimed {
			return errReplay
		}

		// Subtract-if-sufficient in one statement; no read-then-write.
		err = tx.QueryRow(ctx,
			`UPDATE wallets SET balance = balance - $2, updated_at = NOW()
			 WHERE owner_id = $1 AND active AND balance >= $2
			 RETURNING balance`,
			p.OwnerID, p.Amount,
		).Scan(&entry.NewBalance)
		if errors.Is(err, pgx.ErrNoRows) {
			return walletRejection(ctx, tx, p.OwnerID)
		}
		if err != nil {
			return fmt.Errorf("debit failed: %w", err)
		}

		entry.Transaction, err = scanTx(tx.QueryRow(ctx, insertTransaction,
			txID, p.OwnerID, string(p.Kind), -p.Amount, string(domain.StatusPending),
			p.Reference, p.Description, nil,
		))
		if err != nil {
			return fmt.Errorf("transaction insert failed: %w", err)
		}
		return nil
	})
	if errors.Is(err, errReplay) {
		return s.replay(ctx, p.OwnerID, p.Reference, p.Kind, -p.Amount)
	}
	if err != nil {
		return domain.Entry{}, classify("reserve", err)
	}
	return entry, nil
}

func (s *Postgres) Credit(ctx context.Context, p CreditParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}

	var refundOf any
	if p.RefundOf != "" {
		refundOf = p.RefundOf
	}

	var entry domain.Entry
	txID := uuid.NewString()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		claimed, err := s.claimKey(ctx, tx, p.OwnerID, p.Reference, txID)
		if err != nil {
			return err
		}
		if !claimed {
			return errReplay
		}

		err = tx.QueryRow(ctx,
			`UPDATE wallets SET balance = balance + $2, updated_at = NOW()
			 WHERE owner_id = $1 AND active
			 RETURNING balance`,
			p.OwnerID, p.Amount,
		).Scan(&entry.NewBalance)
		if errors.Is(err, pgx.ErrNoRows) {
			return walletRejection(ctx, tx, p.OwnerID)
		}
		if err != nil {
			return fmt.Errorf("credit failed: %w", err)
		}

		entry.Transaction, err = scanTx(tx.QueryRow(ctx, insertTransaction,
			txID, p.OwnerID, string(p.Kind), p.Amount, string(domain.StatusSuccess),
			p.Reference, p.Description, refundOf,
		))
		if err != nil {
			return fmt.Errorf("transaction insert failed: %w", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, errReplay):
		return s.replay(ctx, p.OwnerID, p.Reference, p.Kind, p.Amount)
	case err != nil && p.RefundOf != "" && isUniqueViolation(err):
		return s.refundReplay(ctx, p.RefundOf)
	case err != nil:
		return domain.Entry{}, classify("credit", err)
	}
	return entry, nil
}

func (s *Postgres) refundReplay(ctx context.Context, originalID string) (domain.Entry, error) {
	t, err := scanTx(s.db.QueryRow(ctx, "SELECT "+txColumns+" FROM transactions WHERE refund_of = $1", originalID))
	if err != nil {
		return domain.Entry{}, classify("refund lookup", err)
	}
	w, err := s.GetWallet(ctx, t.OwnerID)
	if err != nil {
		return domain.Entry{}, err
	}
	return domain.Entry{Transaction: t, NewBalance: w.Balance, Replayed: true}, nil
}

// compensate inserts the refund row for orig and credits the wallet, unless
// a refund already exists. Runs inside the caller's DB transaction.
func compensate(ctx context.Context, tx pgx.Tx, orig domain.Transaction, reason string) (int64, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, owner_id, kind, amount, status, reference, description, refund_of)
		 VALUES ($1, $2, $3, $4, 'success', $5, $6, $7::uuid)
		 ON CONFLICT (refund_of) DO NOTHING`,
		uuid.NewString(), orig.OwnerID, string(domain.KindRefund), -orig.Amount,
		idempotency.RefundReference(orig.ID), refundDescription(orig, reason), orig.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("refund insert failed: %w", err)
	}

	var balance int64
	if tag.RowsAffected() == 0 {
		err = tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE owner_id = $1", orig.OwnerID).Scan(&balance)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE wallets SET balance = balance + $2, updated_at = NOW()
			 WHERE owner_id = $1 RETURNING balance`,
			orig.OwnerID, -orig.Amount,
		).Scan(&balance)
	}
	if err != nil {
		return 0, fmt.Errorf("refund credit failed: %w", err)
	}
	return balance, nil
}

func (s *Postgres) settled(ctx context.Context, id string) (domain.Entry, error) {
	t, err := s.GetTransaction(ctx, id)
	if err != nil {
		return domain.Entry{}, err
	}
	w, err := s.GetWallet(ctx, t.OwnerID)
	if err != nil {
		return domain.Entry{}, err
	}
	return domain.Entry{Transaction: t, NewBalance: w.Balance, Replayed: true}, nil
}

func (s *Postgres) Finalize(ctx context.Context, p FinalizeParams) (domain.Entry, error) {
	if err := p.validate(); err != nil {
		return domain.Entry{}, err
	}
	status := domain.StatusSuccess
	if p.Outcome == domain.OutcomeFailure {
		status = domain.StatusFailed
	}

	var entry domain.Entry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTx(tx.QueryRow(ctx,
			`UPDATE transactions
			 SET status = $2,
			     external_reference = COALESCE(NULLIF($3::text, ''), external_reference),
			     payload = COALESCE($4::jsonb, payload),
			     updated_at = NOW()
			 WHERE id = $1 AND status = 'pending'
			 RETURNING `+txColumns,
			p.TransactionID, string(status), p.ExternalReference, nullableJSON(p.Payload),
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return errReplay
		}
		if err != nil {
			return fmt.Errorf("status update failed: %w", err)
		}
		entry.Transaction = t

		if status == domain.StatusFailed {
			entry.NewBalance, err = compensate(ctx, tx, t, "provider failure")
			return err
		}
		return tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE owner_id = $1", t.OwnerID).Scan(&entry.NewBalance)
	})
	if errors.Is(err, errReplay) {
		return s.settled(ctx, p.TransactionID)
	}
	if err != nil {
		return domain.Entry{}, classify("finalize", err)
	}
	return entry, nil
}

func (s *Postgres) Reverse(ctx context.Context, transactionID, reason string) (domain.Entry, error) {
	var entry domain.Entry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTx(tx.QueryRow(ctx,
			`UPDATE transactions SET status = 'refunded', updated_at = NOW()
			 WHERE id = $1 AND status = 'success' AND amount < 0
			 RETURNING `+txColumns,
			transactionID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return errReplay
		}
		if err != nil {
			return fmt.Errorf("status update failed: %w", err)
		}
		entry.Transaction = t
		entry.NewBalance, err = compensate(ctx, tx, t, reason)
		return err
	})
	if errors.Is(err, errReplay) {
		settled, err := s.settled(ctx, transactionID)
		if err != nil {
			return domain.Entry{}, err
		}
		if settled.Transaction.Status != domain.StatusRefunded {
			return domain.Entry{}, domain.ErrInvalidTransition
		}
		return settled, nil
	}
	if err != nil {
		return domain.Entry{}, classify("reverse", err)
	}
	return entry, nil
}

func (s *Postgres) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	t, err := scanTx(s.db.QueryRow(ctx, "SELECT "+txColumns+" FROM transactions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	if err != nil {
		return domain.Transaction{}, classify("get transaction", err)
	}
	return t, nil
}

func (s *Postgres) GetTransactionByReference(ctx context.Context, ownerID, reference string) (domain.Transaction, error) {
	t, err := scanTx(s.db.QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE owner_id = $1 AND reference = $2 ORDER BY created_at DESC LIMIT 1",
		ownerID, reference,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	if err != nil {
		return domain.Transaction{}, classify("get transaction by reference", err)
	}
	return t, nil
}

func (s *Postgres) queryTransactions(ctx context.Context, op, sql string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Postgres) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryTransactions(ctx, "list transactions",
		"SELECT "+txColumns+" FROM transactions WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2",
		ownerID, limit,
	)
}

func (s *Postgres) ListStalePending(ctx context.Context, kinds []domain.Kind, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return s.queryTransactions(ctx, "list stale pending",
		"SELECT "+txColumns+` FROM transactions
		 WHERE status = 'pending' AND kind = ANY($1) AND created_at < $2
		 ORDER BY created_at LIMIT $3`,
		names, olderThan, limit,
	)
}

func (s *Postgres) PurgeExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM idempotency_keys WHERE expires_at <= $1", now)
	if err != nil {
		return 0, classify("purge keys", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) CreatePendingPayment(ctx context.Context, p domain.PendingPayment) (domain.PendingPayment, error) {
	if p.Reference == "" || p.OwnerID == "" {
		return domain.PendingPayment{}, domain.ErrInvalidRequest
	}
	if p.Amount <= 0 {
		return domain.PendingPayment{}, domain.ErrInvalidAmount
	}
	created, err := scanPayment(s.db.QueryRow(ctx,
		`INSERT INTO pending_payments (reference, owner_id, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (reference) DO NOTHING
		 RETURNING `+paymentColumns,
		p.Reference, p.OwnerID, p.Amount,
	))
	switch {
	case err == nil:
		return created, nil
	case isForeignKeyViolation(err):
		return domain.PendingPayment{}, domain.ErrWalletNotFound
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.PendingPayment{}, classify("create pending payment", err)
	}

	existing, err := s.GetPendingPayment(ctx, p.Reference)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if existing.OwnerID != p.OwnerID || existing.Amount != p.Amount {
		return domain.PendingPayment{}, domain.ErrReferenceMismatch
	}
	return existing, nil
}

func (s *Postgres) GetPendingPayment(ctx context.Context, reference string) (domain.PendingPayment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx,
		"SELECT "+paymentColumns+" FROM pending_payments WHERE reference = $1", reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingPayment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.PendingPayment{}, classify("get pending payment", err)
	}
	return p, nil
}

func (s *Postgres) ListPendingPayments(ctx context.Context, limit int) ([]domain.PendingPayment, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+paymentColumns+" FROM pending_payments WHERE status = 'pending' ORDER BY created_at LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, classify("list pending payments", err)
	}
	defer rows.Close()

	var out []domain.PendingPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, classify("list pending payments", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list pending payments", err)
	}
	return out, nil
}

func (s *Postgres) RecordVerification(ctx context.Context, reference string, at time.Time) (domain.PendingPayment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx,
		`UPDATE pending_payments
		 SET attempts = attempts + 1, last_verified_at = $2, updated_at = NOW()
		 WHERE reference = $1 AND status = 'pending'
		 RETURNING `+paymentColumns,
		reference, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.GetPendingPayment(ctx, reference)
	}
	if err != nil {
		return domain.PendingPayment{}, classify("record verification", err)
	}
	return p, nil
}

func (s *Postgres) MarkPaymentCredited(ctx context.Context, reference, transactionID string) error {
	return s.settlePayment(ctx, reference, domain.PaymentCredited, transactionID)
}

func (s *Postgres) MarkPaymentFailed(ctx context.Context, reference string) error {
	return s.settlePayment(ctx, reference, domain.PaymentFailed, "")
}

func (s *Postgres) settlePayment(ctx context.Context, reference string, to domain.PaymentStatus, transactionID string) error {
	var txID any
	if transactionID != "" {
		txID = transactionID
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE pending_payments SET status = $2, transaction_id = $3::uuid, updated_at = NOW()
		 WHERE reference = $1 AND status = 'pending'`,
		reference, string(to), txID,
	)
	if err != nil {
		return classify("settle payment", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := s.GetPendingPayment(ctx, reference)
	if err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return domain.ErrInvalidTransition
}

var _ Ledger = (*Postgres)(nil)
