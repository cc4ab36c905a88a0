package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

const naira = int64(100)

// runLedgerSuite exercises behavior every Ledger implementation must share.
func runLedgerSuite(t *testing.T, newLedger func(t *testing.T) Ledger) {
	ctx := context.Background()

	fund := func(t *testing.T, l Ledger, amount int64) string {
		t.Helper()
		owner := "user-" + uuid.NewString()
		_, err := l.CreateWallet(ctx, owner)
		require.NoError(t, err)
		if amount > 0 {
			_, err = l.Credit(ctx, CreditParams{
				OwnerID: owner, Amount: amount, Kind: domain.KindDeposit, Reference: "seed-" + owner,
			})
			require.NoError(t, err)
		}
		return owner
	}

	balance := func(t *testing.T, l Ledger, owner string) int64 {
		t.Helper()
		w, err := l.GetWallet(ctx, owner)
		require.NoError(t, err)
		return w.Balance
	}

	t.Run("reserve then finalize success keeps the debit", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 300 * naira, Kind: domain.KindData, Reference: "r1"})
		require.NoError(t, err)
		assert.False(t, e.Replayed)
		assert.Equal(t, 700*naira, e.NewBalance)
		assert.Equal(t, domain.StatusPending, e.Transaction.Status)
		assert.Equal(t, -300*naira, e.Transaction.Amount)

		f, err := l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeSuccess, ExternalReference: "ext-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, f.Transaction.Status)
		assert.Equal(t, "ext-1", f.Transaction.ExternalReference)
		assert.Equal(t, 700*naira, balance(t, l, owner))
	})

	t.Run("reserve then finalize failure restores the balance", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 300 * naira, Kind: domain.KindData, Reference: "r1"})
		require.NoError(t, err)
		assert.Equal(t, 700*naira, e.NewBalance)

		f, err := l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeFailure})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, f.Transaction.Status)
		assert.Equal(t, 1000*naira, f.NewBalance)
		assert.Equal(t, 1000*naira, balance(t, l, owner))

		txs, err := l.ListTransactions(ctx, owner, 0)
		require.NoError(t, err)
		var refunds []domain.Transaction
		for _, tx := range txs {
			if tx.Kind == domain.KindRefund {
				refunds = append(refunds, tx)
			}
		}
		require.Len(t, refunds, 1)
		assert.Equal(t, e.Transaction.ID, refunds[0].RefundOf)
		assert.Equal(t, 300*naira, refunds[0].Amount)
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 500*naira)

		_, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 600 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, 500*naira, balance(t, l, owner))

		_, err = l.GetTransactionByReference(ctx, owner, "r1")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

		// the failed attempt must not hold the reference
		_, err = l.Credit(ctx, CreditParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindDeposit, Reference: "top-up"})
		require.NoError(t, err)
		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 600 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		require.NoError(t, err)
		assert.False(t, e.Replayed)
		assert.Equal(t, int64(0), e.NewBalance)
	})

	t.Run("simultaneous identical references debit once", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		const callers = 8
		entries := make([]domain.Entry, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				entries[i], errs[i] = l.Reserve(ctx, ReserveParams{
					OwnerID: owner, Amount: 200 * naira, Kind: domain.KindData, Reference: "same-ref",
				})
			}(i)
		}
		wg.Wait()

		created := 0
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			if !entries[i].Replayed {
				created++
			}
			assert.Equal(t, entries[0].Transaction.ID, entries[i].Transaction.ID)
		}
		assert.Equal(t, 1, created)
		assert.Equal(t, 800*naira, balance(t, l, owner))
	})

	t.Run("concurrent reserves never overdraw", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		const callers = 40
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int64
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := l.Reserve(ctx, ReserveParams{
					OwnerID: owner, Amount: 100 * naira, Kind: domain.KindAirtime, Reference: fmt.Sprintf("r-%d", i),
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(10), succeeded)
		assert.Equal(t, int64(0), balance(t, l, owner))
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 250 * naira, Kind: domain.KindCable, Reference: "r1"})
		require.NoError(t, err)

		_, err = l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeSuccess})
		require.NoError(t, err)
		again, err := l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeSuccess})
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, 750*naira, balance(t, l, owner))

		// a late failure report cannot reopen a terminal transaction
		late, err := l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeFailure})
		require.NoError(t, err)
		assert.True(t, late.Replayed)
		assert.Equal(t, domain.StatusSuccess, late.Transaction.Status)
		assert.Equal(t, 750*naira, balance(t, l, owner))
	})

	t.Run("concurrent failure finalizes refund once", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 200 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeFailure})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1000*naira, balance(t, l, owner))
	})

	t.Run("finalize unknown transaction", func(t *testing.T) {
		l := newLedger(t)
		_, err := l.Finalize(ctx, FinalizeParams{TransactionID: uuid.NewString(), Outcome: domain.OutcomeSuccess})
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})

	t.Run("credit replays on a live reference", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 0)

		first, err := l.Credit(ctx, CreditParams{OwnerID: owner, Amount: 50 * naira, Kind: domain.KindDeposit, Reference: "flw-1"})
		require.NoError(t, err)
		second, err := l.Credit(ctx, CreditParams{OwnerID: owner, Amount: 50 * naira, Kind: domain.KindDeposit, Reference: "flw-1"})
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, 50*naira, balance(t, l, owner))
	})

	t.Run("reference reused for a different request", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		_, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindAirtime, Reference: "client-7"})
		require.NoError(t, err)
		_, err = l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 150 * naira, Kind: domain.KindAirtime, Reference: "client-7"})
		assert.ErrorIs(t, err, domain.ErrReferenceMismatch)
		assert.Equal(t, 900*naira, balance(t, l, owner))
	})

	t.Run("inactive wallet rejects mutations", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		_, err := l.SetWalletActive(ctx, owner, false)
		require.NoError(t, err)
		_, err = l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		assert.ErrorIs(t, err, domain.ErrWalletInactive)
		_, err = l.Credit(ctx, CreditParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindDeposit, Reference: "d1"})
		assert.ErrorIs(t, err, domain.ErrWalletInactive)

		_, err = l.Reserve(ctx, ReserveParams{OwnerID: "nobody", Amount: 100 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	})

	t.Run("invalid amounts are rejected", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)
		_, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 0, Kind: domain.KindAirtime, Reference: "r1"})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = l.Credit(ctx, CreditParams{OwnerID: owner, Amount: -5, Kind: domain.KindDeposit, Reference: "r2"})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("reverse refunds a successful debit once", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 400 * naira, Kind: domain.KindElectricity, Reference: "r1"})
		require.NoError(t, err)
		_, err = l.Finalize(ctx, FinalizeParams{TransactionID: e.Transaction.ID, Outcome: domain.OutcomeSuccess})
		require.NoError(t, err)

		r, err := l.Reverse(ctx, e.Transaction.ID, "provider reversal")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, r.Transaction.Status)
		assert.Equal(t, 1000*naira, r.NewBalance)

		again, err := l.Reverse(ctx, e.Transaction.ID, "provider reversal")
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, 1000*naira, balance(t, l, owner))

		p, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindData, Reference: "r2"})
		require.NoError(t, err)
		_, err = l.Reverse(ctx, p.Transaction.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("stale pending listing filters kind and age", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 1000*naira)

		e, err := l.Reserve(ctx, ReserveParams{OwnerID: owner, Amount: 100 * naira, Kind: domain.KindAirtime, Reference: "r1"})
		require.NoError(t, err)

		future := time.Now().Add(time.Hour)
		stale, err := l.ListStalePending(ctx, []domain.Kind{domain.KindAirtime}, future, 0)
		require.NoError(t, err)
		assert.True(t, containsTx(stale, e.Transaction.ID))

		stale, err = l.ListStalePending(ctx, []domain.Kind{domain.KindData}, future, 0)
		require.NoError(t, err)
		assert.False(t, containsTx(stale, e.Transaction.ID))

		stale, err = l.ListStalePending(ctx, []domain.Kind{domain.KindAirtime}, time.Now().Add(-time.Hour), 0)
		require.NoError(t, err)
		assert.False(t, containsTx(stale, e.Transaction.ID))
	})

	t.Run("pending payment lifecycle", func(t *testing.T) {
		l := newLedger(t)
		owner := fund(t, l, 0)
		ref := "flw-" + uuid.NewString()

		p, err := l.CreatePendingPayment(ctx, domain.PendingPayment{Reference: ref, OwnerID: owner, Amount: 5000 * naira})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPending, p.Status)

		_, err = l.CreatePendingPayment(ctx, domain.PendingPayment{Reference: ref, OwnerID: owner, Amount: 1 * naira})
		assert.ErrorIs(t, err, domain.ErrReferenceMismatch)

		p, err = l.RecordVerification(ctx, ref, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, p.Attempts)
		require.NotNil(t, p.LastVerifiedAt)

		e, err := l.Credit(ctx, CreditParams{OwnerID: owner, Amount: 5000 * naira, Kind: domain.KindDeposit, Reference: ref})
		require.NoError(t, err)
		require.NoError(t, l.MarkPaymentCredited(ctx, ref, e.Transaction.ID))
		require.NoError(t, l.MarkPaymentCredited(ctx, ref, e.Transaction.ID))
		assert.ErrorIs(t, l.MarkPaymentFailed(ctx, ref), domain.ErrInvalidTransition)

		got, err := l.GetPendingPayment(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCredited, got.Status)
		assert.Equal(t, e.Transaction.ID, got.TransactionID)

		_, err = l.GetPendingPayment(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}

func containsTx(txs []domain.Transaction, id string) bool {
	for _, tx := range txs {
		if tx.ID == id {
			return true
		}
	}
	return false
}
