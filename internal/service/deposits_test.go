package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/provider"
)

func (h *harness) deposits() *Deposits {
	return NewDeposits(DepositsConfig{
		Ledger:   h.ledger,
		Verifier: h.verifier,
		Events:   h.events,
		Clock:    h.clock,
	})
}

func TestDepositInitiate(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u1", 0)
	d := h.deposits()
	ctx := context.Background()

	pp, err := d.Initiate(ctx, "u1", 2500*naira, "order-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pp.Reference, "dep_"))
	assert.NotContains(t, pp.Reference, "order-1")
	assert.Equal(t, domain.PaymentPending, pp.Status)

	again, err := d.Initiate(ctx, "u1", 2500*naira, "order-1")
	require.NoError(t, err)
	assert.Equal(t, pp.Reference, again.Reference)

	_, err = d.Initiate(ctx, "u1", 100*naira, "order-1")
	assert.ErrorIs(t, err, domain.ErrReferenceMismatch)

	fresh, err := d.Initiate(ctx, "u1", 2500*naira, "")
	require.NoError(t, err)
	assert.NotEqual(t, pp.Reference, fresh.Reference)

	_, err = d.Initiate(ctx, "u1", 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = d.Initiate(ctx, "nobody", 100*naira, "")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestDepositConfirmCreditsOnce(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u1", 0)
	d := h.deposits()
	ctx := context.Background()

	pp, err := d.Initiate(ctx, "u1", 2500*naira, "flw-tx-77")
	require.NoError(t, err)

	got, err := d.Confirm(ctx, "u1", pp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.Status)
	assert.Equal(t, 1, got.Attempts)

	h.verifier.Set(pp.Reference, provider.Verification{State: provider.PaymentPaid, Amount: 2500 * naira})
	got, err = d.Confirm(ctx, "u1", pp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCredited, got.Status)
	assert.Equal(t, 2500*naira, h.balance(t, "u1"))

	// Webhook and sweeper racing after the user confirmed.
	got, err = d.Confirm(ctx, "u1", pp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCredited, got.Status)
	h.sweeper().SweepDeposits(ctx)
	assert.Equal(t, 2500*naira, h.balance(t, "u1"))
	assert.Equal(t, 2, h.verifier.Calls(pp.Reference))

	tx, err := h.ledger.GetTransaction(ctx, got.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindDeposit, tx.Kind)
	assert.Equal(t, pp.Reference, tx.Reference)
}

func TestDepositConfirmScopedToOwner(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u1", 0)
	h.fund(t, "u2", 0)
	d := h.deposits()
	ctx := context.Background()

	pp, err := d.Initiate(ctx, "u1", 100*naira, "")
	require.NoError(t, err)

	_, err = d.Confirm(ctx, "u2", pp.Reference)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.Zero(t, h.verifier.Calls(pp.Reference))
}

func TestDepositReferenceCannotBeClaimedByAnotherOwner(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u1", 0)
	h.fund(t, "u2", 0)
	d := h.deposits()
	ctx := context.Background()

	mine, err := d.Initiate(ctx, "u1", 1000*naira, "flw-tx-9")
	require.NoError(t, err)
	theirs, err := d.Initiate(ctx, "u2", 1000*naira, "flw-tx-9")
	require.NoError(t, err)
	assert.NotEqual(t, mine.Reference, theirs.Reference)

	// Registering someone else's issued reference as a key yields a new one.
	hijack, err := d.Initiate(ctx, "u2", 1000*naira, mine.Reference)
	require.NoError(t, err)
	assert.NotEqual(t, mine.Reference, hijack.Reference)

	h.verifier.Set(mine.Reference, provider.Verification{State: provider.PaymentPaid, Amount: 1000 * naira, OwnerID: "u1"})
	got, err := d.Confirm(ctx, "u1", mine.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCredited, got.Status)
	assert.Equal(t, 1000*naira, h.balance(t, "u1"))
	assert.Zero(t, h.balance(t, "u2"))
}

func TestDepositConfirmWithoutProcessor(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u1", 0)
	d := NewDeposits(DepositsConfig{Ledger: h.ledger, Clock: h.clock})
	ctx := context.Background()

	pp, err := d.Initiate(ctx, "u1", 100*naira, "")
	require.NoError(t, err)

	_, err = d.Confirm(ctx, "u1", pp.Reference)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
