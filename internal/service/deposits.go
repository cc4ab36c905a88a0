package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
	"github.com/punchamoorthee/vtuledger/internal/idempotency"
	"github.com/punchamoorthee/vtuledger/internal/provider"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

type DepositsConfig struct {
	Ledger   store.Ledger
	Verifier provider.PaymentVerifier
	Events   events.Publisher
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Deposits registers wallet fundings paid through the external processor
// and credits them once the processor confirms.
type Deposits struct {
	ledger   store.Ledger
	verifier provider.PaymentVerifier
	events   events.Publisher
	clock    clock.Clock
	log      *zap.Logger
}

func NewDeposits(cfg DepositsConfig) *Deposits {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Deposits{
		ledger:   cfg.Ledger,
		verifier: cfg.Verifier,
		events:   cfg.Events,
		clock:    cfg.Clock,
		log:      cfg.Logger.Named("deposits"),
	}
}

// Initiate records a pending payment under a processor reference issued
// here. callerKey makes the call retryable: the same owner and key always
// map to the same reference. Without a key every call gets a fresh one.
func (d *Deposits) Initiate(ctx context.Context, ownerID string, amount int64, callerKey string) (domain.PendingPayment, error) {
	if amount <= 0 {
		return domain.PendingPayment{}, domain.ErrInvalidAmount
	}
	if err := idempotency.Validate(callerKey); err != nil {
		return domain.PendingPayment{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if strings.TrimSpace(callerKey) == "" {
		callerKey = uuid.NewString()
	}
	reference := idempotency.DepositReference(ownerID, callerKey)
	pp, err := d.ledger.CreatePendingPayment(ctx, domain.PendingPayment{
		Reference: reference,
		OwnerID:   ownerID,
		Amount:    amount,
	})
	if err != nil {
		return domain.PendingPayment{}, err
	}
	d.log.Info("deposit initiated",
		zap.String("owner_id", ownerID),
		zap.String("payment_reference", pp.Reference),
		zap.Int64("amount", amount),
	)
	return pp, nil
}

// Confirm verifies one pending payment with the processor right away.
// It has no attempt cap; the sweeper owns giving up on a payment.
func (d *Deposits) Confirm(ctx context.Context, ownerID, reference string) (domain.PendingPayment, error) {
	pp, err := d.ledger.GetPendingPayment(ctx, reference)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if pp.OwnerID != ownerID {
		return domain.PendingPayment{}, domain.ErrPaymentNotFound
	}
	if pp.Status != domain.PaymentPending {
		return pp, nil
	}
	if d.verifier == nil {
		return domain.PendingPayment{}, fmt.Errorf("%w: no payment processor configured", domain.ErrProviderUnavailable)
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := settleDeposit(ctx, d.ledger, d.verifier, d.events, d.clock, d.log, pp, 0); err != nil {
		return domain.PendingPayment{}, err
	}
	return d.ledger.GetPendingPayment(ctx, reference)
}
