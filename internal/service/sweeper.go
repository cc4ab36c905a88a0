package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
	"github.com/punchamoorthee/vtuledger/internal/provider"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

const (
	DefaultSweepGrace        = 10 * time.Minute
	DefaultSweepBatch        = 500
	DefaultMaxVerifyAttempts = 5
)

// Report aggregates one sweep. Skipped items were already resolved by the
// time the sweeper reached them.
type Report struct {
	Processed int `json:"processedCount"`
	Errors    int `json:"errorCount"`
	Skipped   int `json:"skippedCount"`
}

func (r *Report) add(o Report) {
	r.Processed += o.Processed
	r.Errors += o.Errors
	r.Skipped += o.Skipped
}

type SweeperConfig struct {
	Ledger            store.Ledger
	Verifier          provider.PaymentVerifier
	Events            events.Publisher
	Clock             clock.Clock
	Logger            *zap.Logger
	Grace             time.Duration
	Batch             int
	MaxVerifyAttempts int
}

// Sweeper resolves transactions the executor deliberately left pending and
// deposits still waiting on the payment processor.
type Sweeper struct {
	ledger      store.Ledger
	verifier    provider.PaymentVerifier
	events      events.Publisher
	clock       clock.Clock
	log         *zap.Logger
	grace       time.Duration
	batch       int
	maxAttempts int
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultSweepGrace
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultSweepBatch
	}
	if cfg.MaxVerifyAttempts <= 0 {
		cfg.MaxVerifyAttempts = DefaultMaxVerifyAttempts
	}
	return &Sweeper{
		ledger:      cfg.Ledger,
		verifier:    cfg.Verifier,
		events:      cfg.Events,
		clock:       cfg.Clock,
		log:         cfg.Logger.Named("sweeper"),
		grace:       cfg.Grace,
		batch:       cfg.Batch,
		maxAttempts: cfg.MaxVerifyAttempts,
	}
}

// Run executes every sweep once and purges expired idempotency claims.
func (s *Sweeper) Run(ctx context.Context) Report {
	var total Report
	total.add(s.SweepPending(ctx))
	total.add(s.SweepDeposits(ctx))

	if n, err := s.ledger.PurgeExpiredKeys(ctx, s.clock.Now()); err != nil {
		s.log.Warn("purge expired keys failed", zap.Error(err))
		total.Errors++
	} else if n > 0 {
		s.log.Debug("purged expired idempotency keys", zap.Int64("count", n))
	}

	s.log.Info("sweep finished",
		zap.Int("processed", total.Processed),
		zap.Int("errors", total.Errors),
		zap.Int("skipped", total.Skipped),
	)
	return total
}

// SweepPending fails every refundable transaction pending for longer than
// the grace window and credits it back once. It does not consult the
// provider: no confirmation within the window is treated as failure.
func (s *Sweeper) SweepPending(ctx context.Context) Report {
	var rep Report
	cutoff := s.clock.Now().Add(-s.grace)
	stale, err := s.ledger.ListStalePending(ctx, domain.RefundableKinds, cutoff, s.batch)
	if err != nil {
		s.log.Error("list stale pending failed", zap.Error(err))
		rep.Errors++
		return rep
	}

	for _, tx := range stale {
		log := s.log.With(
			zap.String("transaction_id", tx.ID),
			zap.String("owner_id", tx.OwnerID),
			zap.String("kind", string(tx.Kind)),
		)
		entry, err := s.ledger.Finalize(ctx, store.FinalizeParams{
			TransactionID: tx.ID,
			Outcome:       domain.OutcomeFailure,
		})
		switch {
		case err != nil:
			log.Error("sweep finalize failed", zap.Error(err))
			sweepItemsTotal.WithLabelValues("pending", "error").Inc()
			rep.Errors++
		case entry.Replayed:
			sweepItemsTotal.WithLabelValues("pending", "skipped").Inc()
			rep.Skipped++
		default:
			log.Info("stale transaction failed and refunded",
				zap.Int64("amount", -tx.Amount),
				zap.Duration("age", s.clock.Now().Sub(tx.CreatedAt)),
			)
			sweepItemsTotal.WithLabelValues("pending", "refunded").Inc()
			refundsTotal.WithLabelValues("sweeper").Inc()
			publish(ctx, s.events, s.log, entry, s.clock.Now())
			rep.Processed++
		}
	}
	return rep
}

// SweepDeposits polls the payment processor for every pending deposit.
func (s *Sweeper) SweepDeposits(ctx context.Context) Report {
	var rep Report
	if s.verifier == nil {
		return rep
	}
	pending, err := s.ledger.ListPendingPayments(ctx, s.batch)
	if err != nil {
		s.log.Error("list pending payments failed", zap.Error(err))
		rep.Errors++
		return rep
	}

	for _, pp := range pending {
		result, err := settleDeposit(ctx, s.ledger, s.verifier, s.events, s.clock, s.log, pp, s.maxAttempts)
		switch {
		case err != nil:
			sweepItemsTotal.WithLabelValues("deposits", "error").Inc()
			rep.Errors++
		case result == depositStillPending:
			sweepItemsTotal.WithLabelValues("deposits", "pending").Inc()
			rep.Skipped++
		default:
			sweepItemsTotal.WithLabelValues("deposits", string(result)).Inc()
			rep.Processed++
		}
	}
	return rep
}

type depositResult string

const (
	depositCredited     depositResult = "credited"
	depositFailed       depositResult = "failed"
	depositStillPending depositResult = "pending"
)

// settleDeposit verifies one pending payment and applies the result.
// maxAttempts <= 0 disables the attempt cap.
func settleDeposit(
	ctx context.Context,
	ledger store.Ledger,
	verifier provider.PaymentVerifier,
	pub events.Publisher,
	clk clock.Clock,
	log *zap.Logger,
	pp domain.PendingPayment,
	maxAttempts int,
) (depositResult, error) {
	log = log.With(zap.String("payment_reference", pp.Reference), zap.String("owner_id", pp.OwnerID))

	ver, err := verifier.Verify(ctx, pp.Reference)
	if err != nil {
		log.Warn("payment verification failed", zap.Error(err))
		ver = provider.Verification{State: provider.PaymentUnknown}
	}

	switch ver.State {
	case provider.PaymentPaid:
		if ver.OwnerID != "" && ver.OwnerID != pp.OwnerID {
			log.Error("processor payment belongs to another owner, not crediting", zap.String("reported_owner", ver.OwnerID))
			if err := ledger.MarkPaymentFailed(ctx, pp.Reference); err != nil {
				return "", err
			}
			return depositFailed, nil
		}
		if ver.Amount != pp.Amount {
			log.Error("processor amount differs from pending payment, not crediting",
				zap.Int64("expected", pp.Amount),
				zap.Int64("reported", ver.Amount),
			)
			if err := ledger.MarkPaymentFailed(ctx, pp.Reference); err != nil {
				return "", err
			}
			return depositFailed, nil
		}
		entry, err := creditDeposit(ctx, ledger, pp)
		if err != nil {
			log.Error("deposit credit failed", zap.Error(err))
			return "", err
		}
		if err := ledger.MarkPaymentCredited(ctx, pp.Reference, entry.Transaction.ID); err != nil {
			log.Error("mark payment credited failed", zap.Error(err))
			return "", err
		}
		if !entry.Replayed {
			publish(ctx, pub, log, entry, clk.Now())
		}
		log.Info("deposit credited", zap.Int64("amount", pp.Amount), zap.String("transaction_id", entry.Transaction.ID))
		return depositCredited, nil

	case provider.PaymentFailed:
		if err := ledger.MarkPaymentFailed(ctx, pp.Reference); err != nil {
			return "", err
		}
		log.Info("deposit failed at processor")
		return depositFailed, nil
	}

	updated, err := ledger.RecordVerification(ctx, pp.Reference, clk.Now())
	if err != nil {
		log.Error("record verification failed", zap.Error(err))
		return "", err
	}
	if maxAttempts > 0 && updated.Attempts >= maxAttempts {
		if err := ledger.MarkPaymentFailed(ctx, pp.Reference); err != nil {
			return "", err
		}
		log.Warn("deposit unconfirmed after max attempts, giving up", zap.Int("attempts", updated.Attempts))
		return depositFailed, nil
	}
	return depositStillPending, nil
}

// creditDeposit credits the wallet under the payment reference. A deposit
// credited earlier, even outside the dedup window, is returned as a replay.
func creditDeposit(ctx context.Context, ledger store.Ledger, pp domain.PendingPayment) (domain.Entry, error) {
	existing, err := ledger.GetTransactionByReference(ctx, pp.OwnerID, pp.Reference)
	switch {
	case err == nil && existing.Kind == domain.KindDeposit:
		wallet, err := ledger.GetWallet(ctx, pp.OwnerID)
		if err != nil {
			return domain.Entry{}, err
		}
		return domain.Entry{Transaction: existing, NewBalance: wallet.Balance, Replayed: true}, nil
	case err != nil && !errors.Is(err, domain.ErrTransactionNotFound):
		return domain.Entry{}, err
	}
	return ledger.Credit(ctx, store.CreditParams{
		OwnerID:     pp.OwnerID,
		Amount:      pp.Amount,
		Kind:        domain.KindDeposit,
		Reference:   pp.Reference,
		Description: "Wallet funding " + domain.FormatAmount(pp.Amount),
	})
}
