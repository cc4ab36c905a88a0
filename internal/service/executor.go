package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
	"github.com/punchamoorthee/vtuledger/internal/idempotency"
	"github.com/punchamoorthee/vtuledger/internal/provider"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

// DefaultProviderTimeout bounds a single fulfillment call.
const DefaultProviderTimeout = 60 * time.Second

// ResultStatus is what the caller is told about a purchase.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	// ResultProcessing means the provider outcome is not known yet. The
	// funds stay reserved until a status check or the sweeper resolves it.
	ResultProcessing ResultStatus = "processing"
)

type ExecuteRequest struct {
	OwnerID     string
	Kind        domain.Kind
	Amount      int64
	Recipient   string
	Reference   string
	Description string
	Params      map[string]string
}

func (r ExecuteRequest) validate() error {
	if r.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if r.OwnerID == "" || !r.Kind.IsPurchase() {
		return domain.ErrInvalidRequest
	}
	if strings.TrimSpace(r.Recipient) == "" && r.Kind != domain.KindWithdrawal {
		return fmt.Errorf("%w: recipient is required", domain.ErrInvalidRequest)
	}
	if err := idempotency.Validate(r.Reference); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

type ExecuteResult struct {
	Status      ResultStatus       `json:"status"`
	Transaction domain.Transaction `json:"transaction"`
	NewBalance  int64              `json:"new_balance"`
	Replayed    bool               `json:"replayed"`
	Message     string             `json:"message,omitempty"`
}

type ExecutorConfig struct {
	Ledger      store.Ledger
	Router      *provider.Router
	Health      *provider.HealthTracker
	Events      events.Publisher
	Clock       clock.Clock
	Logger      *zap.Logger
	Timeout     time.Duration
	DedupWindow time.Duration
}

// Executor runs a purchase end to end: reserve, fulfill, finalize.
type Executor struct {
	ledger  store.Ledger
	router  *provider.Router
	health  *provider.HealthTracker
	events  events.Publisher
	clock   clock.Clock
	log     *zap.Logger
	timeout time.Duration
	window  time.Duration
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProviderTimeout
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = store.DefaultDedupWindow
	}
	return &Executor{
		ledger:  cfg.Ledger,
		router:  cfg.Router,
		health:  cfg.Health,
		events:  cfg.Events,
		clock:   cfg.Clock,
		log:     cfg.Logger.Named("executor"),
		timeout: cfg.Timeout,
		window:  cfg.DedupWindow,
	}
}

// Execute performs at most one reserve, one provider call and one finalize
// per logical request. The caller's cancellation is not propagated: once
// funds are reserved the sequence runs until the transaction is terminal or
// deliberately left pending.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if err := req.validate(); err != nil {
		return ExecuteResult{}, err
	}
	ctx = context.WithoutCancel(ctx)

	reference := idempotency.Derive(idempotency.Input{
		OwnerID:         req.OwnerID,
		Kind:            req.Kind,
		Amount:          req.Amount,
		Recipient:       req.Recipient,
		CallerReference: req.Reference,
	})
	log := e.log.With(
		zap.String("owner_id", req.OwnerID),
		zap.String("kind", string(req.Kind)),
		zap.String("reference", reference),
	)

	name, ok := e.router.ProviderFor(req.Kind)
	if !ok {
		return ExecuteResult{}, fmt.Errorf("%w: no provider for %s", domain.ErrProviderUnavailable, req.Kind)
	}
	if !e.health.Available(ctx, name) {
		if res, ok := e.recentReplay(ctx, req.OwnerID, reference); ok {
			return res, nil
		}
		log.Warn("provider tripped, rejecting before reserve", zap.String("provider", name))
		executionsTotal.WithLabelValues(string(req.Kind), "unavailable").Inc()
		return ExecuteResult{}, domain.ErrProviderUnavailable
	}

	entry, err := e.ledger.Reserve(ctx, store.ReserveParams{
		OwnerID:     req.OwnerID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Reference:   reference,
		Description: describe(req),
	})
	if err != nil {
		if isClientError(err) || errors.Is(err, domain.ErrStorageUnavailable) {
			return ExecuteResult{}, err
		}
		log.Error("reserve failed", zap.Error(err))
		return ExecuteResult{}, fmt.Errorf("%w: reserve: %v", domain.ErrInternal, err)
	}
	if entry.Replayed {
		log.Info("duplicate request, returning prior result", zap.String("transaction_id", entry.Transaction.ID))
		executionsTotal.WithLabelValues(string(req.Kind), "replayed").Inc()
		return resultFor(entry), nil
	}

	tx := entry.Transaction
	log = log.With(zap.String("transaction_id", tx.ID), zap.String("provider", name))

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	start := time.Now()
	res, callErr := e.router.Fulfill(callCtx, provider.FulfillRequest{
		TransactionID: tx.ID,
		Reference:     reference,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Recipient:     idempotency.NormalizeRecipient(req.Recipient),
		Params:        req.Params,
	})
	cancel()
	if callErr != nil {
		res = provider.Result{Outcome: provider.Ambiguous, Message: callErr.Error()}
	}
	providerCallDuration.WithLabelValues(string(req.Kind), string(res.Outcome)).Observe(time.Since(start).Seconds())

	switch res.Outcome {
	case provider.Confirmed:
		e.health.RecordSuccess(ctx, name)
		final, err := e.finalize(ctx, tx.ID, domain.OutcomeSuccess, res)
		if err != nil {
			// The provider delivered. Leave the row pending for the status check.
			log.Error("finalize success failed, transaction left pending", zap.Error(err))
			return processing(entry, "confirmed by provider, settlement pending"), nil
		}
		log.Info("purchase fulfilled", zap.String("external_reference", res.ExternalReference))
		return e.settled(ctx, final, res.Message), nil

	case provider.Declined:
		e.health.RecordSuccess(ctx, name)
		final, err := e.finalize(ctx, tx.ID, domain.OutcomeFailure, res)
		if err != nil {
			log.Error("finalize failure failed, transaction left pending", zap.Error(err))
			return processing(entry, res.Message), nil
		}
		log.Info("purchase declined, funds restored", zap.String("message", res.Message))
		return e.settled(ctx, final, res.Message), domain.ErrProviderDeclined

	default:
		e.health.RecordFailure(ctx, name)
		log.Warn("provider outcome ambiguous, transaction left pending",
			zap.Error(callErr),
			zap.String("message", res.Message),
		)
		executionsTotal.WithLabelValues(string(req.Kind), string(ResultProcessing)).Inc()
		return processing(entry, "transaction is processing"), nil
	}
}

// CheckStatus resolves a transaction against the provider's own status
// lookup instead of waiting for the sweeper.
func (e *Executor) CheckStatus(ctx context.Context, ownerID, transactionID string) (ExecuteResult, error) {
	tx, err := e.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if tx.OwnerID != ownerID {
		return ExecuteResult{}, domain.ErrTransactionNotFound
	}
	wallet, err := e.ledger.GetWallet(ctx, ownerID)
	if err != nil {
		return ExecuteResult{}, err
	}
	current := domain.Entry{Transaction: tx, NewBalance: wallet.Balance, Replayed: true}
	if !tx.Kind.IsPurchase() || (tx.Status != domain.StatusPending && tx.Status != domain.StatusSuccess) {
		return resultFor(current), nil
	}

	ctx = context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	res, err := e.router.Status(callCtx, tx.Kind, tx.Reference)
	cancel()
	log := e.log.With(zap.String("transaction_id", tx.ID), zap.String("reference", tx.Reference))
	if err != nil {
		log.Warn("status lookup failed", zap.Error(err))
		return resultFor(current), nil
	}

	switch {
	case tx.Status == domain.StatusPending && res.Outcome == provider.Confirmed:
		final, err := e.finalize(ctx, tx.ID, domain.OutcomeSuccess, res)
		if err != nil {
			return ExecuteResult{}, err
		}
		log.Info("pending transaction confirmed by status check")
		return e.settled(ctx, final, res.Message), nil

	case tx.Status == domain.StatusPending && (res.Outcome == provider.Declined || res.Outcome == provider.Reversed):
		final, err := e.finalize(ctx, tx.ID, domain.OutcomeFailure, res)
		if err != nil {
			return ExecuteResult{}, err
		}
		refundsTotal.WithLabelValues("status_check").Inc()
		log.Info("pending transaction failed by status check, funds restored")
		return e.settled(ctx, final, res.Message), nil

	case tx.Status == domain.StatusSuccess && res.Outcome == provider.Reversed:
		final, err := e.ledger.Reverse(ctx, tx.ID, "reversed by provider")
		if err != nil {
			return ExecuteResult{}, err
		}
		refundsTotal.WithLabelValues("reversal").Inc()
		log.Info("successful transaction reversed by provider")
		return e.settled(ctx, final, res.Message), nil
	}
	return resultFor(current), nil
}

func (e *Executor) finalize(ctx context.Context, id string, outcome domain.Outcome, res provider.Result) (domain.Entry, error) {
	return e.ledger.Finalize(ctx, store.FinalizeParams{
		TransactionID:     id,
		Outcome:           outcome,
		ExternalReference: res.ExternalReference,
		Payload:           res.Payload,
	})
}

// settled records and publishes a terminal entry. A replayed entry was
// settled by someone else and has already been published.
func (e *Executor) settled(ctx context.Context, entry domain.Entry, message string) ExecuteResult {
	out := resultFor(entry)
	out.Message = message
	if entry.Replayed {
		return out
	}
	executionsTotal.WithLabelValues(string(entry.Transaction.Kind), string(out.Status)).Inc()
	publish(ctx, e.events, e.log, entry, e.clock.Now())
	return out
}

func (e *Executor) recentReplay(ctx context.Context, ownerID, reference string) (ExecuteResult, bool) {
	tx, err := e.ledger.GetTransactionByReference(ctx, ownerID, reference)
	if err != nil || tx.CreatedAt.Before(e.clock.Now().Add(-e.window)) {
		return ExecuteResult{}, false
	}
	wallet, err := e.ledger.GetWallet(ctx, ownerID)
	if err != nil {
		return ExecuteResult{}, false
	}
	return resultFor(domain.Entry{Transaction: tx, NewBalance: wallet.Balance, Replayed: true}), true
}

func publish(ctx context.Context, p events.Publisher, log *zap.Logger, entry domain.Entry, at time.Time) {
	t := entry.Transaction
	if err := p.Publish(ctx, t.OwnerID, events.NewTransactionSettled(entry, at)); err != nil {
		log.Warn("publish settlement event failed", zap.String("transaction_id", t.ID), zap.Error(err))
	}
}

func resultFor(entry domain.Entry) ExecuteResult {
	return ExecuteResult{
		Status:      statusOf(entry.Transaction.Status),
		Transaction: entry.Transaction,
		NewBalance:  entry.NewBalance,
		Replayed:    entry.Replayed,
	}
}

func processing(entry domain.Entry, message string) ExecuteResult {
	return ExecuteResult{
		Status:      ResultProcessing,
		Transaction: entry.Transaction,
		NewBalance:  entry.NewBalance,
		Message:     message,
	}
}

func statusOf(s domain.Status) ResultStatus {
	switch s {
	case domain.StatusSuccess:
		return ResultSuccess
	case domain.StatusPending:
		return ResultProcessing
	default:
		return ResultFailed
	}
}

func describe(req ExecuteRequest) string {
	if req.Description != "" {
		return req.Description
	}
	if req.Recipient == "" {
		return string(req.Kind) + " " + domain.FormatAmount(req.Amount)
	}
	return string(req.Kind) + " " + domain.FormatAmount(req.Amount) + " to " + idempotency.NormalizeRecipient(req.Recipient)
}

func isClientError(err error) bool {
	for _, target := range []error{
		domain.ErrInsufficientFunds,
		domain.ErrWalletNotFound,
		domain.ErrWalletInactive,
		domain.ErrInvalidAmount,
		domain.ErrInvalidRequest,
		domain.ErrReferenceMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
