package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/vtuledger/internal/clock"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/events"
	"github.com/punchamoorthee/vtuledger/internal/provider"
	"github.com/punchamoorthee/vtuledger/internal/provider/providertest"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

const naira = int64(100)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionSettled
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(events.TransactionSettled); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Published() []events.TransactionSettled {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.TransactionSettled(nil), p.events...)
}

type harness struct {
	ledger   *store.Memory
	clock    *clock.Manual
	gateway  *providertest.Gateway
	router   *provider.Router
	verifier *providertest.Verifier
	events   *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	gw := &providertest.Gateway{}
	router := provider.NewRouter()
	router.Register("inlomax", gw, domain.KindAirtime, domain.KindData, domain.KindCable, domain.KindElectricity)
	return &harness{
		ledger:   store.NewMemory(clk, store.DefaultDedupWindow),
		clock:    clk,
		gateway:  gw,
		router:   router,
		verifier: providertest.NewVerifier(),
		events:   &recordingPublisher{},
	}
}

func (h *harness) executor(opts ...func(*ExecutorConfig)) *Executor {
	cfg := ExecutorConfig{
		Ledger:  h.ledger,
		Router:  h.router,
		Events:  h.events,
		Clock:   h.clock,
		Timeout: time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewExecutor(cfg)
}

func (h *harness) sweeper() *Sweeper {
	return NewSweeper(SweeperConfig{
		Ledger:   h.ledger,
		Verifier: h.verifier,
		Events:   h.events,
		Clock:    h.clock,
	})
}

func (h *harness) fund(t *testing.T, owner string, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.ledger.CreateWallet(ctx, owner)
	require.NoError(t, err)
	if amount > 0 {
		_, err = h.ledger.Credit(ctx, store.CreditParams{
			OwnerID: owner, Amount: amount, Kind: domain.KindDeposit, Reference: "seed-" + owner,
		})
		require.NoError(t, err)
	}
}

func (h *harness) balance(t *testing.T, owner string) int64 {
	t.Helper()
	w, err := h.ledger.GetWallet(context.Background(), owner)
	require.NoError(t, err)
	return w.Balance
}

func (h *harness) transactions(t *testing.T, owner string) []domain.Transaction {
	t.Helper()
	txs, err := h.ledger.ListTransactions(context.Background(), owner, 0)
	require.NoError(t, err)
	return txs
}

func airtime(owner string, amount int64) ExecuteRequest {
	return ExecuteRequest{
		OwnerID:   owner,
		Kind:      domain.KindAirtime,
		Amount:    amount,
		Recipient: "08031234567",
		Params:    map[string]string{"network": "mtn"},
	}
}
