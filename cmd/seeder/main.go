package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/config"
	"github.com/punchamoorthee/vtuledger/internal/domain"
	"github.com/punchamoorthee/vtuledger/internal/logging"
	"github.com/punchamoorthee/vtuledger/internal/store"
)

func main() {
	total := flag.Int("wallets", 1000, "number of benchmark wallets")
	opening := flag.String("balance", "100000.00", "opening balance per wallet in naira")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	if cfg.StoreDriver != "postgres" {
		logger.Fatal("seeder needs LEDGER_STORE=postgres")
	}

	balance, err := domain.ParseAmount(*opening)
	if err != nil {
		logger.Fatal("invalid -balance", zap.Error(err))
	}

	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.DBSource, cfg.DedupWindow)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	var count int
	if err := pg.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM wallets WHERE owner_id LIKE 'bench-%'").Scan(&count); err != nil {
		logger.Fatal("count wallets failed", zap.Error(err))
	}
	if count >= *total {
		logger.Info("benchmark wallets already seeded, skipping", zap.Int("wallets", count))
		return
	}

	// Every opening balance gets a matching deposit row so the transaction
	// log still sums to the wallet balance.
	now := time.Now().UTC()
	wallets := make([][]any, 0, *total)
	deposits := make([][]any, 0, *total)
	for i := 1; i <= *total; i++ {
		owner := fmt.Sprintf("bench-%05d", i)
		wallets = append(wallets, []any{owner, balance, true, now, now})
		deposits = append(deposits, []any{
			[16]byte(uuid.New()), owner, string(domain.KindDeposit), balance, string(domain.StatusSuccess),
			"seed-" + owner, "Opening balance", now, now,
		})
	}

	tx, err := pg.Pool().Begin(ctx)
	if err != nil {
		logger.Fatal("begin failed", zap.Error(err))
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"idempotency_keys", "pending_payments", "transactions", "wallets"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE owner_id LIKE 'bench-%'"); err != nil {
			logger.Fatal("clear benchmark rows failed", zap.String("table", table), zap.Error(err))
		}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"wallets"},
		[]string{"owner_id", "balance", "active", "created_at", "updated_at"},
		pgx.CopyFromRows(wallets),
	)
	if err != nil {
		logger.Fatal("bulk insert wallets failed", zap.Error(err))
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		[]string{"id", "owner_id", "kind", "amount", "status", "reference", "description", "created_at", "updated_at"},
		pgx.CopyFromRows(deposits),
	); err != nil {
		logger.Fatal("bulk insert opening deposits failed", zap.Error(err))
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Fatal("commit failed", zap.Error(err))
	}

	logger.Info("seeded benchmark wallets", zap.Int64("wallets", n), zap.String("balance", domain.FormatAmount(balance)))
}
