// Command sweeper runs one reconciliation pass and exits. Point an
// external scheduler (cron, Kubernetes CronJob) at it.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/app"
	"github.com/punchamoorthee/vtuledger/internal/config"
	"github.com/punchamoorthee/vtuledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	rep := a.Sweeper.Run(ctx)
	json.NewEncoder(os.Stdout).Encode(map[string]int{
		"processedCount": rep.Processed,
		"errorCount":     rep.Errors,
	})
	if rep.Errors > 0 {
		a.Close()
		logger.Sync()
		os.Exit(1)
	}
}
