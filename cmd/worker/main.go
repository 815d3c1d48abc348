package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CalebHite/trustlend/internal/config"
	"github.com/CalebHite/trustlend/internal/credit"
	"github.com/CalebHite/trustlend/internal/db"
	"github.com/CalebHite/trustlend/internal/events"
	"github.com/CalebHite/trustlend/internal/observability"
	postgresrepo "github.com/CalebHite/trustlend/internal/repository/postgres"
)

// Standalone effect drainer for the postgres profile. Realtime fanout
// lives in the api process, so this one runs without a publisher and
// only applies credit adjustments.
func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	dispatcher := events.NewDispatcher(
		postgresrepo.NewOutboxRepository(pool),
		postgresrepo.NewWalletRepository(pool),
		credit.NewLedger(credit.DefaultTiers()),
		nil,
		logger,
	)

	interval := cfg.DispatchInterval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "interval", interval.String())
	for {
		select {
		case <-sigCtx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			runCtx, runCancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := dispatcher.RunOnce(runCtx, 100)
			runCancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker run failed", "err", err)
			}
		}
	}
}
