package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CalebHite/trustlend/internal/auth"
	"github.com/CalebHite/trustlend/internal/config"
	"github.com/CalebHite/trustlend/internal/credit"
	"github.com/CalebHite/trustlend/internal/db"
	loandomain "github.com/CalebHite/trustlend/internal/domain/loan"
	"github.com/CalebHite/trustlend/internal/events"
	"github.com/CalebHite/trustlend/internal/http/handlers"
	"github.com/CalebHite/trustlend/internal/ledger"
	"github.com/CalebHite/trustlend/internal/observability"
	"github.com/CalebHite/trustlend/internal/repository/memory"
	postgresrepo "github.com/CalebHite/trustlend/internal/repository/postgres"
	"github.com/CalebHite/trustlend/internal/scheduler"
	"github.com/CalebHite/trustlend/internal/server"
	"github.com/CalebHite/trustlend/internal/ws"
)

type stores struct {
	loans      loandomain.Registry
	wallets    walletStore
	entryStore scheduler.EntryStore
	outbox     events.Outbox
	pinger     handlers.Pinger
	durable    bool
	close      func()
}

// walletStore is the union of the wallet capabilities the handlers, the
// service and the dispatcher consume.
type walletStore interface {
	handlers.WalletStore
	events.WalletStore
	loandomain.WalletStore
}

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gateway, err := newGateway(cfg)
	if err != nil {
		logger.Error("failed to build ledger gateway", "err", err)
		os.Exit(1)
	}
	if err := gateway.Connect(ctx); err != nil {
		logger.Error("failed to connect ledger", "err", err)
		os.Exit(1)
	}
	defer gateway.Disconnect(context.Background())

	st, err := newStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to build stores", "err", err)
		os.Exit(1)
	}
	defer st.close()

	creditLedger := credit.NewLedger(credit.DefaultTiers())
	hub := ws.NewHub()
	recorder := events.NewRecorder(st.outbox, logger)
	dispatcher := events.NewDispatcher(st.outbox, st.wallets, creditLedger, hub, logger)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	go func() {
		if err := dispatcher.Run(dispatchCtx, cfg.DispatchInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", "err", err)
		}
	}()

	sched := scheduler.New(st.loans, gateway, st.entryStore, recorder, scheduler.SystemClock(), logger)
	defer sched.Close()
	if st.durable {
		if err := sched.Restore(ctx); err != nil {
			logger.Error("failed to restore scheduled repayments", "err", err)
			os.Exit(1)
		}
	}

	jwtManager := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey, cfg.JWTSessionTTL)
	loanService := loandomain.NewService(st.loans, st.wallets, gateway, sched, creditLedger, cfg.FeeBuffer, logger)

	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:        st.pinger,
		WalletHandler: handlers.NewWalletHandler(gateway, st.wallets, jwtManager, cfg.LedgerNetwork),
		LoanHandler:   handlers.NewLoanHandler(loanService),
		CreditHandler: handlers.NewCreditHandler(st.wallets, creditLedger),
		WSHandler:     ws.NewHandler(hub),
		JWTManager:    jwtManager,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "store", cfg.StoreBackend, "ledger", cfg.LedgerBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}

func newGateway(cfg config.Config) (ledger.Gateway, error) {
	if cfg.LedgerBackend == "sim" {
		return ledger.NewSim(cfg.FundingThreshold), nil
	}
	return ledger.NewClient(ledger.ClientOptions{
		RPCURL:           cfg.LedgerRPCURL,
		FaucetURL:        cfg.LedgerFaucetURL,
		Network:          cfg.LedgerNetwork,
		FundingThreshold: cfg.FundingThreshold,
		FundAttempts:     cfg.FaucetFundAttempts,
		FundBackoff:      cfg.FaucetFundBackoff,
	})
}

func newStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.StoreBackend != "postgres" {
		wallets := memory.NewWalletRepository()
		return &stores{
			loans:      memory.NewLoanRepository(),
			wallets:    wallets,
			entryStore: memory.NewEntryStore(),
			outbox:     memory.NewOutbox(),
			pinger:     wallets,
			close:      func() {},
		}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		loans:      postgresrepo.NewLoanRepository(pool),
		wallets:    postgresrepo.NewWalletRepository(pool),
		entryStore: postgresrepo.NewEntryStore(pool),
		outbox:     postgresrepo.NewOutboxRepository(pool),
		pinger:     pool,
		durable:    true,
		close:      pool.Close,
	}, nil
}
