package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CalebHite/trustlend/internal/auth"
	"github.com/CalebHite/trustlend/internal/config"
	"github.com/CalebHite/trustlend/internal/http/handlers"
	"github.com/CalebHite/trustlend/internal/http/middleware"
	"github.com/CalebHite/trustlend/internal/version"
	"github.com/CalebHite/trustlend/internal/ws"
)

type Dependencies struct {
	Pinger        handlers.Pinger
	WalletHandler *handlers.WalletHandler
	LoanHandler   *handlers.LoanHandler
	CreditHandler *handlers.CreditHandler
	WSHandler     *ws.Handler
	JWTManager    *auth.JWTManager
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		logger.Info("request", "method", c.Request.Method, "path", c.Request.URL.Path)
		c.Next()
	})

	health := handlers.NewHealthHandler(deps.Pinger)
	meta := handlers.NewMetaHandler(cfg.Env, version.Version, cfg.LedgerNetwork)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)

	if deps.WalletHandler != nil {
		r.POST("/v1/wallets", deps.WalletHandler.CreateWallet)
		r.GET("/v1/wallets/:address/balance", deps.WalletHandler.GetBalance)
	}

	if deps.CreditHandler != nil {
		r.GET("/v1/credit/tiers", deps.CreditHandler.ListTiers)
		r.GET("/v1/credit/:address", deps.CreditHandler.GetCredit)
	}

	if deps.LoanHandler != nil && deps.JWTManager != nil {
		// Eligibility is a read-only probe; callers check before they
		// hold a session.
		r.POST("/v1/credit/eligibility", deps.LoanHandler.CheckEligibility)

		loanGroup := r.Group("/v1")
		loanGroup.Use(middleware.RequireAuth(deps.JWTManager))
		loanGroup.POST("/loans", deps.LoanHandler.CreateLoan)
		loanGroup.GET("/loans", deps.LoanHandler.ListLoans)
		loanGroup.GET("/loans/:loanId", deps.LoanHandler.GetLoan)
		loanGroup.POST("/loans/:loanId/repay", deps.LoanHandler.RepayLoan)
		loanGroup.POST("/loans/:loanId/cancel", deps.LoanHandler.CancelLoan)
	}

	if deps.WSHandler != nil {
		r.GET("/v1/ws", deps.WSHandler.HandleWebSocket)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
