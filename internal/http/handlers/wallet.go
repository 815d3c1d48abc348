package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CalebHite/trustlend/internal/auth"
	"github.com/CalebHite/trustlend/internal/ledger"
	"github.com/CalebHite/trustlend/internal/repository/memory"
)

type WalletStore interface {
	Create(ctx context.Context, w memory.Wallet) error
	Get(ctx context.Context, address string) (*memory.Wallet, error)
}

type WalletHandler struct {
	gateway ledger.Gateway
	wallets WalletStore
	jwt     *auth.JWTManager
	network string
}

func NewWalletHandler(gateway ledger.Gateway, wallets WalletStore, jwt *auth.JWTManager, network string) *WalletHandler {
	return &WalletHandler{gateway: gateway, wallets: wallets, jwt: jwt, network: network}
}

// CreateWallet provisions a funded ledger account, records it, and
// hands back a session token for the new address. The secret is
// returned once, here, and never stored outside the scheduler's
// repayment entries.
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req struct {
		Label string `json:"label"`
	}
	// Body is optional; a bare POST creates an unlabeled wallet.
	_ = c.ShouldBindJSON(&req)

	account, err := h.gateway.CreateAccount(c.Request.Context(), strings.TrimSpace(req.Label))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet_creation_failed"})
		return
	}

	if err := h.wallets.Create(c.Request.Context(), memory.Wallet{
		Address: account.Address,
		Label:   account.Label,
		Network: h.network,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallet_store_failed"})
		return
	}

	token, err := h.jwt.MintSession(account.Address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_mint_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account":       account,
		"session_token": token,
	})
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_address"})
		return
	}

	funding, err := h.gateway.CheckAndUpdateFunding(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "balance_lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, funding)
}
