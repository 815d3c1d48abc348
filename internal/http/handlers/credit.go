package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CalebHite/trustlend/internal/credit"
)

type CreditProfileStore interface {
	Profile(ctx context.Context, address string) (credit.Profile, error)
}

type CreditHandler struct {
	profiles CreditProfileStore
	ledger   *credit.Ledger
}

func NewCreditHandler(profiles CreditProfileStore, ledger *credit.Ledger) *CreditHandler {
	return &CreditHandler{profiles: profiles, ledger: ledger}
}

// GetCredit reports the stored score, the tier it lands in, and the
// distance to the next tier. Unscored addresses report the default.
func (h *CreditHandler) GetCredit(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_address"})
		return
	}

	profile, err := h.profiles.Profile(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_lookup_failed"})
		return
	}
	h.ledger.Initialize(&profile)

	c.JSON(http.StatusOK, gin.H{
		"address":      profile.Address,
		"credit_score": profile.CreditScore,
		"tier":         h.ledger.TierFor(profile.CreditScore),
		"progress":     h.ledger.ProgressToNextTier(profile.CreditScore),
	})
}

func (h *CreditHandler) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.ledger.AllTiers()})
}
