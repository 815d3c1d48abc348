package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CalebHite/trustlend/internal/credit"
	loandomain "github.com/CalebHite/trustlend/internal/domain/loan"
	"github.com/CalebHite/trustlend/internal/ledger"
)

type LoanService interface {
	CreateLoan(ctx context.Context, in loandomain.CreateLoanInput) (*loandomain.CreateLoanResult, error)
	LoansForAddress(ctx context.Context, address string) ([]loandomain.Record, error)
	LoanStatus(ctx context.Context, loanID string) (*loandomain.StatusResult, error)
	RepayLoanEarly(ctx context.Context, loanID, callerAddress string) (*loandomain.Record, error)
	CancelLoan(ctx context.Context, loanID, callerAddress string) (*loandomain.Record, error)
	CheckEligibility(ctx context.Context, address string, amount float64) (credit.Eligibility, error)
}

type LoanHandler struct {
	loanService LoanService
}

func NewLoanHandler(loanService LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

func (h *LoanHandler) CreateLoan(c *gin.Context) {
	var req struct {
		Borrower        ledger.Credential `json:"borrower"`
		Lender          ledger.Credential `json:"lender"`
		PrincipalAmount float64           `json:"principal_amount"`
		InterestRate    float64           `json:"interest_rate"`
		DurationSeconds int64             `json:"duration_seconds"`
		Terms           string            `json:"terms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.loanService.CreateLoan(c.Request.Context(), loandomain.CreateLoanInput{
		Borrower:        req.Borrower,
		Lender:          req.Lender,
		PrincipalAmount: req.PrincipalAmount,
		InterestRate:    req.InterestRate,
		DurationSeconds: req.DurationSeconds,
		Terms:           req.Terms,
	})
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *LoanHandler) ListLoans(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_address"})
		return
	}
	items, err := h.loanService.LoansForAddress(c.Request.Context(), address)
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *LoanHandler) GetLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("loanId"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_loan_id"})
		return
	}
	status, err := h.loanService.LoanStatus(c.Request.Context(), loanID)
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *LoanHandler) RepayLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("loanId"))
	caller := c.GetString("wallet_address")
	if loanID == "" || caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rec, err := h.loanService.RepayLoanEarly(c.Request.Context(), loanID, caller)
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *LoanHandler) CancelLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("loanId"))
	caller := c.GetString("wallet_address")
	if loanID == "" || caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rec, err := h.loanService.CancelLoan(c.Request.Context(), loanID, caller)
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *LoanHandler) CheckEligibility(c *gin.Context) {
	var req struct {
		Address string  `json:"address"`
		Amount  float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	elig, err := h.loanService.CheckEligibility(c.Request.Context(), req.Address, req.Amount)
	if err != nil {
		writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, elig)
}

// writeLoanError maps loan sentinels to HTTP statuses. The defaulted/
// repaid outcome of a repay call is a success, not an error, so only
// precondition failures land here.
func writeLoanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loandomain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "loan_not_found"})
	case errors.Is(err, loandomain.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "loan_not_active"})
	case errors.Is(err, loandomain.ErrNotBorrower):
		c.JSON(http.StatusForbidden, gin.H{"error": "not_borrower"})
	case errors.Is(err, loandomain.ErrPastDeadline):
		c.JSON(http.StatusConflict, gin.H{"error": "past_deadline"})
	case errors.Is(err, loandomain.ErrIneligible):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "ineligible", "message": err.Error()})
	case errors.Is(err, loandomain.ErrInsufficientLenderBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_lender_balance"})
	case errors.Is(err, loandomain.ErrPaymentFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment_failed"})
	case errors.Is(err, loandomain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
