package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CalebHite/trustlend/internal/credit"
	"github.com/CalebHite/trustlend/internal/ledger"
)

// WalletStore is the wallet persistence slice the service reads.
type WalletStore interface {
	Profile(ctx context.Context, address string) (credit.Profile, error)
}

// RepaymentScheduler is the deferred-execution capability the service
// registers loans with.
type RepaymentScheduler interface {
	Schedule(loanID string, executeAt int64, cred ledger.Credential)
	Cancel(loanID string) bool
	ExecuteNow(ctx context.Context, loanID string) (*Record, error)
}

type CreateLoanInput struct {
	Borrower        ledger.Credential
	Lender          ledger.Credential
	PrincipalAmount float64
	InterestRate    float64
	DurationSeconds int64
	Terms           string
}

type CreateLoanResult struct {
	Loan   *Record `json:"loan"`
	TxHash string  `json:"tx_hash"`
}

// StatusResult is the polling shape for a single loan.
type StatusResult struct {
	Loan               *Record `json:"loan"`
	Status             Status  `json:"status"`
	TimeUntilRepayment int64   `json:"time_until_repayment"`
	IsOverdue          bool    `json:"is_overdue"`
}

const idCollisionRetries = 3

// Service originates loans and owns the exposed lifecycle operations.
// Ledger failures never escape as panics or raw transport errors; every
// operation resolves to a record or a sentinel-wrapped error.
type Service struct {
	registry     Registry
	wallets      WalletStore
	gateway      ledger.Gateway
	sched        RepaymentScheduler
	creditLedger *credit.Ledger
	feeBuffer    float64
	now          func() time.Time
	logger       *slog.Logger
}

func NewService(registry Registry, wallets WalletStore, gateway ledger.Gateway, sched RepaymentScheduler, creditLedger *credit.Ledger, feeBuffer float64, logger *slog.Logger) *Service {
	return &Service{
		registry:     registry,
		wallets:      wallets,
		gateway:      gateway,
		sched:        sched,
		creditLedger: creditLedger,
		feeBuffer:    feeBuffer,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// CreateLoan validates preconditions, moves principal lender->borrower,
// records the loan and arms its repayment timer. Everything up to the
// principal payment is side-effect free; once the payment lands the loan
// record is always created.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (*CreateLoanResult, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	profile, err := s.wallets.Profile(ctx, in.Borrower.Address)
	if err != nil {
		return nil, fmt.Errorf("load borrower profile: %w", err)
	}
	s.creditLedger.Initialize(&profile)
	elig := s.creditLedger.CheckEligibility(&profile, in.PrincipalAmount)
	if !elig.Eligible {
		return nil, fmt.Errorf("%w: %s", ErrIneligible, elig.Message)
	}

	balance, err := s.gateway.GetAccountBalance(ctx, in.Lender.Address)
	if err != nil {
		return nil, fmt.Errorf("check lender balance: %w", err)
	}
	if ledger.ParseAmount(balance) < in.PrincipalAmount+s.feeBuffer {
		return nil, fmt.Errorf("%w: lender balance %s is below %g", ErrInsufficientLenderBalance, balance, in.PrincipalAmount+s.feeBuffer)
	}

	payment, err := s.gateway.SendPayment(ctx, in.Lender, in.Borrower.Address, in.PrincipalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if !payment.Success {
		return nil, fmt.Errorf("%w: ledger rejected principal transfer (%s)", ErrPaymentFailed, payment.ResultCode)
	}

	// Principal has moved; from here on the record must exist.
	now := s.now()
	rec := &Record{
		BorrowerAddress:      in.Borrower.Address,
		LenderAddress:        in.Lender.Address,
		PrincipalAmount:      in.PrincipalAmount,
		InterestRate:         in.InterestRate,
		TotalRepaymentAmount: TotalRepayment(in.PrincipalAmount, in.InterestRate),
		DurationSeconds:      in.DurationSeconds,
		CreatedAt:            now.Unix(),
		ExecuteAt:            now.Unix() + in.DurationSeconds,
		Terms:                strings.TrimSpace(in.Terms),
		Status:               StatusActive,
		TxHash:               payment.TxHash,
	}

	var createErr error
	for attempt := 0; attempt < idCollisionRetries; attempt++ {
		rec.ID = newLoanID(now)
		if createErr = s.registry.Create(ctx, rec); !errors.Is(createErr, ErrDuplicateID) {
			break
		}
	}
	if createErr != nil {
		// Funds already moved; losing the record here is the one failure
		// mode that must be shouted about.
		s.logger.Error("loan record not created after principal transfer",
			"borrower", in.Borrower.Address, "lender", in.Lender.Address,
			"tx_hash", payment.TxHash, "err", createErr)
		return nil, fmt.Errorf("record loan after transfer %s: %w", payment.TxHash, createErr)
	}

	s.sched.Schedule(rec.ID, rec.ExecuteAt, in.Borrower)
	s.logger.Info("loan originated",
		"loan_id", rec.ID,
		"principal", rec.PrincipalAmount,
		"total_repayment", rec.TotalRepaymentAmount,
		"execute_at", rec.ExecuteAt,
	)

	return &CreateLoanResult{Loan: rec, TxHash: payment.TxHash}, nil
}

// LoansForAddress lists every loan the address participates in, on
// either side, regardless of status.
func (s *Service) LoansForAddress(ctx context.Context, address string) ([]Record, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: missing address", ErrInvalidInput)
	}
	return s.registry.ListForParty(ctx, strings.TrimSpace(address))
}

// LoanStatus reports a loan with its time remaining until the scheduled
// repayment.
func (s *Service) LoanStatus(ctx context.Context, loanID string) (*StatusResult, error) {
	rec, err := s.registry.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	remaining := rec.ExecuteAt - s.now().Unix()
	out := &StatusResult{
		Loan:      rec,
		Status:    rec.Status,
		IsOverdue: remaining < 0 && rec.Status == StatusActive,
	}
	if remaining > 0 {
		out.TimeUntilRepayment = remaining
	}
	return out, nil
}

// RepayLoanEarly settles the loan now instead of waiting for the timer.
// Only the borrower may trigger it. The attempt races the scheduled
// timer on the same single-shot claim; whichever arrives second no-ops.
func (s *Service) RepayLoanEarly(ctx context.Context, loanID, callerAddress string) (*Record, error) {
	rec, err := s.registry.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return nil, ErrNotActive
	}
	if rec.BorrowerAddress != callerAddress {
		return nil, ErrNotBorrower
	}
	return s.sched.ExecuteNow(ctx, loanID)
}

// CancelLoan voids an active loan before its deadline. Borrower only.
func (s *Service) CancelLoan(ctx context.Context, loanID, callerAddress string) (*Record, error) {
	rec, err := s.registry.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return nil, ErrNotActive
	}
	if rec.BorrowerAddress != callerAddress {
		return nil, ErrNotBorrower
	}
	now := s.now().Unix()
	if now >= rec.ExecuteAt {
		return nil, ErrPastDeadline
	}
	if !s.sched.Cancel(loanID) {
		// Timer claimed the loan first.
		return nil, ErrNotActive
	}
	updated, err := s.registry.Transition(ctx, loanID, StatusCancelled, TransitionFields{CancelledAt: now})
	if err != nil {
		return nil, err
	}
	s.logger.Info("loan cancelled", "loan_id", loanID, "by", callerAddress)
	return updated, nil
}

// CheckEligibility answers whether the address could borrow the amount
// under its current credit tier.
func (s *Service) CheckEligibility(ctx context.Context, address string, amount float64) (credit.Eligibility, error) {
	if strings.TrimSpace(address) == "" || amount <= 0 {
		return credit.Eligibility{}, fmt.Errorf("%w: address and positive amount required", ErrInvalidInput)
	}
	profile, err := s.wallets.Profile(ctx, address)
	if err != nil {
		return credit.Eligibility{}, err
	}
	s.creditLedger.Initialize(&profile)
	return s.creditLedger.CheckEligibility(&profile, amount), nil
}

func validateCreateInput(in CreateLoanInput) error {
	switch {
	case strings.TrimSpace(in.Borrower.Address) == "" || strings.TrimSpace(in.Borrower.Secret) == "":
		return fmt.Errorf("%w: borrower credential required", ErrInvalidInput)
	case strings.TrimSpace(in.Lender.Address) == "" || strings.TrimSpace(in.Lender.Secret) == "":
		return fmt.Errorf("%w: lender credential required", ErrInvalidInput)
	case in.Borrower.Address == in.Lender.Address:
		return fmt.Errorf("%w: borrower and lender must differ", ErrInvalidInput)
	case in.PrincipalAmount <= 0:
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	case in.InterestRate < 0:
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidInput)
	case in.DurationSeconds <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return nil
}

// newLoanID builds a time-plus-random id. Uniqueness is probabilistic;
// the registry's duplicate check plus the caller's retry loop covers the
// collision case instead of assuming it impossible.
func newLoanID(now time.Time) string {
	return fmt.Sprintf("loan-%d-%s", now.Unix(), uuid.NewString()[:8])
}
