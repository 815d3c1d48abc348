package loan

import "context"

type Status string

const (
	StatusActive    Status = "active"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

// Record is a loan agreement. TotalRepaymentAmount and ExecuteAt are
// fixed at creation and never recomputed; Status only moves forward per
// CanTransition. Timestamps are epoch seconds.
type Record struct {
	ID                   string  `json:"id"`
	BorrowerAddress      string  `json:"borrower_address"`
	LenderAddress        string  `json:"lender_address"`
	PrincipalAmount      float64 `json:"principal_amount"`
	InterestRate         float64 `json:"interest_rate"`
	TotalRepaymentAmount float64 `json:"total_repayment_amount"`
	DurationSeconds      int64   `json:"duration_seconds"`
	CreatedAt            int64   `json:"created_at"`
	ExecuteAt            int64   `json:"execute_at"`
	Terms                string  `json:"terms,omitempty"`
	Status               Status  `json:"status"`
	RepaidAt             int64   `json:"repaid_at,omitempty"`
	CancelledAt          int64   `json:"cancelled_at,omitempty"`
	TxHash               string  `json:"tx_hash"`
	RepaymentTxHash      string  `json:"repayment_tx_hash,omitempty"`
}

// TransitionFields carries the per-transition extras; only the fields
// relevant to the target status are consulted.
type TransitionFields struct {
	RepaidAt        int64
	CancelledAt     int64
	RepaymentTxHash string
}

// CanTransition is the loan state machine: active is the only non-terminal
// state, and every move out of it is final.
func CanTransition(from, to Status) bool {
	if from != StatusActive {
		return false
	}
	switch to {
	case StatusRepaid, StatusDefaulted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Registry stores loan records keyed by id. Create rejects duplicate
// ids; Transition enforces CanTransition and reports ErrNotActive for
// moves out of terminal states.
type Registry interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListActive(ctx context.Context) ([]Record, error)
	ListForParty(ctx context.Context, address string) ([]Record, error)
	Transition(ctx context.Context, id string, to Status, fields TransitionFields) (*Record, error)
}

// TotalRepayment computes principal plus simple interest at the given
// percentage rate.
func TotalRepayment(principal, ratePercent float64) float64 {
	return principal + principal*ratePercent/100
}
