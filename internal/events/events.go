package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/CalebHite/trustlend/internal/domain/loan"
)

const (
	TopicLoanRepaid    = "loan_repaid"
	TopicLoanDefaulted = "loan_defaulted"
)

// Effect is one queued post-settlement side effect.
type Effect struct {
	ID          int64
	Topic       string
	Payload     []byte
	Attempts    int32
	LastError   string
	AvailableAt time.Time
}

// Outbox queues effects for the dispatcher. Enqueue is called from the
// scheduler's execution path and must be cheap.
type Outbox interface {
	Enqueue(ctx context.Context, topic string, payload []byte) error
	ClaimPending(ctx context.Context, limit int32) ([]Effect, error)
	MarkDone(ctx context.Context, effectID int64) error
	MarkRetry(ctx context.Context, effectID int64, nextAvailableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, effectID int64, lastError string) error
}

type settlementPayload struct {
	LoanID               string  `json:"loan_id"`
	BorrowerAddress      string  `json:"borrower_address"`
	LenderAddress        string  `json:"lender_address"`
	PrincipalAmount      float64 `json:"principal_amount"`
	TotalRepaymentAmount float64 `json:"total_repayment_amount"`
	RepaymentTxHash      string  `json:"repayment_tx_hash,omitempty"`
}

// Recorder turns loan settlements into queued effects. It is the
// scheduler's effect sink; nothing downstream runs on the settlement
// goroutine.
type Recorder struct {
	outbox Outbox
	logger *slog.Logger
}

func NewRecorder(outbox Outbox, logger *slog.Logger) *Recorder {
	return &Recorder{outbox: outbox, logger: logger}
}

func (r *Recorder) LoanRepaid(ctx context.Context, rec loan.Record) {
	r.record(ctx, TopicLoanRepaid, rec)
}

func (r *Recorder) LoanDefaulted(ctx context.Context, rec loan.Record) {
	r.record(ctx, TopicLoanDefaulted, rec)
}

func (r *Recorder) record(ctx context.Context, topic string, rec loan.Record) {
	payload, _ := json.Marshal(settlementPayload{
		LoanID:               rec.ID,
		BorrowerAddress:      rec.BorrowerAddress,
		LenderAddress:        rec.LenderAddress,
		PrincipalAmount:      rec.PrincipalAmount,
		TotalRepaymentAmount: rec.TotalRepaymentAmount,
		RepaymentTxHash:      rec.RepaymentTxHash,
	})
	if err := r.outbox.Enqueue(ctx, topic, payload); err != nil {
		r.logger.Error("failed to enqueue settlement effect", "topic", topic, "loan_id", rec.ID, "err", err)
	}
}
