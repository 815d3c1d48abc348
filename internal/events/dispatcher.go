package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/CalebHite/trustlend/internal/credit"
)

// WalletStore is the slice of wallet persistence the dispatcher needs.
type WalletStore interface {
	Profile(ctx context.Context, address string) (credit.Profile, error)
	SetCreditScore(ctx context.Context, address string, score int) error
}

// Publisher pushes realtime payloads to subscribed clients.
type Publisher interface {
	Publish(channel string, payload []byte)
}

// Dispatcher drains the outbox and applies settlement effects: credit
// score adjustments on the borrower plus realtime notifications. Effects
// are retried a bounded number of times on transient store errors.
type Dispatcher struct {
	outbox       Outbox
	wallets      WalletStore
	creditLedger *credit.Ledger
	publisher    Publisher
	logger       *slog.Logger

	maxAttempts  int32
	now          func() time.Time
	retryBackoff func(attempt int32) time.Duration
}

func NewDispatcher(outbox Outbox, wallets WalletStore, creditLedger *credit.Ledger, publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:       outbox,
		wallets:      wallets,
		creditLedger: creditLedger,
		publisher:    publisher,
		logger:       logger,
		maxAttempts:  5,
		now:          func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int32) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt) * 5 * time.Second
		},
	}
}

// Run drains the outbox on an interval until the context ends.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.RunOnce(ctx, 100); err != nil {
				d.logger.Error("effect dispatch pass failed", "err", err)
			}
		}
	}
}

// RunOnce claims one batch and processes every claimed effect. A
// bookkeeping failure on one effect is logged and does not abort the
// batch; bailing early would strand the remaining claimed effects in
// processing with nothing to re-queue them.
func (d *Dispatcher) RunOnce(ctx context.Context, batchSize int32) error {
	effects, err := d.outbox.ClaimPending(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, effect := range effects {
		if err := d.processEffect(ctx, effect); err != nil {
			d.logger.Error("effect bookkeeping failed",
				"effect_id", effect.ID,
				"topic", effect.Topic,
				"err", err,
			)
		}
	}
	return nil
}

func (d *Dispatcher) processEffect(ctx context.Context, effect Effect) error {
	switch effect.Topic {
	case TopicLoanRepaid, TopicLoanDefaulted:
	default:
		return d.outbox.MarkFailed(ctx, effect.ID, "unsupported_topic")
	}

	var payload settlementPayload
	if err := json.Unmarshal(effect.Payload, &payload); err != nil {
		return d.outbox.MarkFailed(ctx, effect.ID, "invalid_payload")
	}
	if payload.LoanID == "" || payload.BorrowerAddress == "" {
		return d.outbox.MarkFailed(ctx, effect.ID, "missing_loan_fields")
	}

	change, err := d.adjustCredit(ctx, effect.Topic, payload.BorrowerAddress)
	if err != nil {
		return d.handleEffectError(ctx, effect, err)
	}

	d.publish(effect.Topic, payload, change)
	return d.outbox.MarkDone(ctx, effect.ID)
}

func (d *Dispatcher) adjustCredit(ctx context.Context, topic, borrower string) (credit.ScoreChange, error) {
	profile, err := d.wallets.Profile(ctx, borrower)
	if err != nil {
		return credit.ScoreChange{}, err
	}
	d.creditLedger.Initialize(&profile)

	var change credit.ScoreChange
	if topic == TopicLoanRepaid {
		change = d.creditLedger.ApplyRepaymentBonus(&profile)
	} else {
		change = d.creditLedger.ApplyDefaultPenalty(&profile)
	}

	if err := d.wallets.SetCreditScore(ctx, borrower, profile.CreditScore); err != nil {
		return credit.ScoreChange{}, err
	}

	d.logger.Info("credit score adjusted",
		"address", borrower,
		"old_score", change.OldScore,
		"new_score", change.NewScore,
		"tier", change.NewTier.Label,
	)
	return change, nil
}

func (d *Dispatcher) publish(topic string, payload settlementPayload, change credit.ScoreChange) {
	if d.publisher == nil {
		return
	}
	msg, _ := json.Marshal(map[string]any{
		"event": topic,
		"data": map[string]any{
			"loan_id":                payload.LoanID,
			"borrower_address":       payload.BorrowerAddress,
			"lender_address":         payload.LenderAddress,
			"total_repayment_amount": payload.TotalRepaymentAmount,
			"repayment_tx_hash":      payload.RepaymentTxHash,
			"credit_old_score":       change.OldScore,
			"credit_new_score":       change.NewScore,
			"credit_tier":            change.NewTier.Label,
		},
	})
	d.publisher.Publish("loan:"+payload.LoanID, msg)
	d.publisher.Publish("address:"+payload.BorrowerAddress, msg)
	d.publisher.Publish(fmt.Sprintf("address:%s", payload.LenderAddress), msg)
}

func (d *Dispatcher) handleEffectError(ctx context.Context, effect Effect, err error) error {
	msg := err.Error()
	if effect.Attempts >= d.maxAttempts {
		return d.outbox.MarkFailed(ctx, effect.ID, msg)
	}
	next := d.now().Add(d.retryBackoff(effect.Attempts))
	return d.outbox.MarkRetry(ctx, effect.ID, next, msg)
}
