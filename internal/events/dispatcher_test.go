package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/CalebHite/trustlend/internal/credit"
	"github.com/CalebHite/trustlend/internal/domain/loan"
)

type fakeOutbox struct {
	effects   []Effect
	doneIDs   []int64
	retryIDs  []int64
	failedIDs []int64

	doneErrID int64
	doneErr   error
}

func (o *fakeOutbox) Enqueue(_ context.Context, topic string, payload []byte) error {
	o.effects = append(o.effects, Effect{ID: int64(len(o.effects) + 1), Topic: topic, Payload: payload})
	return nil
}

func (o *fakeOutbox) ClaimPending(_ context.Context, _ int32) ([]Effect, error) {
	return o.effects, nil
}

func (o *fakeOutbox) MarkDone(_ context.Context, id int64) error {
	if o.doneErr != nil && id == o.doneErrID {
		return o.doneErr
	}
	o.doneIDs = append(o.doneIDs, id)
	return nil
}

func (o *fakeOutbox) MarkRetry(_ context.Context, id int64, _ time.Time, _ string) error {
	o.retryIDs = append(o.retryIDs, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id int64, _ string) error {
	o.failedIDs = append(o.failedIDs, id)
	return nil
}

type fakeWallets struct {
	scores  map[string]int
	saveErr error
}

func (w *fakeWallets) Profile(_ context.Context, address string) (credit.Profile, error) {
	score, ok := w.scores[address]
	if !ok {
		score = credit.ScoreUnset
	}
	return credit.Profile{Address: address, CreditScore: score}, nil
}

func (w *fakeWallets) SetCreditScore(_ context.Context, address string, score int) error {
	if w.saveErr != nil {
		return w.saveErr
	}
	w.scores[address] = score
	return nil
}

type fakePublisher struct {
	channels []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(channel string, payload []byte) {
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func enqueueSettlement(t *testing.T, outbox *fakeOutbox, topic string) {
	t.Helper()
	rec := loan.Record{
		ID:                   "loan-1",
		BorrowerAddress:      "rBorrower",
		LenderAddress:        "rLender",
		PrincipalAmount:      10,
		TotalRepaymentAmount: 10.5,
		RepaymentTxHash:      "HASH",
	}
	NewRecorder(outbox, testLogger()).record(context.Background(), topic, rec)
}

func TestDispatcherAppliesRepaymentBonus(t *testing.T) {
	outbox := &fakeOutbox{}
	wallets := &fakeWallets{scores: map[string]int{"rBorrower": 100}}
	pub := &fakePublisher{}
	d := NewDispatcher(outbox, wallets, credit.NewLedger(nil), pub, testLogger())

	enqueueSettlement(t, outbox, TopicLoanRepaid)
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if wallets.scores["rBorrower"] != 101 {
		t.Fatalf("expected score 101, got %d", wallets.scores["rBorrower"])
	}
	if len(outbox.doneIDs) != 1 {
		t.Fatalf("effect not marked done: %+v", outbox)
	}
	if len(pub.channels) != 3 || pub.channels[0] != "loan:loan-1" {
		t.Fatalf("unexpected publications: %v", pub.channels)
	}

	var msg struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(pub.payloads[0], &msg)
	if msg.Event != TopicLoanRepaid {
		t.Fatalf("unexpected event %s", msg.Event)
	}
}

func TestDispatcherAppliesDefaultPenaltyWithFloor(t *testing.T) {
	outbox := &fakeOutbox{}
	wallets := &fakeWallets{scores: map[string]int{"rBorrower": 30}}
	d := NewDispatcher(outbox, wallets, credit.NewLedger(nil), nil, testLogger())

	enqueueSettlement(t, outbox, TopicLoanDefaulted)
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if wallets.scores["rBorrower"] != 0 {
		t.Fatalf("expected floor at 0, got %d", wallets.scores["rBorrower"])
	}
}

func TestDispatcherDefaultsUnknownBorrowerTo100(t *testing.T) {
	outbox := &fakeOutbox{}
	wallets := &fakeWallets{scores: map[string]int{}}
	d := NewDispatcher(outbox, wallets, credit.NewLedger(nil), nil, testLogger())

	enqueueSettlement(t, outbox, TopicLoanRepaid)
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if wallets.scores["rBorrower"] != 101 {
		t.Fatalf("unscored borrower should start at the default, got %d", wallets.scores["rBorrower"])
	}
}

func TestDispatcherRetriesTransientStoreErrors(t *testing.T) {
	outbox := &fakeOutbox{}
	wallets := &fakeWallets{scores: map[string]int{}, saveErr: errors.New("store down")}
	d := NewDispatcher(outbox, wallets, credit.NewLedger(nil), nil, testLogger())

	enqueueSettlement(t, outbox, TopicLoanRepaid)
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.retryIDs) != 1 {
		t.Fatalf("expected a retry, got %+v", outbox)
	}

	outbox.effects[0].Attempts = 5
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.failedIDs) != 1 {
		t.Fatalf("expected failure after max attempts, got %+v", outbox)
	}
}

func TestDispatcherFinishesBatchPastBookkeepingError(t *testing.T) {
	outbox := &fakeOutbox{doneErrID: 1, doneErr: errors.New("outbox down")}
	wallets := &fakeWallets{scores: map[string]int{"rBorrower": 100}}
	d := NewDispatcher(outbox, wallets, credit.NewLedger(nil), nil, testLogger())

	enqueueSettlement(t, outbox, TopicLoanRepaid)
	enqueueSettlement(t, outbox, TopicLoanRepaid)
	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if wallets.scores["rBorrower"] != 102 {
		t.Fatalf("second effect not applied, score %d", wallets.scores["rBorrower"])
	}
	if len(outbox.doneIDs) != 1 || outbox.doneIDs[0] != 2 {
		t.Fatalf("expected the second effect marked done, got %v", outbox.doneIDs)
	}
}

func TestDispatcherRejectsUnknownTopic(t *testing.T) {
	outbox := &fakeOutbox{}
	_ = outbox.Enqueue(context.Background(), "mystery", []byte(`{}`))
	d := NewDispatcher(outbox, &fakeWallets{scores: map[string]int{}}, credit.NewLedger(nil), nil, testLogger())

	if err := d.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.failedIDs) != 1 {
		t.Fatalf("unknown topic should be failed, got %+v", outbox)
	}
}
