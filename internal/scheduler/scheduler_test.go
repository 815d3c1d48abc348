package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/CalebHite/trustlend/internal/domain/loan"
	"github.com/CalebHite/trustlend/internal/ledger"
	"github.com/CalebHite/trustlend/internal/repository/memory"
	"github.com/CalebHite/trustlend/internal/scheduler"
)

type recordedEffects struct {
	mu        sync.Mutex
	repaid    []loan.Record
	defaulted []loan.Record
}

func (e *recordedEffects) LoanRepaid(_ context.Context, rec loan.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repaid = append(e.repaid, rec)
}

func (e *recordedEffects) LoanDefaulted(_ context.Context, rec loan.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaulted = append(e.defaulted, rec)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type fixture struct {
	registry *memory.LoanRepository
	store    *memory.EntryStore
	sim      *ledger.Sim
	effects  *recordedEffects
	clock    *scheduler.ManualClock
	sched    *scheduler.Scheduler
	borrower ledger.Credential
	lender   ledger.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := ledger.NewSim(10)
	borrower, err := sim.CreateAccount(context.Background(), "borrower")
	if err != nil {
		t.Fatalf("create borrower: %v", err)
	}
	lender, err := sim.CreateAccount(context.Background(), "lender")
	if err != nil {
		t.Fatalf("create lender: %v", err)
	}

	f := &fixture{
		registry: memory.NewLoanRepository(),
		store:    memory.NewEntryStore(),
		sim:      sim,
		effects:  &recordedEffects{},
		clock:    scheduler.NewManualClock(time.Unix(1_700_000_000, 0)),
		borrower: borrower.Credential,
		lender:   lender.Credential,
	}
	f.sched = scheduler.New(f.registry, f.sim, f.store, f.effects, f.clock, testLogger())
	return f
}

func (f *fixture) createLoan(t *testing.T, id string, executeAt int64) *loan.Record {
	t.Helper()
	now := f.clock.Now().Unix()
	rec := &loan.Record{
		ID:                   id,
		BorrowerAddress:      f.borrower.Address,
		LenderAddress:        f.lender.Address,
		PrincipalAmount:      10,
		InterestRate:         5,
		TotalRepaymentAmount: 10.5,
		DurationSeconds:      executeAt - now,
		CreatedAt:            now,
		ExecuteAt:            executeAt,
		Status:               loan.StatusActive,
	}
	if err := f.registry.Create(context.Background(), rec); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	return rec
}

func TestTimerFireRepaysLoan(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 60
	f.createLoan(t, "loan-1", executeAt)

	f.sched.Schedule("loan-1", executeAt, f.borrower)

	f.clock.Advance(30 * time.Second)
	rec, _ := f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusActive {
		t.Fatalf("loan settled before its deadline: %s", rec.Status)
	}

	f.clock.Advance(30 * time.Second)
	rec, _ = f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusRepaid {
		t.Fatalf("expected repaid, got %s", rec.Status)
	}
	if rec.RepaymentTxHash == "" || rec.RepaidAt == 0 {
		t.Fatalf("repayment fields not set: %+v", rec)
	}
	if len(f.effects.repaid) != 1 || len(f.effects.defaulted) != 0 {
		t.Fatalf("unexpected effects: %+v", f.effects)
	}

	balance, _ := f.sim.GetAccountBalance(context.Background(), f.lender.Address)
	if ledger.ParseAmount(balance) != 110.5 {
		t.Fatalf("lender balance after repayment: %s", balance)
	}
}

func TestUnfundedBorrowerDefaultsOnFire(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 10
	f.createLoan(t, "loan-1", executeAt)
	f.sim.SetBalance(f.borrower.Address, 1)

	f.sched.Schedule("loan-1", executeAt, f.borrower)
	f.clock.Advance(10 * time.Second)

	rec, _ := f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusDefaulted {
		t.Fatalf("expected defaulted, got %s", rec.Status)
	}
	if len(f.effects.defaulted) != 1 || len(f.effects.repaid) != 0 {
		t.Fatalf("unexpected effects: %+v", f.effects)
	}
}

func TestPastDueDeadlineFiresImmediately(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() - 5
	f.createLoan(t, "loan-1", executeAt)

	f.sched.Schedule("loan-1", executeAt, f.borrower)
	f.clock.Advance(0)

	rec, _ := f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusRepaid {
		t.Fatalf("overdue loan should settle on schedule, got %s", rec.Status)
	}
}

func TestExecuteNowWinsRaceWithTimer(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 60
	f.createLoan(t, "loan-1", executeAt)
	f.sched.Schedule("loan-1", executeAt, f.borrower)

	rec, err := f.sched.ExecuteNow(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("execute now: %v", err)
	}
	if rec.Status != loan.StatusRepaid {
		t.Fatalf("expected repaid, got %s", rec.Status)
	}

	// The armed timer coming due later must not attempt a second payment.
	f.clock.Advance(120 * time.Second)
	if len(f.effects.repaid) != 1 {
		t.Fatalf("settlement happened more than once: %+v", f.effects)
	}
	balance, _ := f.sim.GetAccountBalance(context.Background(), f.lender.Address)
	if ledger.ParseAmount(balance) != 110.5 {
		t.Fatalf("lender balance after race: %s", balance)
	}
}

func TestExecuteNowOnUnscheduledLoan(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sched.ExecuteNow(context.Background(), "ghost"); !errors.Is(err, loan.ErrNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 60
	f.createLoan(t, "loan-1", executeAt)
	f.sched.Schedule("loan-1", executeAt, f.borrower)

	if !f.sched.Cancel("loan-1") {
		t.Fatal("cancel should claim the armed entry")
	}
	if f.sched.Cancel("loan-1") {
		t.Fatal("second cancel should find nothing to claim")
	}

	f.clock.Advance(120 * time.Second)
	rec, _ := f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusActive {
		t.Fatalf("cancelled entry still fired: %s", rec.Status)
	}
	if len(f.effects.repaid)+len(f.effects.defaulted) != 0 {
		t.Fatalf("effects recorded after cancel: %+v", f.effects)
	}
}

func TestScheduleIsIdempotentPerLoan(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 30
	f.createLoan(t, "loan-1", executeAt)

	f.sched.Schedule("loan-1", executeAt, f.borrower)
	f.sched.Schedule("loan-1", executeAt, f.borrower)

	f.clock.Advance(30 * time.Second)
	if len(f.effects.repaid) != 1 {
		t.Fatalf("duplicate schedule caused %d settlements", len(f.effects.repaid))
	}
}

func TestRestoreRearmsActiveLoans(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 45
	f.createLoan(t, "loan-active", executeAt)
	settled := f.createLoan(t, "loan-settled", executeAt)
	if _, err := f.registry.Transition(context.Background(), settled.ID, loan.StatusCancelled, loan.TransitionFields{CancelledAt: f.clock.Now().Unix()}); err != nil {
		t.Fatalf("settle loan: %v", err)
	}

	seed := []scheduler.Entry{
		{LoanID: "loan-active", ExecuteAt: executeAt, Credential: f.borrower},
		{LoanID: "loan-settled", ExecuteAt: executeAt, Credential: f.borrower},
		{LoanID: "loan-gone", ExecuteAt: executeAt, Credential: f.borrower},
	}
	for _, e := range seed {
		if err := f.store.Put(context.Background(), e); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}

	// Fresh scheduler standing in for the post-restart process.
	restarted := scheduler.New(f.registry, f.sim, f.store, f.effects, f.clock, testLogger())
	if err := restarted.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	remaining, _ := f.store.ListActive(context.Background())
	if len(remaining) != 1 || remaining[0].LoanID != "loan-active" {
		t.Fatalf("stale entries not dropped: %+v", remaining)
	}

	f.clock.Advance(45 * time.Second)
	rec, _ := f.registry.Get(context.Background(), "loan-active")
	if rec.Status != loan.StatusRepaid {
		t.Fatalf("restored loan did not settle, got %s", rec.Status)
	}
	if len(f.effects.repaid) != 1 {
		t.Fatalf("expected exactly one settlement, got %+v", f.effects)
	}
}

func TestCloseStopsArmedTimers(t *testing.T) {
	f := newFixture(t)
	executeAt := f.clock.Now().Unix() + 30
	f.createLoan(t, "loan-1", executeAt)
	f.sched.Schedule("loan-1", executeAt, f.borrower)

	f.sched.Close()
	f.clock.Advance(60 * time.Second)

	rec, _ := f.registry.Get(context.Background(), "loan-1")
	if rec.Status != loan.StatusActive {
		t.Fatalf("timer fired after close: %s", rec.Status)
	}
}
