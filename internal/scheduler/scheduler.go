package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CalebHite/trustlend/internal/domain/loan"
	"github.com/CalebHite/trustlend/internal/ledger"
)

// Entry is the deferred-execution registration for one loan. It is
// destroyed on the first execution attempt, success or failure.
type Entry struct {
	LoanID     string
	ExecuteAt  int64
	Credential ledger.Credential
}

// EntryStore persists scheduler entries so a durable deployment can
// re-arm timers after a restart. The in-memory profile keeps entries in
// process memory and loses armed timers on restart.
type EntryStore interface {
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, loanID string) error
	ListActive(ctx context.Context) ([]Entry, error)
}

// EffectSink receives post-transition effects. The scheduler never
// applies credit changes itself; it records what happened.
type EffectSink interface {
	LoanRepaid(ctx context.Context, rec loan.Record)
	LoanDefaulted(ctx context.Context, rec loan.Record)
}

type armedEntry struct {
	entry  Entry
	active bool
	timer  Timer
}

// Scheduler arms one-shot repayment timers. The per-loan active flag is
// claimed under the mutex before any ledger call, so a manual repayment
// and a timer fire race to a single winner and the loser no-ops.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*armedEntry

	registry loan.Registry
	gateway  ledger.Gateway
	store    EntryStore
	effects  EffectSink
	clock    Clock
	logger   *slog.Logger

	execTimeout time.Duration
}

func New(registry loan.Registry, gateway ledger.Gateway, store EntryStore, effects EffectSink, clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		entries:     map[string]*armedEntry{},
		registry:    registry,
		gateway:     gateway,
		store:       store,
		effects:     effects,
		clock:       clock,
		logger:      logger,
		execTimeout: 60 * time.Second,
	}
}

// Schedule arms the repayment timer for a loan. A loan already scheduled
// is left alone. Past-due deadlines fire immediately, asynchronously to
// the caller.
func (s *Scheduler) Schedule(loanID string, executeAt int64, cred ledger.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[loanID]; ok {
		return
	}

	e := Entry{LoanID: loanID, ExecuteAt: executeAt, Credential: cred}
	if s.store != nil {
		if err := s.store.Put(context.Background(), e); err != nil {
			s.logger.Error("failed to persist scheduler entry", "loan_id", loanID, "err", err)
		}
	}

	delay := time.Duration(executeAt-s.clock.Now().Unix()) * time.Second
	armed := &armedEntry{entry: e, active: true}
	armed.timer = s.clock.AfterFunc(delay, func() { s.fire(loanID) })
	s.entries[loanID] = armed

	s.logger.Info("repayment scheduled", "loan_id", loanID, "execute_at", executeAt)
}

// Cancel clears the entry's active flag before the timer fires. Returns
// false when the loan was never scheduled or already claimed, in which
// case the caller must not treat the loan as settleable.
func (s *Scheduler) Cancel(loanID string) bool {
	_, ok := s.claim(loanID)
	return ok
}

// ExecuteNow runs the single repayment attempt on the caller's
// goroutine. Used by the manual early-repayment path; races with the
// armed timer on the same claim.
func (s *Scheduler) ExecuteNow(ctx context.Context, loanID string) (*loan.Record, error) {
	return s.execute(ctx, loanID)
}

// Restore re-arms timers from the entry store for loans that are still
// active. Called once at boot by the durable profile.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	entries, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rec, err := s.registry.Get(ctx, e.LoanID)
		if err != nil || rec.Status != loan.StatusActive {
			if derr := s.store.Delete(ctx, e.LoanID); derr != nil {
				s.logger.Error("failed to drop stale scheduler entry", "loan_id", e.LoanID, "err", derr)
			}
			continue
		}
		s.Schedule(e.LoanID, e.ExecuteAt, e.Credential)
	}
	return nil
}

// Close stops all armed timers. In-flight executions finish on their own.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, armed := range s.entries {
		armed.active = false
		if armed.timer != nil {
			armed.timer.Stop()
		}
	}
}

// claim atomically consumes the entry. Exactly one caller wins.
func (s *Scheduler) claim(loanID string) (ledger.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	armed, ok := s.entries[loanID]
	if !ok || !armed.active {
		return ledger.Credential{}, false
	}
	armed.active = false
	if armed.timer != nil {
		armed.timer.Stop()
	}
	delete(s.entries, loanID)

	if s.store != nil {
		if err := s.store.Delete(context.Background(), loanID); err != nil {
			s.logger.Error("failed to delete scheduler entry", "loan_id", loanID, "err", err)
		}
	}
	return armed.entry.Credential, true
}

func (s *Scheduler) fire(loanID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.execTimeout)
	defer cancel()

	rec, err := s.execute(ctx, loanID)
	switch {
	case errors.Is(err, loan.ErrNotActive):
		// Settled through the manual path first.
	case err != nil:
		s.logger.Error("scheduled repayment errored", "loan_id", loanID, "err", err)
	default:
		s.logger.Info("scheduled repayment settled", "loan_id", loanID, "status", rec.Status)
	}
}

func (s *Scheduler) execute(ctx context.Context, loanID string) (*loan.Record, error) {
	cred, ok := s.claim(loanID)
	if !ok {
		return nil, loan.ErrNotActive
	}

	rec, err := s.registry.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if rec.Status != loan.StatusActive {
		return rec, loan.ErrNotActive
	}

	res, payErr := s.gateway.SendPayment(ctx, cred, rec.LenderAddress, rec.TotalRepaymentAmount)
	if payErr != nil || !res.Success {
		updated, terr := s.registry.Transition(ctx, loanID, loan.StatusDefaulted, loan.TransitionFields{})
		if terr != nil {
			return nil, terr
		}
		if payErr != nil {
			s.logger.Warn("repayment attempt errored, loan defaulted", "loan_id", loanID, "err", payErr)
		} else {
			s.logger.Warn("repayment rejected by ledger, loan defaulted", "loan_id", loanID, "result_code", res.ResultCode)
		}
		s.effects.LoanDefaulted(ctx, *updated)
		return updated, nil
	}

	updated, terr := s.registry.Transition(ctx, loanID, loan.StatusRepaid, loan.TransitionFields{
		RepaidAt:        s.clock.Now().Unix(),
		RepaymentTxHash: res.TxHash,
	})
	if terr != nil {
		return nil, terr
	}
	s.effects.LoanRepaid(ctx, *updated)
	return updated, nil
}
