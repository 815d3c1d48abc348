package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/CalebHite/trustlend/internal/domain/loan"
)

// LoanRepository is the in-memory loan.Registry: process memory only,
// safe for interleaved access from in-flight loan operations.
type LoanRepository struct {
	mu    sync.RWMutex
	loans map[string]loan.Record
}

func NewLoanRepository() *LoanRepository {
	return &LoanRepository{loans: map[string]loan.Record{}}
}

func (r *LoanRepository) Create(_ context.Context, rec *loan.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[rec.ID]; ok {
		return loan.ErrDuplicateID
	}
	r.loans[rec.ID] = *rec
	return nil
}

func (r *LoanRepository) Get(_ context.Context, id string) (*loan.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (r *LoanRepository) ListActive(_ context.Context) ([]loan.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]loan.Record, 0)
	for _, rec := range r.loans {
		if rec.Status == loan.StatusActive {
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (r *LoanRepository) ListForParty(_ context.Context, address string) ([]loan.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]loan.Record, 0)
	for _, rec := range r.loans {
		if rec.BorrowerAddress == address || rec.LenderAddress == address {
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (r *LoanRepository) Transition(_ context.Context, id string, to loan.Status, fields loan.TransitionFields) (*loan.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	if !loan.CanTransition(rec.Status, to) {
		return nil, loan.ErrNotActive
	}

	rec.Status = to
	switch to {
	case loan.StatusRepaid:
		rec.RepaidAt = fields.RepaidAt
		rec.RepaymentTxHash = fields.RepaymentTxHash
	case loan.StatusCancelled:
		rec.CancelledAt = fields.CancelledAt
	}
	r.loans[id] = rec

	cp := rec
	return &cp, nil
}

func sortByCreation(recs []loan.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt == recs[j].CreatedAt {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt < recs[j].CreatedAt
	})
}
