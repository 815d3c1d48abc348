package memory

import (
	"context"
	"sync"

	"github.com/CalebHite/trustlend/internal/scheduler"
)

// EntryStore keeps scheduler entries in memory. Entries do not survive a
// restart; the memory profile accepts losing armed timers.
type EntryStore struct {
	mu      sync.Mutex
	entries map[string]scheduler.Entry
}

func NewEntryStore() *EntryStore {
	return &EntryStore{entries: map[string]scheduler.Entry{}}
}

func (s *EntryStore) Put(_ context.Context, e scheduler.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.LoanID] = e
	return nil
}

func (s *EntryStore) Delete(_ context.Context, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, loanID)
	return nil
}

func (s *EntryStore) ListActive(_ context.Context) ([]scheduler.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduler.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}
