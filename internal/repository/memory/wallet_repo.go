package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/CalebHite/trustlend/internal/credit"
)

var ErrWalletNotFound = errors.New("wallet_not_found")

type Wallet struct {
	Address     string `json:"address"`
	Label       string `json:"label"`
	Network     string `json:"network"`
	CreditScore int    `json:"credit_score"`
}

// WalletRepository keeps wallet records keyed by address. New records
// start at the default credit score.
type WalletRepository struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
}

func NewWalletRepository() *WalletRepository {
	return &WalletRepository{wallets: map[string]Wallet{}}
}

func (r *WalletRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.CreditScore <= 0 {
		w.CreditScore = credit.DefaultScore
	}
	r.wallets[w.Address] = w
	return nil
}

func (r *WalletRepository) Get(_ context.Context, address string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[address]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := w
	return &cp, nil
}

// Profile reads the credit profile for an address. Unknown addresses
// come back with an unset score so the credit ledger can default them;
// eligibility checks must work for wallets created outside this store.
func (r *WalletRepository) Profile(_ context.Context, address string) (credit.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[address]
	if !ok {
		return credit.Profile{Address: address, CreditScore: credit.ScoreUnset}, nil
	}
	return credit.Profile{Address: address, CreditScore: w.CreditScore}, nil
}

// SetCreditScore upserts: score adjustments apply to any party address,
// not only wallets created through this store.
func (r *WalletRepository) SetCreditScore(_ context.Context, address string, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		w = Wallet{Address: address}
	}
	w.CreditScore = score
	r.wallets[address] = w
	return nil
}

// Ping satisfies the readiness probe; memory is always ready.
func (r *WalletRepository) Ping(_ context.Context) error { return nil }
