package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CalebHite/trustlend/internal/credit"
	"github.com/CalebHite/trustlend/internal/repository/memory"
)

// WalletRepository is the durable wallet store. It mirrors the memory
// contract: Profile never errors for unknown addresses and score writes
// upsert.
type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func (r *WalletRepository) Create(ctx context.Context, w memory.Wallet) error {
	if w.CreditScore <= 0 {
		w.CreditScore = credit.DefaultScore
	}
	q := `
INSERT INTO wallets (address, label, network, credit_score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (address) DO UPDATE SET label = EXCLUDED.label, network = EXCLUDED.network
`
	_, err := r.pool.Exec(ctx, q, w.Address, w.Label, w.Network, w.CreditScore)
	return err
}

func (r *WalletRepository) Get(ctx context.Context, address string) (*memory.Wallet, error) {
	q := `SELECT address, label, network, credit_score FROM wallets WHERE address = $1`
	w := &memory.Wallet{}
	err := r.pool.QueryRow(ctx, q, address).Scan(&w.Address, &w.Label, &w.Network, &w.CreditScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WalletRepository) Profile(ctx context.Context, address string) (credit.Profile, error) {
	q := `SELECT credit_score FROM wallets WHERE address = $1`
	p := credit.Profile{Address: address}
	err := r.pool.QueryRow(ctx, q, address).Scan(&p.CreditScore)
	if errors.Is(err, pgx.ErrNoRows) {
		p.CreditScore = credit.ScoreUnset
		return p, nil
	}
	if err != nil {
		return credit.Profile{}, err
	}
	return p, nil
}

func (r *WalletRepository) SetCreditScore(ctx context.Context, address string, score int) error {
	q := `
INSERT INTO wallets (address, credit_score)
VALUES ($1, $2)
ON CONFLICT (address) DO UPDATE SET credit_score = EXCLUDED.credit_score
`
	_, err := r.pool.Exec(ctx, q, address, score)
	return err
}

func (r *WalletRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
