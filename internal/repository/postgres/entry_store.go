package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CalebHite/trustlend/internal/scheduler"
)

// EntryStore persists armed repayment timers so they can be re-armed
// after a restart. The stored secret is the borrower's signing material;
// the table should be locked down accordingly.
type EntryStore struct {
	pool *pgxpool.Pool
}

func NewEntryStore(pool *pgxpool.Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

func (s *EntryStore) Put(ctx context.Context, e scheduler.Entry) error {
	q := `
INSERT INTO scheduler_entries (loan_id, execute_at, borrower_address, borrower_secret)
VALUES ($1, $2, $3, $4)
ON CONFLICT (loan_id) DO UPDATE SET execute_at = EXCLUDED.execute_at
`
	_, err := s.pool.Exec(ctx, q, e.LoanID, e.ExecuteAt, e.Credential.Address, e.Credential.Secret)
	return err
}

func (s *EntryStore) Delete(ctx context.Context, loanID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scheduler_entries WHERE loan_id = $1`, loanID)
	return err
}

func (s *EntryStore) ListActive(ctx context.Context) ([]scheduler.Entry, error) {
	q := `SELECT loan_id, execute_at, borrower_address, borrower_secret FROM scheduler_entries ORDER BY execute_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]scheduler.Entry, 0)
	for rows.Next() {
		var e scheduler.Entry
		if err := rows.Scan(&e.LoanID, &e.ExecuteAt, &e.Credential.Address, &e.Credential.Secret); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
