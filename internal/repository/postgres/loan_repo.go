package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CalebHite/trustlend/internal/domain/loan"
)

const loanColumns = `
  id, borrower_address, lender_address, principal_amount, interest_rate,
  total_repayment_amount, duration_seconds, created_at, execute_at, terms,
  status, repaid_at, cancelled_at, tx_hash, repayment_tx_hash`

// LoanRepository is the durable loan.Registry. The status CAS in
// Transition is the same rule memory.LoanRepository enforces: only an
// active row moves, and only once.
type LoanRepository struct {
	pool *pgxpool.Pool
}

func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

func (r *LoanRepository) Create(ctx context.Context, rec *loan.Record) error {
	q := `
INSERT INTO loans (
  id, borrower_address, lender_address, principal_amount, interest_rate,
  total_repayment_amount, duration_seconds, created_at, execute_at, terms,
  status, tx_hash
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.pool.Exec(ctx, q,
		rec.ID, rec.BorrowerAddress, rec.LenderAddress, rec.PrincipalAmount, rec.InterestRate,
		rec.TotalRepaymentAmount, rec.DurationSeconds, rec.CreatedAt, rec.ExecuteAt, rec.Terms,
		string(rec.Status), rec.TxHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return loan.ErrDuplicateID
	}
	return err
}

func (r *LoanRepository) Get(ctx context.Context, id string) (*loan.Record, error) {
	q := `SELECT` + loanColumns + ` FROM loans WHERE id = $1`
	rec, err := scanLoan(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, loan.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *LoanRepository) ListActive(ctx context.Context) ([]loan.Record, error) {
	q := `SELECT` + loanColumns + ` FROM loans WHERE status = 'active' ORDER BY created_at, id`
	return r.list(ctx, q)
}

func (r *LoanRepository) ListForParty(ctx context.Context, address string) ([]loan.Record, error) {
	q := `SELECT` + loanColumns + ` FROM loans WHERE borrower_address = $1 OR lender_address = $1 ORDER BY created_at, id`
	return r.list(ctx, q, address)
}

func (r *LoanRepository) Transition(ctx context.Context, id string, to loan.Status, fields loan.TransitionFields) (*loan.Record, error) {
	if !loan.CanTransition(loan.StatusActive, to) {
		return nil, loan.ErrNotActive
	}

	q := `
UPDATE loans
SET status = $2,
    repaid_at = CASE WHEN $2 = 'repaid' THEN $3 ELSE repaid_at END,
    repayment_tx_hash = CASE WHEN $2 = 'repaid' THEN $4 ELSE repayment_tx_hash END,
    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $5 ELSE cancelled_at END
WHERE id = $1 AND status = 'active'
RETURNING` + loanColumns
	rec, err := scanLoan(r.pool.QueryRow(ctx, q, id, string(to), fields.RepaidAt, fields.RepaymentTxHash, fields.CancelledAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the loan does not exist or it already left active.
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, loan.ErrNotActive
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *LoanRepository) list(ctx context.Context, q string, args ...any) ([]loan.Record, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]loan.Record, 0)
	for rows.Next() {
		rec, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanLoan(row pgx.Row) (*loan.Record, error) {
	rec := &loan.Record{}
	err := row.Scan(
		&rec.ID, &rec.BorrowerAddress, &rec.LenderAddress, &rec.PrincipalAmount, &rec.InterestRate,
		&rec.TotalRepaymentAmount, &rec.DurationSeconds, &rec.CreatedAt, &rec.ExecuteAt, &rec.Terms,
		&rec.Status, &rec.RepaidAt, &rec.CancelledAt, &rec.TxHash, &rec.RepaymentTxHash,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
