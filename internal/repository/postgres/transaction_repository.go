package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"secureapi/internal/domain"
)

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	amount DOUBLE PRECISION NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`

// TransactionRepository implements repository.TransactionRepository using PostgreSQL.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Init(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createTransactionsTable); err != nil {
		return oops.Code("TRANSACTIONS_INIT_FAILED").With("operation", "create transactions table").Wrap(err)
	}
	return nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) (int64, error) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO transactions (user_id, amount, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id
	`, tx.UserID, tx.Amount, tx.Timestamp).Scan(&tx.ID)
	if err != nil {
		return 0, oops.Code("TRANSACTION_CREATE_FAILED").
			With("operation", "insert transaction").
			With("user_id", tx.UserID).
			Wrap(err)
	}
	return tx.ID, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, timestamp
		FROM transactions
		WHERE user_id = $1
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, oops.With("operation", "list transactions").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Timestamp); err != nil {
			return nil, oops.With("operation", "scan transaction row").Wrap(err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate transactions").Wrap(err)
	}
	return txs, nil
}
