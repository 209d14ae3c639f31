package repository

import (
	"context"

	"secureapi/internal/domain"
)

// TransactionRepository persists transactions owned by users.
type TransactionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, tx *domain.Transaction) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error)
}
