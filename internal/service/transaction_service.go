package service

import (
	"context"
	"math"
	"time"

	"secureapi/internal/domain"
	"secureapi/internal/repository"
)

// TransactionService records and lists transactions of authenticated users.
type TransactionService interface {
	CreateTransaction(ctx context.Context, owner *domain.User, amount float64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, owner *domain.User) ([]domain.Transaction, error)
}

type transactionService struct {
	txs          repository.TransactionRepository
	storeTimeout time.Duration
}

func NewTransactionService(txs repository.TransactionRepository, storeTimeout time.Duration) TransactionService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &transactionService{
		txs:          txs,
		storeTimeout: storeTimeout,
	}
}

func (s *transactionService) CreateTransaction(ctx context.Context, owner *domain.User, amount float64) (*domain.Transaction, error) {
	if owner == nil {
		return nil, ErrForbidden
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}

	tx := &domain.Transaction{
		UserID:    owner.Username,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if _, err := s.txs.Create(ctx, tx); err != nil {
		return nil, storeUnavailable("create transaction", err)
	}
	return tx, nil
}

func (s *transactionService) ListTransactions(ctx context.Context, owner *domain.User) ([]domain.Transaction, error) {
	if owner == nil {
		return nil, ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	txs, err := s.txs.ListByUser(ctx, owner.Username)
	if err != nil {
		return nil, storeUnavailable("list transactions", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}
