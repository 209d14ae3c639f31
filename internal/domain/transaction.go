package domain

import "time"

// Transaction is a monetary entry owned by a user. Transactions are removed
// together with their owner.
type Transaction struct {
	ID        int64
	UserID    string
	Amount    float64
	Timestamp time.Time
}
