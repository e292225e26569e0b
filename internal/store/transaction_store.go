package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeTopUp            = "topup"
	TypeWithdrawal       = "withdrawal"
	TypeTransferSent     = "transfer_sent"
	TypeTransferReceived = "transfer_received"
)

type TransactionStore struct {
	db DB
}

type Transaction struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Amount          decimal.Decimal `db:"amount"`
	Type            string          `db:"type"`
	Description     string          `db:"description"`
	ReferenceUserID *string         `db:"reference_user_id"`
	QRID            *string         `db:"qr_id"`
	Timestamp       time.Time       `db:"timestamp"`
}

type TransactionInput struct {
	ID              string
	UserID          string
	Amount          decimal.Decimal
	Type            string
	Description     string
	ReferenceUserID *string
	QRID            *string
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Insert appends one row to the log. The log is never updated or deleted.
func (s *TransactionStore) Insert(ctx context.Context, tx Getter, input TransactionInput) (time.Time, error) {
	var committed time.Time
	query := `
		INSERT INTO transactions (id, user_id, amount, type, description, reference_user_id, qr_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING timestamp
	`
	err := tx.GetContext(ctx, &committed, query,
		input.ID, input.UserID, input.Amount, input.Type, input.Description,
		input.ReferenceUserID, input.QRID,
	)
	return committed, err
}

// SumByUser derives the balance from the log. Run it on the same tx as any
// write it guards so the check and the append are one atomic unit.
func (s *TransactionStore) SumByUser(ctx context.Context, tx Getter, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0.00)
		FROM transactions
		WHERE user_id = $1
	`, userID)
	return sum, err
}

// Balance is SumByUser outside any transaction, for plain reads.
func (s *TransactionStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.SumByUser(ctx, s.db, userID)
}

func (s *TransactionStore) ListByUserSince(ctx context.Context, userID string, since time.Time, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, type, description, reference_user_id, qr_id, timestamp
		FROM transactions
		WHERE user_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4
	`, userID, since, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND timestamp >= $2
	`, userID, since)
	return count, err
}

// CountByQR reports how many times an intent has been redeemed. Redemptions
// write two rows per event, so only the payer leg is counted.
func (s *TransactionStore) CountByQR(ctx context.Context, tx Getter, qrID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM transactions
		WHERE qr_id = $1 AND type = $2
	`, qrID, TypeTransferSent)
	return count, err
}

// RedemptionCount is CountByQR outside any transaction.
func (s *TransactionStore) RedemptionCount(ctx context.Context, qrID string) (int, error) {
	return s.CountByQR(ctx, s.db, qrID)
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, type, description, reference_user_id, qr_id, timestamp
		FROM transactions
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
