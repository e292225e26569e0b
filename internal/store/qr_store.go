package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	QRTypeRequestPayment = "request_payment"
	QRTypeSendPayment    = "send_payment"
)

type QRStore struct {
	db DB
}

type QRIntent struct {
	ID          string           `db:"id"`
	QRID        string           `db:"qr_id"`
	UserID      string           `db:"user_id"`
	QRType      string           `db:"qr_type"`
	MaxUseCount *int             `db:"max_use_count"`
	Amount      *decimal.Decimal `db:"amount"`
	CreatedAt   time.Time        `db:"created_at"`
	Expire      *time.Time       `db:"expire"`
	ConsumedAt  *time.Time       `db:"consumed_at"`
}

func (q QRIntent) IsExpired(now time.Time) bool {
	return q.Expire != nil && now.After(*q.Expire)
}

// CanBeUsed ignores use counts; those are enforced at redemption time.
func (q QRIntent) CanBeUsed(now time.Time) bool {
	return !q.IsExpired(now)
}

type QRIntentInput struct {
	ID          string
	QRID        string
	UserID      string
	QRType      string
	MaxUseCount *int
	Amount      *decimal.Decimal
	Expire      *time.Time
}

func NewQRStore(db DB) *QRStore {
	return &QRStore{db: db}
}

func (s *QRStore) Create(ctx context.Context, tx Execer, input QRIntentInput) error {
	query := `
		INSERT INTO qr_intents (id, qr_id, user_id, qr_type, max_use_count, amount, expire)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.QRID, input.UserID, input.QRType,
		input.MaxUseCount, input.Amount, input.Expire,
	)
	return err
}

func (s *QRStore) GetByQRID(ctx context.Context, qrID string) (QRIntent, error) {
	var row QRIntent
	err := s.db.GetContext(ctx, &row, `
		SELECT id, qr_id, user_id, qr_type, max_use_count, amount, created_at, expire, consumed_at
		FROM qr_intents
		WHERE qr_id = $1
	`, qrID)
	return row, err
}

// GetForUpdate locks the intent row so a use-count check and the redemption
// append commit as one unit.
func (s *QRStore) GetForUpdate(ctx context.Context, tx Getter, qrID string) (QRIntent, error) {
	var row QRIntent
	err := tx.GetContext(ctx, &row, `
		SELECT id, qr_id, user_id, qr_type, max_use_count, amount, created_at, expire, consumed_at
		FROM qr_intents
		WHERE qr_id = $1
		FOR UPDATE
	`, qrID)
	return row, err
}

// Consume claims a single-use send intent. The WHERE clause is the
// compare-and-commit: of any number of concurrent redeemers exactly one sees
// RowsAffected == 1.
func (s *QRStore) Consume(ctx context.Context, tx Execer, qrID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE qr_intents
		SET consumed_at = NOW()
		WHERE qr_id = $1
		  AND qr_type = $2
		  AND consumed_at IS NULL
		  AND (expire IS NULL OR expire > NOW())
	`, qrID, QRTypeSendPayment)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteUnusedSendByUser sweeps the creator's abandoned one-time codes:
// send intents that were never consumed and have no redemption rows.
func (s *QRStore) DeleteUnusedSendByUser(ctx context.Context, tx Execer, userID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM qr_intents
		WHERE user_id = $1
		  AND qr_type = $2
		  AND consumed_at IS NULL
		  AND qr_id NOT IN (SELECT qr_id FROM transactions WHERE qr_id IS NOT NULL)
	`, userID, QRTypeSendPayment)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
