package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"payledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SendQRLifetime is the fixed lifetime of a one-time send intent.
const SendQRLifetime = time.Minute

const DefaultRequestMaxUses = 5

// MintRequest creates a request-payment intent. The requested expiry is
// clamped to the configured ceiling and defaults to it.
func (s *PaymentService) MintRequest(ctx context.Context, userID string, amount *decimal.Decimal, maxUses int, expire *time.Time) (store.QRIntent, error) {
	if maxUses < 1 {
		return store.QRIntent{}, ErrInvalidUseCount
	}
	if amount != nil && amount.LessThanOrEqual(decimal.Zero) {
		return store.QRIntent{}, ErrInvalidAmount
	}
	ceiling := time.Now().Add(s.qrMaxLifetime)
	expireAt := ceiling
	if expire != nil && expire.Before(ceiling) {
		expireAt = *expire
	}
	input := store.QRIntentInput{
		ID:          uuid.NewString(),
		QRID:        uuid.NewString(),
		UserID:      userID,
		QRType:      store.QRTypeRequestPayment,
		MaxUseCount: &maxUses,
		Amount:      amount,
		Expire:      &expireAt,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.qrs.Create(ctx, tx, input); err != nil {
			return err
		}
		return s.logQRAudit(ctx, tx, userID, "qr_mint_request", input.QRID)
	})
	if err != nil {
		return store.QRIntent{}, err
	}
	return s.qrs.GetByQRID(ctx, input.QRID)
}

// MintSend creates a single-use send-payment intent. The creator's earlier
// never-redeemed send intents are swept in the same transaction, so the
// sweep can never race a redemption that already holds the intent row.
func (s *PaymentService) MintSend(ctx context.Context, userID string, amount decimal.Decimal) (store.QRIntent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return store.QRIntent{}, ErrInvalidAmount
	}
	one := 1
	expireAt := time.Now().Add(SendQRLifetime)
	input := store.QRIntentInput{
		ID:          uuid.NewString(),
		QRID:        uuid.NewString(),
		UserID:      userID,
		QRType:      store.QRTypeSendPayment,
		MaxUseCount: &one,
		Amount:      &amount,
		Expire:      &expireAt,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.qrs.DeleteUnusedSendByUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.qrs.Create(ctx, tx, input); err != nil {
			return err
		}
		return s.logQRAudit(ctx, tx, userID, "qr_mint_send", input.QRID)
	})
	if err != nil {
		return store.QRIntent{}, err
	}
	return s.qrs.GetByQRID(ctx, input.QRID)
}

// Lookup resolves an intent by its external token. A send intent that is
// expired or already consumed reads the same as an absent one.
func (s *PaymentService) Lookup(ctx context.Context, qrID string) (store.QRIntent, error) {
	intent, err := s.qrs.GetByQRID(ctx, qrID)
	if err != nil {
		return store.QRIntent{}, mapQRErr(err)
	}
	if intent.QRType == store.QRTypeSendPayment {
		if intent.ConsumedAt != nil || !intent.CanBeUsed(time.Now()) {
			return store.QRIntent{}, ErrQRNotFound
		}
	}
	return intent, nil
}

// UseCount reports how many times an intent has been redeemed.
func (s *PaymentService) UseCount(ctx context.Context, qrID string) (int, error) {
	if _, err := s.qrs.GetByQRID(ctx, qrID); err != nil {
		return 0, mapQRErr(err)
	}
	return s.transactions.RedemptionCount(ctx, qrID)
}

// RedeemRequest pays the intent's creator from the redeemer's account. The
// use-count check runs against the locked intent row so the cap holds under
// concurrent redeemers.
func (s *PaymentService) RedeemRequest(ctx context.Context, payerID, qrID string, amount *decimal.Decimal) (Receipt, error) {
	var receipt Receipt
	var creatorID string
	var creatorBalance decimal.Decimal
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		intent, err := s.qrs.GetForUpdate(ctx, tx, qrID)
		if err != nil {
			return mapQRErr(err)
		}
		if intent.QRType != store.QRTypeRequestPayment || !intent.CanBeUsed(time.Now()) {
			return ErrQRNotFound
		}
		if intent.MaxUseCount != nil {
			used, err := s.transactions.CountByQR(ctx, tx, qrID)
			if err != nil {
				return err
			}
			if used >= *intent.MaxUseCount {
				return ErrQRNotFound
			}
		}
		pay := intent.Amount
		if pay == nil {
			pay = amount
		}
		if pay == nil || pay.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidAmount
		}
		creatorID = intent.UserID
		if creatorID == payerID {
			return ErrSelfTransfer
		}
		receipt, creatorBalance, err = s.redeemTransfer(ctx, tx, payerID, creatorID, *pay, qrID)
		if err != nil {
			return err
		}
		return s.logQRAudit(ctx, tx, payerID, "qr_redeem_request", qrID)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcastBalance(payerID, receipt.NewBalance, receipt.Timestamp)
	s.broadcastBalance(creatorID, creatorBalance, receipt.Timestamp)
	return receipt, nil
}

// RedeemSend moves the offered amount from the intent's creator to the
// redeemer. Consume is the compare-and-commit step: of concurrent scans
// exactly one claims the row, the rest read as not found.
func (s *PaymentService) RedeemSend(ctx context.Context, redeemerID, qrID string) (Receipt, error) {
	var receipt Receipt
	var creatorID string
	var payerReceipt Receipt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		intent, err := s.qrs.GetForUpdate(ctx, tx, qrID)
		if err != nil {
			return mapQRErr(err)
		}
		if intent.QRType != store.QRTypeSendPayment {
			return ErrQRNotFound
		}
		creatorID = intent.UserID
		if creatorID == redeemerID {
			return ErrSelfTransfer
		}
		claimed, err := s.qrs.Consume(ctx, tx, qrID)
		if err != nil {
			return err
		}
		if claimed == 0 {
			return ErrQRNotFound
		}
		if intent.Amount == nil {
			return ErrInvalidAmount
		}
		payerReceipt, receipt, err = s.redeemSendLegs(ctx, tx, creatorID, redeemerID, *intent.Amount, qrID)
		if err != nil {
			return err
		}
		return s.logQRAudit(ctx, tx, redeemerID, "qr_redeem_send", qrID)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcastBalance(creatorID, payerReceipt.NewBalance, payerReceipt.Timestamp)
	s.broadcastBalance(redeemerID, receipt.NewBalance, receipt.Timestamp)
	return receipt, nil
}

// redeemTransfer debits payerID and credits payeeID, both rows tagged with
// the intent. Returns the payer receipt and the payee's new balance.
func (s *PaymentService) redeemTransfer(ctx context.Context, tx *sqlx.Tx, payerID, payeeID string, amount decimal.Decimal, qrID string) (Receipt, decimal.Decimal, error) {
	payer, payee, err := s.lockTwoUsers(ctx, tx, payerID, payeeID)
	if err != nil {
		return Receipt{}, decimal.Zero, err
	}
	balance, err := s.transactions.SumByUser(ctx, tx, payerID)
	if err != nil {
		return Receipt{}, decimal.Zero, err
	}
	if amount.GreaterThan(balance) {
		return Receipt{}, decimal.Zero, ErrInsufficientBalance
	}
	transactionID := uuid.NewString()
	legs := []store.TransactionInput{
		{
			ID:              transactionID,
			UserID:          payerID,
			Amount:          amount.Neg(),
			Type:            store.TypeTransferSent,
			Description:     fmt.Sprintf("Transfer to %s", payee.Username),
			ReferenceUserID: &payee.ID,
			QRID:            &qrID,
		},
		{
			ID:              uuid.NewString(),
			UserID:          payeeID,
			Amount:          amount,
			Type:            store.TypeTransferReceived,
			Description:     fmt.Sprintf("Transfer from %s", payer.Username),
			ReferenceUserID: &payer.ID,
			QRID:            &qrID,
		},
	}
	committed, err := s.insertLegs(ctx, tx, legs)
	if err != nil {
		return Receipt{}, decimal.Zero, err
	}
	payeeBalance, err := s.transactions.SumByUser(ctx, tx, payeeID)
	if err != nil {
		return Receipt{}, decimal.Zero, err
	}
	receipt := Receipt{TransactionID: transactionID, Amount: amount, NewBalance: balance.Sub(amount), Timestamp: committed}
	return receipt, payeeBalance, nil
}

func (s *PaymentService) redeemSendLegs(ctx context.Context, tx *sqlx.Tx, creatorID, redeemerID string, amount decimal.Decimal, qrID string) (Receipt, Receipt, error) {
	creatorReceipt, redeemerBalance, err := s.redeemTransfer(ctx, tx, creatorID, redeemerID, amount, qrID)
	if err != nil {
		return Receipt{}, Receipt{}, err
	}
	redeemerReceipt := Receipt{
		TransactionID: creatorReceipt.TransactionID,
		Amount:        amount,
		NewBalance:    redeemerBalance,
		Timestamp:     creatorReceipt.Timestamp,
	}
	return creatorReceipt, redeemerReceipt, nil
}

func (s *PaymentService) logQRAudit(ctx context.Context, tx *sqlx.Tx, actorID, action, qrID string) error {
	return s.logAuditEntity(ctx, tx, actorID, action, "qr_intent", qrID, map[string]string{"qr_id": qrID})
}

func mapQRErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQRNotFound
	}
	return err
}
