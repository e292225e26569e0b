package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payledger/internal/db"
	"payledger/internal/money"
	"payledger/internal/store"
	"payledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserNotFound        = errors.New("user not found")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrInvalidPage         = errors.New("invalid page parameters")
	ErrInvalidUseCount     = errors.New("invalid use count")
	ErrQRNotFound          = errors.New("qr intent not found")
)

type PaymentService struct {
	txRunner      db.TxRunner
	users         UserStore
	transactions  TransactionStore
	qrs           QRStore
	audit         AuditStore
	hub           BalanceHub
	qrMaxLifetime time.Duration
}

type UserStore interface {
	GetByID(ctx context.Context, userID string) (store.User, error)
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.User, error)
}

type TransactionStore interface {
	Insert(ctx context.Context, tx store.Getter, input store.TransactionInput) (time.Time, error)
	SumByUser(ctx context.Context, tx store.Getter, userID string) (decimal.Decimal, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time, limit, offset int) ([]store.Transaction, error)
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountByQR(ctx context.Context, tx store.Getter, qrID string) (int, error)
	RedemptionCount(ctx context.Context, qrID string) (int, error)
}

type QRStore interface {
	Create(ctx context.Context, tx store.Execer, input store.QRIntentInput) error
	GetByQRID(ctx context.Context, qrID string) (store.QRIntent, error)
	GetForUpdate(ctx context.Context, tx store.Getter, qrID string) (store.QRIntent, error)
	Consume(ctx context.Context, tx store.Execer, qrID string) (int64, error)
	DeleteUnusedSendByUser(ctx context.Context, tx store.Execer, userID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

func NewPaymentService(txRunner db.TxRunner, users UserStore, transactions TransactionStore, qrs QRStore, audit AuditStore, hub BalanceHub, qrMaxLifetime time.Duration) *PaymentService {
	return &PaymentService{
		txRunner:      txRunner,
		users:         users,
		transactions:  transactions,
		qrs:           qrs,
		audit:         audit,
		hub:           hub,
		qrMaxLifetime: qrMaxLifetime,
	}
}

// Receipt reports a committed mutation and the balance it produced.
type Receipt struct {
	TransactionID string
	Amount        decimal.Decimal
	NewBalance    decimal.Decimal
	Timestamp     time.Time
}

func (s *PaymentService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.transactions.Balance(ctx, userID)
}

type HistoryPage struct {
	Items      []store.Transaction
	TotalCount int
}

func (s *PaymentService) History(ctx context.Context, userID string, since time.Time, page, pageSize int) (HistoryPage, error) {
	if page < 1 || pageSize < 1 || pageSize > 100 {
		return HistoryPage{}, ErrInvalidPage
	}
	offset := (page - 1) * pageSize
	items, err := s.transactions.ListByUserSince(ctx, userID, since, pageSize, offset)
	if err != nil {
		return HistoryPage{}, err
	}
	total, err := s.transactions.CountByUserSince(ctx, userID, since)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Items: items, TotalCount: total}, nil
}

func (s *PaymentService) TopUp(ctx context.Context, userID string, amount decimal.Decimal) (Receipt, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Receipt{}, ErrInvalidAmount
	}
	var receipt Receipt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		transactionID := uuid.NewString()
		committed, err := s.transactions.Insert(ctx, tx, store.TransactionInput{
			ID:          transactionID,
			UserID:      userID,
			Amount:      amount,
			Type:        store.TypeTopUp,
			Description: fmt.Sprintf("Top-up of $%s", money.Format(amount)),
		})
		if err != nil {
			return err
		}
		balance, err := s.transactions.SumByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		receipt = Receipt{TransactionID: transactionID, Amount: amount, NewBalance: balance, Timestamp: committed}
		return s.logAudit(ctx, tx, userID, "topup", transactionID, map[string]string{
			"amount": money.Format(amount),
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcastBalance(userID, receipt.NewBalance, receipt.Timestamp)
	return receipt, nil
}

func (s *PaymentService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (Receipt, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Receipt{}, ErrInvalidAmount
	}
	var receipt Receipt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		// The lock serializes the balance check against concurrent writers
		// on the same account; the sum is re-read under it.
		if _, err := s.users.GetForUpdate(ctx, tx, userID); err != nil {
			return mapUserErr(err)
		}
		balance, err := s.transactions.SumByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}
		transactionID := uuid.NewString()
		committed, err := s.transactions.Insert(ctx, tx, store.TransactionInput{
			ID:          transactionID,
			UserID:      userID,
			Amount:      amount.Neg(),
			Type:        store.TypeWithdrawal,
			Description: fmt.Sprintf("Withdrawal of $%s", money.Format(amount)),
		})
		if err != nil {
			return err
		}
		receipt = Receipt{TransactionID: transactionID, Amount: amount, NewBalance: balance.Sub(amount), Timestamp: committed}
		return s.logAudit(ctx, tx, userID, "withdraw", transactionID, map[string]string{
			"amount": money.Format(amount),
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcastBalance(userID, receipt.NewBalance, receipt.Timestamp)
	return receipt, nil
}

func (s *PaymentService) Transfer(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal, description string) (Receipt, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Receipt{}, ErrInvalidAmount
	}
	recipient, err := s.users.GetByUsername(ctx, recipientUsername)
	if err != nil {
		return Receipt{}, mapUserErr(err)
	}
	if recipient.ID == senderID {
		return Receipt{}, ErrSelfTransfer
	}
	var receipt Receipt
	var recipientBalance decimal.Decimal
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		sender, _, err := s.lockTwoUsers(ctx, tx, senderID, recipient.ID)
		if err != nil {
			return err
		}
		balance, err := s.transactions.SumByUser(ctx, tx, senderID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}
		sentDescription := description
		receivedDescription := description
		if description == "" {
			sentDescription = fmt.Sprintf("Transfer to %s", recipient.Username)
			receivedDescription = fmt.Sprintf("Transfer from %s", sender.Username)
		}
		transactionID := uuid.NewString()
		legs := []store.TransactionInput{
			{
				ID:              transactionID,
				UserID:          senderID,
				Amount:          amount.Neg(),
				Type:            store.TypeTransferSent,
				Description:     sentDescription,
				ReferenceUserID: &recipient.ID,
			},
			{
				ID:              uuid.NewString(),
				UserID:          recipient.ID,
				Amount:          amount,
				Type:            store.TypeTransferReceived,
				Description:     receivedDescription,
				ReferenceUserID: &sender.ID,
			},
		}
		committed, err := s.insertLegs(ctx, tx, legs)
		if err != nil {
			return err
		}
		receipt = Receipt{TransactionID: transactionID, Amount: amount, NewBalance: balance.Sub(amount), Timestamp: committed}
		recipientBalance, err = s.transactions.SumByUser(ctx, tx, recipient.ID)
		if err != nil {
			return err
		}
		return s.logAudit(ctx, tx, senderID, "transfer", transactionID, map[string]string{
			"amount":    money.Format(amount),
			"recipient": recipient.ID,
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	s.broadcastBalance(senderID, receipt.NewBalance, receipt.Timestamp)
	s.broadcastBalance(recipient.ID, recipientBalance, receipt.Timestamp)
	return receipt, nil
}

// insertLegs appends a balanced set of rows as one unit. A non-zero sum
// indicates a programming error and aborts the transaction.
func (s *PaymentService) insertLegs(ctx context.Context, tx *sqlx.Tx, legs []store.TransactionInput) (time.Time, error) {
	sum := decimal.Zero
	for _, leg := range legs {
		sum = sum.Add(leg.Amount)
	}
	if !sum.IsZero() {
		return time.Time{}, errors.New("transfer legs are not balanced")
	}
	var committed time.Time
	for i, leg := range legs {
		ts, err := s.transactions.Insert(ctx, tx, leg)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 {
			committed = ts
		}
	}
	return committed, nil
}

func (s *PaymentService) lockTwoUsers(ctx context.Context, tx *sqlx.Tx, firstID, secondID string) (store.User, store.User, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := s.users.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.User{}, store.User{}, mapUserErr(err)
	}
	right, err := s.users.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.User{}, store.User{}, mapUserErr(err)
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func (s *PaymentService) logAudit(ctx context.Context, tx *sqlx.Tx, actorID, action, entityID string, data map[string]string) error {
	return s.logAuditEntity(ctx, tx, actorID, action, "transaction", entityID, data)
}

func (s *PaymentService) logAuditEntity(ctx context.Context, tx *sqlx.Tx, actorID, action, entityType, entityID string, data map[string]string) error {
	payload, _ := json.Marshal(data)
	return s.audit.Log(ctx, tx, actorID, action, entityType, entityID, string(payload))
}

func (s *PaymentService) broadcastBalance(userID string, balance decimal.Decimal, at time.Time) {
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Balance:   money.Format(balance),
		Timestamp: at.UTC().Format(time.RFC3339),
	})
}

func mapUserErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}
