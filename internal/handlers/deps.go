package handlers

import (
	"context"
	"time"

	"payledger/internal/services"
	"payledger/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, passwordHash string) error
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
	ListAll(ctx context.Context) ([]store.User, error)
}

type TransactionStore interface {
	ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

type PaymentService interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, userID string, since time.Time, page, pageSize int) (services.HistoryPage, error)
	TopUp(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error)
	Transfer(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal, description string) (services.Receipt, error)
	MintRequest(ctx context.Context, userID string, amount *decimal.Decimal, maxUses int, expire *time.Time) (store.QRIntent, error)
	MintSend(ctx context.Context, userID string, amount decimal.Decimal) (store.QRIntent, error)
	Lookup(ctx context.Context, qrID string) (store.QRIntent, error)
	UseCount(ctx context.Context, qrID string) (int, error)
	RedeemRequest(ctx context.Context, payerID, qrID string, amount *decimal.Decimal) (services.Receipt, error)
	RedeemSend(ctx context.Context, redeemerID, qrID string) (services.Receipt, error)
}
