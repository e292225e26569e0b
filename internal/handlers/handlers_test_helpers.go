package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payledger/internal/auth"
	"payledger/internal/config"
	"payledger/internal/middleware"
	"payledger/internal/services"
	"payledger/internal/store"
	"payledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubHealthDB struct {
	getFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubHealthDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, passwordHash string) error
	getByUsernameFn func(ctx context.Context, username string) (store.User, error)
	getByIDFn       func(ctx context.Context, userID string) (store.User, error)
	listAllFn       func(ctx context.Context) ([]store.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, passwordHash)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (store.User, error) {
	if s.getByUsernameFn == nil {
		return store.User{Username: username}, nil
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) ListAll(ctx context.Context) ([]store.User, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx)
}

type stubTransactionStore struct {
	listAllFn func(ctx context.Context, limit, offset int) ([]store.Transaction, error)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubService struct {
	balanceFn       func(ctx context.Context, userID string) (decimal.Decimal, error)
	historyFn       func(ctx context.Context, userID string, since time.Time, page, pageSize int) (services.HistoryPage, error)
	topUpFn         func(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error)
	withdrawFn      func(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error)
	transferFn      func(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal, description string) (services.Receipt, error)
	mintRequestFn   func(ctx context.Context, userID string, amount *decimal.Decimal, maxUses int, expire *time.Time) (store.QRIntent, error)
	mintSendFn      func(ctx context.Context, userID string, amount decimal.Decimal) (store.QRIntent, error)
	lookupFn        func(ctx context.Context, qrID string) (store.QRIntent, error)
	useCountFn      func(ctx context.Context, qrID string) (int, error)
	redeemRequestFn func(ctx context.Context, payerID, qrID string, amount *decimal.Decimal) (services.Receipt, error)
	redeemSendFn    func(ctx context.Context, redeemerID, qrID string) (services.Receipt, error)
}

func (s stubService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s.balanceFn == nil {
		return decimal.Zero, nil
	}
	return s.balanceFn(ctx, userID)
}

func (s stubService) History(ctx context.Context, userID string, since time.Time, page, pageSize int) (services.HistoryPage, error) {
	if s.historyFn == nil {
		return services.HistoryPage{}, nil
	}
	return s.historyFn(ctx, userID, since, page, pageSize)
}

func (s stubService) TopUp(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error) {
	if s.topUpFn == nil {
		return services.Receipt{}, nil
	}
	return s.topUpFn(ctx, userID, amount)
}

func (s stubService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (services.Receipt, error) {
	if s.withdrawFn == nil {
		return services.Receipt{}, nil
	}
	return s.withdrawFn(ctx, userID, amount)
}

func (s stubService) Transfer(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal, description string) (services.Receipt, error) {
	if s.transferFn == nil {
		return services.Receipt{}, nil
	}
	return s.transferFn(ctx, senderID, recipientUsername, amount, description)
}

func (s stubService) MintRequest(ctx context.Context, userID string, amount *decimal.Decimal, maxUses int, expire *time.Time) (store.QRIntent, error) {
	if s.mintRequestFn == nil {
		return store.QRIntent{}, nil
	}
	return s.mintRequestFn(ctx, userID, amount, maxUses, expire)
}

func (s stubService) MintSend(ctx context.Context, userID string, amount decimal.Decimal) (store.QRIntent, error) {
	if s.mintSendFn == nil {
		return store.QRIntent{}, nil
	}
	return s.mintSendFn(ctx, userID, amount)
}

func (s stubService) Lookup(ctx context.Context, qrID string) (store.QRIntent, error) {
	if s.lookupFn == nil {
		return store.QRIntent{QRID: qrID}, nil
	}
	return s.lookupFn(ctx, qrID)
}

func (s stubService) UseCount(ctx context.Context, qrID string) (int, error) {
	if s.useCountFn == nil {
		return 0, nil
	}
	return s.useCountFn(ctx, qrID)
}

func (s stubService) RedeemRequest(ctx context.Context, payerID, qrID string, amount *decimal.Decimal) (services.Receipt, error) {
	if s.redeemRequestFn == nil {
		return services.Receipt{}, nil
	}
	return s.redeemRequestFn(ctx, payerID, qrID, amount)
}

func (s stubService) RedeemSend(ctx context.Context, redeemerID, qrID string) (services.Receipt, error) {
	if s.redeemSendFn == nil {
		return services.Receipt{}, nil
	}
	return s.redeemSendFn(ctx, redeemerID, qrID)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		QRMaxLifetime:  24 * time.Hour,
		AdminEnabled:   true,
	}
}

func newTestHandler(users UserStore, transactions TransactionStore, audit AuditStore, service PaymentService) *Handler {
	return New(stubHealthDB{}, fakeTxRunner{}, testConfig(), users, transactions, audit, service, websocket.NewHub())
}

func authedRequest(t *testing.T, method, target string, body io.Reader, userID string) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serveAuthed(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}
