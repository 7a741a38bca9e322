package storage

import (
	"context"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/shopspring/decimal"
)

// Tx is one atomic unit of work. Everything written through a Tx becomes
// visible together on commit or not at all.
type Tx interface {
	// GetAccountForUpdate reads the account and holds it until the unit ends.
	GetAccountForUpdate(ctx context.Context, id int64) (model.Account, error)
	// UpdateBalance writes the balance if the stored version still equals
	// version, otherwise it fails with errs.ErrWriteConflict.
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error
	InsertEntry(ctx context.Context, entry model.LedgerEntry) error

	// InsertOrder assigns order.ID.
	InsertOrder(ctx context.Context, order *model.Order) error
	GetOrderForUpdate(ctx context.Context, id int64) (model.Order, error)
	// UpdateOrder stores status and progress fields if the stored status is
	// still from, otherwise it fails with errs.ErrWriteConflict.
	UpdateOrder(ctx context.Context, order model.Order, from model.OrderStatus) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateAccount(ctx context.Context, acc model.NewAccount, passwordHash string) (model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, string, error)
	UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (model.Account, error)

	ListEntries(ctx context.Context, accountID int64, filter model.EntryFilter) ([]model.LedgerEntry, error)

	GetOrder(ctx context.Context, id int64) (model.Order, error)
	ListOrders(ctx context.Context, accountID int64, page model.Page) ([]model.Order, error)
	// ListSyncableOrders returns Pending and Processing orders with id > afterID
	// whose service is backed by an active provider, ascending by id.
	ListSyncableOrders(ctx context.Context, afterID int64, limit int) ([]model.Order, error)

	GetService(ctx context.Context, id int64) (model.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)
	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	UpdateService(ctx context.Context, svc model.Service) (model.Service, error)

	GetProvider(ctx context.Context, id int64) (model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error)

	Ping(ctx context.Context) error
	Close()
}
