package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/shopspring/decimal"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, databaseURI string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, err
	}

	storage := &PostgresStorage{db: db}

	if err := storage.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

func (store *PostgresStorage) Close() {
	store.db.Close()
}

// classify maps driver errors onto the errs taxonomy so the balance guard can
// decide what to retry.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", errs.ErrWriteConflict, pgErr.Message)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}

	return err
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (store *PostgresStorage) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := store.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", errors.Join(errs.ErrStorageUnavailable, errs.ErrCommitIndeterminate, err))
	}

	return nil
}

type pgTx struct {
	tx pgx.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, name, email, role, status, balance, version, created_at`

func scanAccount(row scanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Status, &a.Balance, &a.Version, &a.CreatedAt)
	return a, err
}

const orderColumns = `id, account_id, service_id, link, quantity, charge, status,
	provider_order_id, start_count, remains, created_at, updated_at`

func scanOrder(row scanner) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.AccountID, &o.ServiceID, &o.Link, &o.Quantity, &o.Charge, &o.Status,
		&o.ProviderOrderID, &o.StartCount, &o.Remains, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const entryColumns = `id, account_id, kind, amount, balance_before, balance_after,
	description, related_order_id, created_at`

func scanEntry(row scanner) (model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&e.Description, &e.RelatedOrderID, &e.CreatedAt)
	return e, err
}

const serviceColumns = `id, name, rate, min_order, max_order, status, provider_id, provider_service_id`

func scanService(row scanner) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.Name, &s.Rate, &s.MinOrder, &s.MaxOrder, &s.Status, &s.ProviderID, &s.ProviderServiceID)
	return s, err
}

const providerColumns = `id, name, api_url, api_key, status`

func scanProvider(row scanner) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.Name, &p.APIURL, &p.APIKey, &p.Status)
	return p, err
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, id int64) (model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	acc, err := scanAccount(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, errs.ErrAccountNotFound
		}
		return model.Account{}, fmt.Errorf("lock account: %w", classify(err))
	}

	return acc, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error {
	const query = `
		UPDATE accounts
		SET balance = $2, version = version + 1
		WHERE id = $1 AND version = $3`

	cmdTag, err := t.tx.Exec(ctx, query, id, balance, version)
	if err != nil {
		return fmt.Errorf("update balance: %w", classify(err))
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("update balance of account %d: %w", id, errs.ErrWriteConflict)
	}

	return nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e model.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_entries (id, account_id, kind, amount, balance_before, balance_after,
			description, related_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := t.tx.Exec(ctx, query, e.ID, e.AccountID, e.Kind, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Description, e.RelatedOrderID, e.CreatedAt)
	if err != nil {
		if isCode(err, codeUniqueViolation) && e.Kind == model.Refund {
			return errs.ErrAlreadyRefunded
		}
		return fmt.Errorf("insert entry: %w", classify(err))
	}

	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	const query = `
		INSERT INTO orders (account_id, service_id, link, quantity, charge, status,
			provider_order_id, start_count, remains, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query, o.AccountID, o.ServiceID, o.Link, o.Quantity, o.Charge, o.Status,
		o.ProviderOrderID, o.StartCount, o.Remains, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		if isCode(err, codeForeignKeyViolation) {
			return errs.ErrAccountNotFound
		}
		return fmt.Errorf("insert order: %w", classify(err))
	}

	return nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("lock order: %w", classify(err))
	}

	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o model.Order, from model.OrderStatus) error {
	const query = `
		UPDATE orders
		SET status = $2, provider_order_id = $3, start_count = $4, remains = $5, updated_at = $6
		WHERE id = $1 AND status = $7`

	cmdTag, err := t.tx.Exec(ctx, query, o.ID, o.Status, o.ProviderOrderID, o.StartCount, o.Remains, o.UpdatedAt, from)
	if err != nil {
		return fmt.Errorf("update order: %w", classify(err))
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("update order %d: %w", o.ID, errs.ErrWriteConflict)
	}

	return nil
}

func (store *PostgresStorage) CreateAccount(ctx context.Context, acc model.NewAccount, passwordHash string) (model.Account, error) {
	const query = `
		INSERT INTO accounts (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + accountColumns

	role := acc.Role
	if role == "" {
		role = model.RoleUser
	}

	created, err := scanAccount(store.db.QueryRow(ctx, query, acc.Name, model.NormalizeEmail(acc.Email), passwordHash, role))
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return model.Account{}, errs.ErrEmailTaken
		}
		return model.Account{}, fmt.Errorf("create account: %w", classify(err))
	}

	return created, nil
}

func (store *PostgresStorage) GetAccountByID(ctx context.Context, id int64) (model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(store.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, errs.ErrAccountNotFound
		}
		return model.Account{}, fmt.Errorf("get account by id: %w", classify(err))
	}

	return acc, nil
}

func (store *PostgresStorage) GetAccountByEmail(ctx context.Context, email string) (model.Account, string, error) {
	const query = `SELECT ` + accountColumns + `, password_hash FROM accounts WHERE email = $1`

	var a model.Account
	var hash string

	err := store.db.QueryRow(ctx, query, model.NormalizeEmail(email)).Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Status,
		&a.Balance, &a.Version, &a.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, "", errs.ErrAccountNotFound
		}
		return model.Account{}, "", fmt.Errorf("get account by email: %w", classify(err))
	}

	return a, hash, nil
}

func (store *PostgresStorage) UpdateProfile(ctx context.Context, id int64, u model.ProfileUpdate) (model.Account, error) {
	const query = `
		UPDATE accounts
		SET name = $2,
			email = $3,
			role = COALESCE(NULLIF($4, ''), role),
			status = COALESCE(NULLIF($5, ''), status)
		WHERE id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(store.db.QueryRow(ctx, query, id, u.Name, model.NormalizeEmail(u.Email), string(u.Role), string(u.Status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, errs.ErrAccountNotFound
		}
		if isCode(err, codeUniqueViolation) {
			return model.Account{}, errs.ErrEmailTaken
		}
		return model.Account{}, fmt.Errorf("update profile: %w", classify(err))
	}

	return acc, nil
}

func (store *PostgresStorage) ListEntries(ctx context.Context, accountID int64, f model.EntryFilter) ([]model.LedgerEntry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
			AND ($2::text IS NULL OR kind = $2)
			AND ($3::bigint IS NULL OR related_order_id = $3)
		ORDER BY created_at DESC, seq DESC
		LIMIT $4 OFFSET $5`

	var kind *string
	if f.Kind != nil {
		k := string(*f.Kind)
		kind = &k
	}
	page := f.Page.Normalize()

	rows, err := store.db.Query(ctx, query, accountID, kind, f.RelatedOrderID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", classify(err))
	}
	defer rows.Close()

	var list []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}

	return list, nil
}

func (store *PostgresStorage) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(store.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", classify(err))
	}

	return o, nil
}

func (store *PostgresStorage) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := store.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", classify(err))
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", classify(err))
	}

	return orders, nil
}

func (store *PostgresStorage) ListOrders(ctx context.Context, accountID int64, page model.Page) ([]model.Order, error) {
	const query = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	page = page.Normalize()
	return store.queryOrders(ctx, query, accountID, page.Limit, page.Offset)
}

func (store *PostgresStorage) ListSyncableOrders(ctx context.Context, afterID int64, limit int) ([]model.Order, error) {
	const query = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN ('PENDING', 'PROCESSING')
			AND id > $1
			AND service_id IN (
				SELECT s.id
				FROM services s
				JOIN providers p ON p.id = s.provider_id
				WHERE p.status = 'active'
			)
		ORDER BY id ASC
		LIMIT $2`

	return store.queryOrders(ctx, query, afterID, limit)
}

func (store *PostgresStorage) GetService(ctx context.Context, id int64) (model.Service, error) {
	const query = `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`

	svc, err := scanService(store.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, errs.ErrServiceNotFound
		}
		return model.Service{}, fmt.Errorf("get service: %w", classify(err))
	}

	return svc, nil
}

func (store *PostgresStorage) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	const query = `
		SELECT ` + serviceColumns + `
		FROM services
		WHERE NOT $1::boolean OR status = 'active'
		ORDER BY id`

	rows, err := store.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", classify(err))
	}
	defer rows.Close()

	var list []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		list = append(list, svc)
	}

	return list, classify(rows.Err())
}

func (store *PostgresStorage) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	const query = `
		INSERT INTO services (name, rate, min_order, max_order, status, provider_id, provider_service_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + serviceColumns

	created, err := scanService(store.db.QueryRow(ctx, query, s.Name, s.Rate, s.MinOrder, s.MaxOrder,
		s.Status, s.ProviderID, s.ProviderServiceID))
	if err != nil {
		if isCode(err, codeForeignKeyViolation) {
			return model.Service{}, errs.ErrProviderNotFound
		}
		return model.Service{}, fmt.Errorf("create service: %w", classify(err))
	}

	return created, nil
}

func (store *PostgresStorage) UpdateService(ctx context.Context, s model.Service) (model.Service, error) {
	const query = `
		UPDATE services
		SET name = $2, rate = $3, min_order = $4, max_order = $5, status = $6,
			provider_id = $7, provider_service_id = $8
		WHERE id = $1
		RETURNING ` + serviceColumns

	updated, err := scanService(store.db.QueryRow(ctx, query, s.ID, s.Name, s.Rate, s.MinOrder, s.MaxOrder,
		s.Status, s.ProviderID, s.ProviderServiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, errs.ErrServiceNotFound
		}
		if isCode(err, codeForeignKeyViolation) {
			return model.Service{}, errs.ErrProviderNotFound
		}
		return model.Service{}, fmt.Errorf("update service: %w", classify(err))
	}

	return updated, nil
}

func (store *PostgresStorage) GetProvider(ctx context.Context, id int64) (model.Provider, error) {
	const query = `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	p, err := scanProvider(store.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Provider{}, errs.ErrProviderNotFound
		}
		return model.Provider{}, fmt.Errorf("get provider: %w", classify(err))
	}

	return p, nil
}

func (store *PostgresStorage) ListProviders(ctx context.Context) ([]model.Provider, error) {
	const query = `SELECT ` + providerColumns + ` FROM providers ORDER BY id`

	rows, err := store.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", classify(err))
	}
	defer rows.Close()

	var list []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		list = append(list, p)
	}

	return list, classify(rows.Err())
}

func (store *PostgresStorage) CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	const query = `
		INSERT INTO providers (name, api_url, api_key, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + providerColumns

	created, err := scanProvider(store.db.QueryRow(ctx, query, p.Name, p.APIURL, p.APIKey, p.Status))
	if err != nil {
		return model.Provider{}, fmt.Errorf("create provider: %w", classify(err))
	}

	return created, nil
}
