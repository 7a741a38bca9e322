// Package memory keeps the whole panel state in process. Units of work run
// one at a time under a single mutex, which is fine for development and
// tests but does not scale across processes.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"github.com/shopspring/decimal"
)

type accountRecord struct {
	account model.Account
	hash    string
}

type Storage struct {
	mu sync.Mutex

	accounts  map[int64]accountRecord
	entries   []model.LedgerEntry
	orders    map[int64]model.Order
	services  map[int64]model.Service
	providers map[int64]model.Provider

	lastAccountID  int64
	lastOrderID    int64
	lastServiceID  int64
	lastProviderID int64
}

var _ storage.Store = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		accounts:  make(map[int64]accountRecord),
		orders:    make(map[int64]model.Order),
		services:  make(map[int64]model.Service),
		providers: make(map[int64]model.Provider),
	}
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() {}

func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:           s,
		accounts:    make(map[int64]model.Account),
		orders:      make(map[int64]model.Order),
		lastOrderID: s.lastOrderID,
	}
	if err := fn(tx); err != nil {
		return err
	}

	// commit
	for id, acc := range tx.accounts {
		rec := s.accounts[id]
		rec.account = acc
		s.accounts[id] = rec
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	s.entries = append(s.entries, tx.entries...)
	s.lastOrderID = tx.lastOrderID

	return nil
}

// memTx stages writes and only touches Storage on commit.
type memTx struct {
	s *Storage

	accounts    map[int64]model.Account
	orders      map[int64]model.Order
	entries     []model.LedgerEntry
	lastOrderID int64
}

func (t *memTx) GetAccountForUpdate(_ context.Context, id int64) (model.Account, error) {
	if acc, ok := t.accounts[id]; ok {
		return acc, nil
	}
	rec, ok := t.s.accounts[id]
	if !ok {
		return model.Account{}, errs.ErrAccountNotFound
	}
	return rec.account, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error {
	acc, err := t.GetAccountForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if acc.Version != version {
		return fmt.Errorf("update balance of account %d: %w", id, errs.ErrWriteConflict)
	}
	if balance.IsNegative() {
		return fmt.Errorf("update balance of account %d: negative balance %s", id, balance)
	}

	acc.Balance = balance
	acc.Version++
	t.accounts[id] = acc
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, e model.LedgerEntry) error {
	if e.RelatedOrderID != nil && (e.Kind == model.Refund || e.Kind == model.OrderCharge) {
		check := func(existing model.LedgerEntry) bool {
			return existing.Kind == e.Kind && existing.RelatedOrderID != nil && *existing.RelatedOrderID == *e.RelatedOrderID
		}
		if slices.ContainsFunc(t.s.entries, check) || slices.ContainsFunc(t.entries, check) {
			if e.Kind == model.Refund {
				return errs.ErrAlreadyRefunded
			}
			return fmt.Errorf("order %d already charged", *e.RelatedOrderID)
		}
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *model.Order) error {
	if _, ok := t.s.accounts[o.AccountID]; !ok {
		return errs.ErrAccountNotFound
	}
	t.lastOrderID++
	o.ID = t.lastOrderID
	t.orders[o.ID] = *o
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id int64) (model.Order, error) {
	if o, ok := t.orders[id]; ok {
		return o, nil
	}
	o, ok := t.s.orders[id]
	if !ok {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o model.Order, from model.OrderStatus) error {
	current, err := t.GetOrderForUpdate(ctx, o.ID)
	if err != nil {
		return err
	}
	if current.Status != from {
		return fmt.Errorf("update order %d: %w", o.ID, errs.ErrWriteConflict)
	}

	current.Status = o.Status
	current.ProviderOrderID = o.ProviderOrderID
	current.StartCount = o.StartCount
	current.Remains = o.Remains
	current.UpdatedAt = o.UpdatedAt
	t.orders[o.ID] = current
	return nil
}

func (s *Storage) CreateAccount(_ context.Context, acc model.NewAccount, passwordHash string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := model.NormalizeEmail(acc.Email)
	if s.emailInUse(email, 0) {
		return model.Account{}, errs.ErrEmailTaken
	}

	role := acc.Role
	if role == "" {
		role = model.RoleUser
	}

	s.lastAccountID++
	created := model.Account{
		ID:        s.lastAccountID,
		Name:      acc.Name,
		Email:     email,
		Role:      role,
		Status:    model.AccountActive,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[created.ID] = accountRecord{account: created, hash: passwordHash}

	return created, nil
}

func (s *Storage) emailInUse(email string, exceptID int64) bool {
	for id, rec := range s.accounts {
		if id != exceptID && rec.account.Email == email {
			return true
		}
	}
	return false
}

func (s *Storage) GetAccountByID(_ context.Context, id int64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return model.Account{}, errs.ErrAccountNotFound
	}
	return rec.account, nil
}

func (s *Storage) GetAccountByEmail(_ context.Context, email string) (model.Account, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = model.NormalizeEmail(email)
	for _, rec := range s.accounts {
		if rec.account.Email == email {
			return rec.account, rec.hash, nil
		}
	}
	return model.Account{}, "", errs.ErrAccountNotFound
}

func (s *Storage) UpdateProfile(_ context.Context, id int64, u model.ProfileUpdate) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return model.Account{}, errs.ErrAccountNotFound
	}
	email := model.NormalizeEmail(u.Email)
	if s.emailInUse(email, id) {
		return model.Account{}, errs.ErrEmailTaken
	}

	rec.account.Name = u.Name
	rec.account.Email = email
	if u.Role != "" {
		rec.account.Role = u.Role
	}
	if u.Status != "" {
		rec.account.Status = u.Status
	}
	s.accounts[id] = rec

	return rec.account, nil
}

func (s *Storage) ListEntries(_ context.Context, accountID int64, f model.EntryFilter) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.LedgerEntry
	// walk backwards so equal timestamps keep newest-first insertion order
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if f.Kind != nil && e.Kind != *f.Kind {
			continue
		}
		if f.RelatedOrderID != nil && (e.RelatedOrderID == nil || *e.RelatedOrderID != *f.RelatedOrderID) {
			continue
		}
		matched = append(matched, e)
	}
	slices.SortStableFunc(matched, func(a, b model.LedgerEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return paginate(matched, f.Page), nil
}

func paginate[T any](items []T, page model.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return nil
	}
	end := min(page.Offset+page.Limit, len(items))
	return slices.Clone(items[page.Offset:end])
}

func (s *Storage) GetOrder(_ context.Context, id int64) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return o, nil
}

func (s *Storage) sortedOrders(keep func(model.Order) bool) []model.Order {
	var list []model.Order
	for _, o := range s.orders {
		if keep(o) {
			list = append(list, o)
		}
	}
	slices.SortFunc(list, func(a, b model.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return list
}

func (s *Storage) ListOrders(_ context.Context, accountID int64, page model.Page) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.sortedOrders(func(o model.Order) bool { return o.AccountID == accountID })
	slices.Reverse(list)
	return paginate(list, page), nil
}

func (s *Storage) ListSyncableOrders(_ context.Context, afterID int64, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []model.Order
	for _, o := range s.orders {
		if o.ID > afterID && (o.Status == model.Pending || o.Status == model.Processing) && s.providerBacked(o.ServiceID) {
			list = append(list, o)
		}
	}
	slices.SortFunc(list, func(a, b model.Order) int { return cmp.Compare(a.ID, b.ID) })

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Storage) providerBacked(serviceID int64) bool {
	svc, ok := s.services[serviceID]
	if !ok || svc.ProviderID == nil {
		return false
	}
	p, ok := s.providers[*svc.ProviderID]
	return ok && p.Status == model.ServiceActive
}

func (s *Storage) GetService(_ context.Context, id int64) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, errs.ErrServiceNotFound
	}
	return svc, nil
}

func (s *Storage) ListServices(_ context.Context, activeOnly bool) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []model.Service
	for _, svc := range s.services {
		if activeOnly && svc.Status != model.ServiceActive {
			continue
		}
		list = append(list, svc)
	}
	slices.SortFunc(list, func(a, b model.Service) int { return int(a.ID - b.ID) })
	return list, nil
}

func (s *Storage) checkProvider(id *int64) error {
	if id == nil {
		return nil
	}
	if _, ok := s.providers[*id]; !ok {
		return errs.ErrProviderNotFound
	}
	return nil
}

func (s *Storage) CreateService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProvider(svc.ProviderID); err != nil {
		return model.Service{}, err
	}

	s.lastServiceID++
	svc.ID = s.lastServiceID
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Storage) UpdateService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[svc.ID]; !ok {
		return model.Service{}, errs.ErrServiceNotFound
	}
	if err := s.checkProvider(svc.ProviderID); err != nil {
		return model.Service{}, err
	}

	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Storage) GetProvider(_ context.Context, id int64) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, errs.ErrProviderNotFound
	}
	return p, nil
}

func (s *Storage) ListProviders(_ context.Context) ([]model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []model.Provider
	for _, p := range s.providers {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b model.Provider) int { return int(a.ID - b.ID) })
	return list, nil
}

func (s *Storage) CreateProvider(_ context.Context, p model.Provider) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastProviderID++
	p.ID = s.lastProviderID
	s.providers[p.ID] = p
	return p, nil
}
