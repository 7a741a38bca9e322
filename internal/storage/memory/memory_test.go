package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, s *Storage, email string) model.Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), model.NewAccount{Name: "n", Email: email}, "hash")
	require.NoError(t, err)
	return acc
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx storage.Tx) error {
		o := &model.Order{AccountID: acc.ID, Status: model.Pending}
		require.NoError(t, tx.InsertOrder(ctx, o))
		require.NoError(t, tx.UpdateBalance(ctx, acc.ID, decimal.NewFromInt(5), acc.Version))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	_, err = s.GetOrder(ctx, 1)
	require.ErrorIs(t, err, errs.ErrOrderNotFound)

	// order ids are not consumed by a rolled back unit
	err = s.InTx(ctx, func(tx storage.Tx) error {
		o := &model.Order{AccountID: acc.ID, Status: model.Pending}
		require.NoError(t, tx.InsertOrder(ctx, o))
		require.Equal(t, int64(1), o.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateBalanceVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com")

	err := s.InTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateBalance(ctx, acc.ID, decimal.NewFromInt(1), acc.Version+1)
	})
	require.ErrorIs(t, err, errs.ErrWriteConflict)

	err = s.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateBalance(ctx, acc.ID, decimal.NewFromInt(1), acc.Version); err != nil {
			return err
		}
		locked, err := tx.GetAccountForUpdate(ctx, acc.ID)
		require.NoError(t, err)
		require.Equal(t, acc.Version+1, locked.Version)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertEntrySecondRefundRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com")
	orderID := int64(3)

	refund := model.LedgerEntry{
		ID: uuid.New(), AccountID: acc.ID, Kind: model.Refund,
		Amount: decimal.NewFromInt(1), RelatedOrderID: &orderID,
	}
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error { return tx.InsertEntry(ctx, refund) }))

	refund.ID = uuid.New()
	err := s.InTx(ctx, func(tx storage.Tx) error { return tx.InsertEntry(ctx, refund) })
	require.ErrorIs(t, err, errs.ErrAlreadyRefunded)
}

func TestListEntriesOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orderID := int64(9)

	err := s.InTx(ctx, func(tx storage.Tx) error {
		for i := 0; i < 15; i++ {
			e := model.LedgerEntry{
				ID: uuid.New(), AccountID: acc.ID, Kind: model.Deposit,
				Amount: decimal.NewFromInt(int64(i + 1)), CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if i == 7 {
				e.Kind = model.Refund
				e.RelatedOrderID = &orderID
			}
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	page, err := s.ListEntries(ctx, acc.ID, model.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, page, model.DefaultPageSize)
	require.True(t, page[0].Amount.Equal(decimal.NewFromInt(15)))

	rest, err := s.ListEntries(ctx, acc.ID, model.EntryFilter{Page: model.Page{Limit: 10, Offset: 10}})
	require.NoError(t, err)
	require.Len(t, rest, 5)
	require.True(t, rest[4].Amount.Equal(decimal.NewFromInt(1)))

	kind := model.Refund
	refunds, err := s.ListEntries(ctx, acc.ID, model.EntryFilter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, refunds, 1)

	byOrder, err := s.ListEntries(ctx, acc.ID, model.EntryFilter{RelatedOrderID: &orderID})
	require.NoError(t, err)
	require.Equal(t, refunds, byOrder)
}

func TestProfileEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newAccount(t, s, "a@example.com")
	newAccount(t, s, "b@example.com")

	_, err := s.CreateAccount(ctx, model.NewAccount{Name: "x", Email: "A@example.com"}, "h")
	require.ErrorIs(t, err, errs.ErrEmailTaken)

	_, err = s.UpdateProfile(ctx, a.ID, model.ProfileUpdate{Name: "a", Email: "b@example.com"})
	require.ErrorIs(t, err, errs.ErrEmailTaken)

	updated, err := s.UpdateProfile(ctx, a.ID, model.ProfileUpdate{Name: "Alice", Email: "a@example.com", Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, updated.Role)
	require.Equal(t, model.AccountActive, updated.Status)
}

func TestServiceRequiresKnownProvider(t *testing.T) {
	ctx := context.Background()
	s := New()

	missing := int64(42)
	_, err := s.CreateService(ctx, model.Service{Name: "x", ProviderID: &missing})
	require.ErrorIs(t, err, errs.ErrProviderNotFound)

	p, err := s.CreateProvider(ctx, model.Provider{Name: "p", Status: model.ServiceActive})
	require.NoError(t, err)
	svc, err := s.CreateService(ctx, model.Service{Name: "x", ProviderID: &p.ID, Status: model.ServiceInactive})
	require.NoError(t, err)

	active, err := s.ListServices(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)

	svc.Status = model.ServiceActive
	_, err = s.UpdateService(ctx, svc)
	require.NoError(t, err)
	active, err = s.ListServices(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestListSyncableOrdersFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := newAccount(t, s, "a@example.com")

	active, err := s.CreateProvider(ctx, model.Provider{Name: "up", Status: model.ServiceActive})
	require.NoError(t, err)
	paused, err := s.CreateProvider(ctx, model.Provider{Name: "down", Status: model.ServiceInactive})
	require.NoError(t, err)

	backed, err := s.CreateService(ctx, model.Service{Name: "backed", ProviderID: &active.ID, Status: model.ServiceActive})
	require.NoError(t, err)
	stalled, err := s.CreateService(ctx, model.Service{Name: "stalled", ProviderID: &paused.ID, Status: model.ServiceActive})
	require.NoError(t, err)
	manual, err := s.CreateService(ctx, model.Service{Name: "manual", Status: model.ServiceActive})
	require.NoError(t, err)

	insert := func(serviceID int64, status model.OrderStatus) int64 {
		o := &model.Order{AccountID: acc.ID, ServiceID: serviceID, Status: status}
		require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error { return tx.InsertOrder(ctx, o) }))
		return o.ID
	}

	insert(manual.ID, model.Pending)
	first := insert(backed.ID, model.Pending)
	insert(stalled.ID, model.Pending)
	insert(backed.ID, model.Completed)
	second := insert(backed.ID, model.Processing)
	third := insert(backed.ID, model.Pending)

	all, err := s.ListSyncableOrders(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{first, second, third}, orderIDs(all))

	page, err := s.ListSyncableOrders(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{first, second}, orderIDs(page))

	rest, err := s.ListSyncableOrders(ctx, second, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{third}, orderIDs(rest))
}

func orderIDs(orders []model.Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestEmailsStoredLowercase(t *testing.T) {
	ctx := context.Background()
	s := New()

	acc, err := s.CreateAccount(ctx, model.NewAccount{Name: "Ann", Email: " Ann@Example.com"}, "h")
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", acc.Email)

	found, hash, err := s.GetAccountByEmail(ctx, "ANN@example.COM")
	require.NoError(t, err)
	require.Equal(t, acc.ID, found.ID)
	require.Equal(t, "h", hash)

	updated, err := s.UpdateProfile(ctx, acc.ID, model.ProfileUpdate{Name: "Ann", Email: "Ann.B@Example.com"})
	require.NoError(t, err)
	require.Equal(t, "ann.b@example.com", updated.Email)
}
