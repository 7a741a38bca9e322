package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/clock"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/deps"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = model.Actor{AccountID: 100, Role: model.RoleAdmin}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setup(t *testing.T) (*Ledger, *memory.Storage, model.Account) {
	t.Helper()

	store := memory.New()
	d := deps.NewTestDependencies(clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	l := New(store, NewGuard(d.Logger, d.Metrics), d)

	acc, err := store.CreateAccount(context.Background(), model.NewAccount{Name: "Alice", Email: "alice@example.com", Role: model.RoleUser}, "hash")
	require.NoError(t, err)
	return l, store, acc
}

func requireConserved(t *testing.T, store *memory.Storage, accountID int64) {
	t.Helper()
	ctx := context.Background()

	acc, err := store.GetAccountByID(ctx, accountID)
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, accountID, model.EntryFilter{Page: model.Page{Limit: model.MaxPageSize}})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
		require.True(t, e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Amount)))
		require.False(t, e.BalanceAfter.IsNegative())
	}
	require.True(t, acc.Balance.Equal(sum), "balance %s, entries sum %s", acc.Balance, sum)
}

func TestDepositAndBalance(t *testing.T) {
	l, store, acc := setup(t)
	ctx := context.Background()

	entry, err := l.Deposit(ctx, admin, acc.ID, money("100.00"), "")
	require.NoError(t, err)
	require.Equal(t, model.Deposit, entry.Kind)
	require.Equal(t, "Deposit", entry.Description)
	require.True(t, entry.BalanceBefore.IsZero())
	require.True(t, entry.BalanceAfter.Equal(money("100")))

	balance, err := l.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, balance.Equal(money("100")))

	requireConserved(t, store, acc.ID)
}

func TestDepositRequiresAdmin(t *testing.T) {
	l, _, acc := setup(t)

	_, err := l.Deposit(context.Background(), acc.Actor(), acc.ID, money("5"), "")
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = l.Adjust(context.Background(), acc.Actor(), acc.ID, money("5"), "")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAdjustCannotOverdraw(t *testing.T) {
	l, store, acc := setup(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, admin, acc.ID, money("2.00"), "")
	require.NoError(t, err)

	_, err = l.Adjust(ctx, admin, acc.ID, money("-2.50"), "")
	var insufficient *errs.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "insufficient balance: available $2.00, required $2.50", err.Error())

	entry, err := l.Adjust(ctx, admin, acc.ID, money("-0.50"), "")
	require.NoError(t, err)
	require.Equal(t, "Admin adjustment by #100", entry.Description)

	balance, err := l.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, balance.Equal(money("1.50")))
	requireConserved(t, store, acc.ID)
}

func TestAppendEntryRejectsBadAmounts(t *testing.T) {
	l, _, acc := setup(t)
	ctx := context.Background()

	tests := []EntryRequest{
		{AccountID: acc.ID, Kind: model.Deposit, Amount: money("-1")},
		{AccountID: acc.ID, Kind: model.Deposit, Amount: money("0")},
		{AccountID: acc.ID, Kind: model.OrderCharge, Amount: money("1")},
		{AccountID: acc.ID, Kind: model.AdminAdjustment, Amount: money("0.001")},
		{AccountID: acc.ID, Kind: model.EntryKind("BONUS"), Amount: money("1")},
	}
	for _, req := range tests {
		_, err := l.AppendEntry(ctx, req)
		require.ErrorIs(t, err, errs.ErrInvalidAmount, "%s %s", req.Kind, req.Amount)
	}

	entries, err := l.ListEntries(ctx, acc.ID, model.EntryFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAppendEntryUnknownAccount(t *testing.T) {
	l, _, _ := setup(t)

	_, err := l.AppendEntry(context.Background(), EntryRequest{AccountID: 404, Kind: model.Deposit, Amount: money("1")})
	require.ErrorIs(t, err, errs.ErrAccountNotFound)

	_, err = l.ListEntries(context.Background(), 404, model.EntryFilter{})
	require.ErrorIs(t, err, errs.ErrAccountNotFound)
}

func TestListEntriesNewestFirstWithCap(t *testing.T) {
	l, _, acc := setup(t)
	ctx := context.Background()

	for i := 1; i <= 120; i++ {
		_, err := l.Deposit(ctx, admin, acc.ID, decimal.NewFromInt(int64(i)), "")
		require.NoError(t, err)
	}

	entries, err := l.ListEntries(ctx, acc.ID, model.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, model.DefaultPageSize)
	require.True(t, entries[0].Amount.Equal(decimal.NewFromInt(120)))

	entries, err = l.ListEntries(ctx, acc.ID, model.EntryFilter{Page: model.Page{Limit: 1000}})
	require.NoError(t, err)
	require.Len(t, entries, model.MaxPageSize)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].CreatedAt.After(entries[i].CreatedAt))
	}
}

func TestApplyRollsBackWithFailingUnit(t *testing.T) {
	l, store, acc := setup(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, admin, acc.ID, money("10"), "")
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx storage.Tx) error {
		if _, err := Apply(ctx, tx, EntryRequest{AccountID: acc.ID, Kind: model.AdminAdjustment, Amount: money("-4")}, time.Now()); err != nil {
			return err
		}
		return errs.ErrStorageUnavailable
	})
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)

	balance, err := l.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, balance.Equal(money("10")))
	requireConserved(t, store, acc.ID)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, store, acc := setup(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, admin, acc.ID, money("10.00"), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Adjust(ctx, admin, acc.ID, money("-1.00"), "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
			insufficient++
		}
	}
	require.Equal(t, 10, ok)
	require.Equal(t, 20, insufficient)

	balance, err := l.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	requireConserved(t, store, acc.ID)
}
