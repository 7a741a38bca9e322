// Package ledger appends signed entries to an account's journal and keeps
// the cached balance equal to their sum.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/deps"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/events"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
	"github.com/shopspring/decimal"
)

type EntryRequest struct {
	AccountID      int64
	Kind           model.EntryKind
	Amount         decimal.Decimal
	Description    string
	RelatedOrderID *int64
}

type Ledger struct {
	store storage.Store
	guard *Guard
	deps  *deps.Deps
}

func New(store storage.Store, guard *Guard, deps *deps.Deps) *Ledger {
	return &Ledger{store: store, guard: guard, deps: deps}
}

// Apply writes one entry and the matching balance inside tx. Callers run it
// under the account's guard so the read-modify-write is not interleaved.
func Apply(ctx context.Context, tx storage.Tx, req EntryRequest, now time.Time) (model.LedgerEntry, error) {
	if !req.Kind.AllowsAmount(req.Amount) {
		return model.LedgerEntry{}, fmt.Errorf("%w: %s of %s", errs.ErrInvalidAmount, req.Kind, req.Amount)
	}

	acc, err := tx.GetAccountForUpdate(ctx, req.AccountID)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	after := acc.Balance.Add(req.Amount)
	if after.IsNegative() {
		return model.LedgerEntry{}, &errs.InsufficientFundsError{
			Available: acc.Balance,
			Required:  req.Amount.Neg(),
		}
	}

	entry := model.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      acc.ID,
		Kind:           req.Kind,
		Amount:         req.Amount,
		BalanceBefore:  acc.Balance,
		BalanceAfter:   after,
		Description:    req.Description,
		RelatedOrderID: req.RelatedOrderID,
		CreatedAt:      now,
	}

	if err := tx.InsertEntry(ctx, entry); err != nil {
		return model.LedgerEntry{}, err
	}
	if err := tx.UpdateBalance(ctx, acc.ID, after, acc.Version); err != nil {
		return model.LedgerEntry{}, err
	}

	return entry, nil
}

// AppendEntry records a standalone entry as its own unit of work.
func (l *Ledger) AppendEntry(ctx context.Context, req EntryRequest) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := l.guard.Do(ctx, req.AccountID, func(ctx context.Context) error {
		return l.store.InTx(ctx, func(tx storage.Tx) error {
			var err error
			entry, err = Apply(ctx, tx, req, l.deps.Clock.Now())
			return err
		})
	})
	if err != nil {
		return model.LedgerEntry{}, err
	}

	l.deps.Metrics.EntryAppended(string(entry.Kind))
	l.deps.Events.Emit(events.SubjectLedgerEntry, entry)
	l.deps.Logger.Infow("ledger entry appended",
		"account_id", entry.AccountID, "kind", entry.Kind, "amount", entry.Amount.StringFixed(model.MoneyPlaces))

	return entry, nil
}

func (l *Ledger) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acc, err := l.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (l *Ledger) ListEntries(ctx context.Context, accountID int64, filter model.EntryFilter) ([]model.LedgerEntry, error) {
	if _, err := l.store.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	filter.Page = filter.Page.Normalize()
	return l.store.ListEntries(ctx, accountID, filter)
}

// Deposit credits funds confirmed by a payment gateway or an operator.
func (l *Ledger) Deposit(ctx context.Context, actor model.Actor, accountID int64, amount decimal.Decimal, description string) (model.LedgerEntry, error) {
	if actor.Role != model.RoleAdmin {
		return model.LedgerEntry{}, errs.ErrForbidden
	}
	if description == "" {
		description = "Deposit"
	}

	return l.AppendEntry(ctx, EntryRequest{
		AccountID:   accountID,
		Kind:        model.Deposit,
		Amount:      amount,
		Description: description,
	})
}

// Adjust moves the balance either way on an operator's decision. It cannot
// take the balance below zero.
func (l *Ledger) Adjust(ctx context.Context, actor model.Actor, accountID int64, amount decimal.Decimal, description string) (model.LedgerEntry, error) {
	if actor.Role != model.RoleAdmin {
		return model.LedgerEntry{}, errs.ErrForbidden
	}
	if description == "" {
		description = fmt.Sprintf("Admin adjustment by #%d", actor.AccountID)
	}

	return l.AppendEntry(ctx, EntryRequest{
		AccountID:   accountID,
		Kind:        model.AdminAdjustment,
		Amount:      amount,
		Description: description,
	})
}
