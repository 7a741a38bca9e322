// Package settlement ties order lifecycle to the ledger: placing an order
// charges the account, refunding or cancelling credits it back, and each
// status change commits together with its entry.
package settlement

import (
	"context"
	"fmt"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/deps"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/events"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/ledger"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/storage"
)

const (
	actionRefund  = "refund"
	actionCancel  = "cancel"
	actionAdvance = "advance"
	actionRecord  = "record_provider_order"
)

// ServiceSource resolves catalog entries. The catalog may serve them from
// cache, so they are read before the unit of work starts.
type ServiceSource interface {
	GetService(ctx context.Context, id int64) (model.Service, error)
}

type Settler struct {
	store    storage.Store
	services ServiceSource
	guard    *ledger.Guard
	deps     *deps.Deps
}

func New(store storage.Store, services ServiceSource, guard *ledger.Guard, deps *deps.Deps) *Settler {
	return &Settler{store: store, services: services, guard: guard, deps: deps}
}

func (s *Settler) PlaceOrder(ctx context.Context, req model.PlaceOrder) (model.Order, error) {
	order, entry, err := s.placeOrder(ctx, req)
	s.deps.Metrics.OrderPlaced(err)
	if err != nil {
		s.deps.Logger.Infow("order rejected", "account_id", req.AccountID, "service_id", req.ServiceID, "error", err)
		return model.Order{}, err
	}

	s.deps.Metrics.EntryAppended(string(entry.Kind))
	s.deps.Events.Emit(events.SubjectOrderPlaced, events.OrderEvent{Order: order, Entry: &entry, EmittedAt: entry.CreatedAt})
	s.deps.Events.Emit(events.SubjectLedgerEntry, entry)
	s.deps.Logger.Infow("order placed",
		"order_id", order.ID, "account_id", order.AccountID, "charge", order.Charge.StringFixed(model.MoneyPlaces))

	return order, nil
}

func (s *Settler) placeOrder(ctx context.Context, req model.PlaceOrder) (model.Order, model.LedgerEntry, error) {
	svc, err := s.services.GetService(ctx, req.ServiceID)
	if err != nil {
		return model.Order{}, model.LedgerEntry{}, err
	}
	if svc.Status != model.ServiceActive {
		return model.Order{}, model.LedgerEntry{}, fmt.Errorf("service %d: %w", svc.ID, errs.ErrServiceInactive)
	}
	if !svc.AcceptsQuantity(req.Quantity) {
		return model.Order{}, model.LedgerEntry{}, &errs.InvalidQuantityError{
			Quantity: req.Quantity,
			Min:      svc.MinOrder,
			Max:      svc.MaxOrder,
		}
	}

	charge := svc.ChargeFor(req.Quantity)
	if !charge.IsPositive() {
		return model.Order{}, model.LedgerEntry{}, fmt.Errorf("%w: order of %d at rate %s costs nothing", errs.ErrInvalidAmount, req.Quantity, svc.Rate)
	}

	var order model.Order
	var entry model.LedgerEntry
	err = s.guard.Do(ctx, req.AccountID, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx storage.Tx) error {
			acc, err := tx.GetAccountForUpdate(ctx, req.AccountID)
			if err != nil {
				return err
			}
			if acc.Status != model.AccountActive {
				return fmt.Errorf("account %d: %w", acc.ID, errs.ErrAccountInactive)
			}

			now := s.deps.Clock.Now()
			order = model.Order{
				AccountID: acc.ID,
				ServiceID: svc.ID,
				Link:      req.Link,
				Quantity:  req.Quantity,
				Charge:    charge,
				Status:    model.Pending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertOrder(ctx, &order); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			entry, err = ledger.Apply(ctx, tx, ledger.EntryRequest{
				AccountID:      acc.ID,
				Kind:           model.OrderCharge,
				Amount:         charge.Neg(),
				Description:    fmt.Sprintf("Order #%d - %s", order.ID, svc.Name),
				RelatedOrderID: &order.ID,
			}, now)
			return err
		})
	})

	return order, entry, err
}

// RefundOrder credits the full charge back and marks the order Refunded.
func (s *Settler) RefundOrder(ctx context.Context, actor model.Actor, orderID int64) (model.LedgerEntry, error) {
	order, entry, err := s.creditBack(ctx, actor, orderID, actionRefund)
	s.deps.Metrics.Settlement(actionRefund, err)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	s.emitCredit(events.SubjectOrderRefunded, actor, order, entry)
	s.deps.Logger.Infow("order refunded", "order_id", order.ID, "actor_id", actor.AccountID)
	return entry, nil
}

// CancelOrder stops a Pending order before it reaches a provider and
// credits its charge back.
func (s *Settler) CancelOrder(ctx context.Context, actor model.Actor, orderID int64) (model.LedgerEntry, error) {
	order, entry, err := s.creditBack(ctx, actor, orderID, actionCancel)
	s.deps.Metrics.Settlement(actionCancel, err)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	s.emitCredit(events.SubjectOrderCancelled, actor, order, entry)
	s.deps.Logger.Infow("order cancelled", "order_id", order.ID, "actor_id", actor.AccountID)
	return entry, nil
}

func (s *Settler) creditBack(ctx context.Context, actor model.Actor, orderID int64, action string) (model.Order, model.LedgerEntry, error) {
	if actor.Role != model.RoleAdmin {
		return model.Order{}, model.LedgerEntry{}, errs.ErrForbidden
	}

	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, model.LedgerEntry{}, err
	}

	var order model.Order
	var entry model.LedgerEntry
	err = s.guard.Do(ctx, current.AccountID, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx storage.Tx) error {
			var err error
			order, err = tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}

			from := order.Status
			next, description, err := creditTransition(order, action)
			if err != nil {
				return err
			}

			now := s.deps.Clock.Now()
			entry, err = ledger.Apply(ctx, tx, ledger.EntryRequest{
				AccountID:      order.AccountID,
				Kind:           model.Refund,
				Amount:         order.Charge,
				Description:    description,
				RelatedOrderID: &order.ID,
			}, now)
			if err != nil {
				return err
			}

			order.Status = next
			order.UpdatedAt = now
			return tx.UpdateOrder(ctx, order, from)
		})
	})

	return order, entry, err
}

func creditTransition(order model.Order, action string) (model.OrderStatus, string, error) {
	if order.Status == model.Refunded {
		return "", "", fmt.Errorf("order #%d: %w", order.ID, errs.ErrAlreadyRefunded)
	}

	switch action {
	case actionCancel:
		if order.Status != model.Pending {
			return "", "", &errs.InvalidStateError{OrderID: order.ID, Status: string(order.Status), Action: action}
		}
		return model.Cancelled, fmt.Sprintf("Order #%d cancelled", order.ID), nil
	default:
		if !order.Status.Refundable() {
			return "", "", &errs.InvalidStateError{OrderID: order.ID, Status: string(order.Status), Action: action}
		}
		return model.Refunded, fmt.Sprintf("Refund for order #%d", order.ID), nil
	}
}

func (s *Settler) emitCredit(subject string, actor model.Actor, order model.Order, entry model.LedgerEntry) {
	s.deps.Metrics.EntryAppended(string(entry.Kind))
	s.deps.Events.Emit(subject, events.OrderEvent{Order: order, Entry: &entry, ActorID: actor.AccountID, EmittedAt: entry.CreatedAt})
	s.deps.Events.Emit(events.SubjectLedgerEntry, entry)
}

// AdvanceOrder records provider progress. It never touches the ledger.
func (s *Settler) AdvanceOrder(ctx context.Context, orderID int64, progress model.OrderProgress) (model.Order, error) {
	order, err := s.advanceOrder(ctx, orderID, progress)
	s.deps.Metrics.Settlement(actionAdvance, err)
	if err != nil {
		return model.Order{}, err
	}

	s.deps.Logger.Debugw("order advanced", "order_id", order.ID, "status", order.Status)
	return order, nil
}

func (s *Settler) advanceOrder(ctx context.Context, orderID int64, progress model.OrderProgress) (model.Order, error) {
	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}

	var order model.Order
	err = s.guard.Do(ctx, current.AccountID, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx storage.Tx) error {
			var err error
			order, err = tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}

			from := order.Status
			if !from.CanAdvanceTo(progress.Status) {
				return &errs.InvalidStateError{
					OrderID: order.ID,
					Status:  string(from),
					Action:  "advance to " + string(progress.Status),
				}
			}

			order.Status = progress.Status
			if progress.StartCount != nil {
				order.StartCount = *progress.StartCount
			}
			if progress.Remains != nil {
				order.Remains = *progress.Remains
			}
			if progress.ProviderOrderID != nil {
				order.ProviderOrderID = progress.ProviderOrderID
			}
			order.UpdatedAt = s.deps.Clock.Now()

			return tx.UpdateOrder(ctx, order, from)
		})
	})

	return order, err
}

// RecordProviderOrder stores the upstream id on an order whatever its status.
// The syncer uses it when a provider accepted an order that was refunded or
// cancelled while the add request was in flight.
func (s *Settler) RecordProviderOrder(ctx context.Context, orderID int64, providerOrderID string) (model.Order, error) {
	order, err := s.recordProviderOrder(ctx, orderID, providerOrderID)
	s.deps.Metrics.Settlement(actionRecord, err)
	if err != nil {
		return model.Order{}, err
	}

	if order.Status.Settled() {
		s.deps.Events.Emit(events.SubjectOrderOrphaned, events.OrderEvent{Order: order, EmittedAt: order.UpdatedAt})
	}
	return order, nil
}

func (s *Settler) recordProviderOrder(ctx context.Context, orderID int64, providerOrderID string) (model.Order, error) {
	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}

	var order model.Order
	err = s.guard.Do(ctx, current.AccountID, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx storage.Tx) error {
			var err error
			order, err = tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}

			if order.ProviderOrderID != nil {
				if *order.ProviderOrderID == providerOrderID {
					return nil
				}
				return &errs.InvalidStateError{OrderID: order.ID, Status: string(order.Status), Action: "replace provider order"}
			}

			order.ProviderOrderID = &providerOrderID
			order.UpdatedAt = s.deps.Clock.Now()
			return tx.UpdateOrder(ctx, order, order.Status)
		})
	})

	return order, err
}

func (s *Settler) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Settler) ListOrders(ctx context.Context, accountID int64, page model.Page) ([]model.Order, error) {
	return s.store.ListOrders(ctx, accountID, page.Normalize())
}
