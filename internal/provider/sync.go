package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 5 * time.Second
	workerCount     = 5
	batchSize       = 100
)

type OrderSource interface {
	ListSyncableOrders(ctx context.Context, afterID int64, limit int) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
}

type Catalog interface {
	GetService(ctx context.Context, id int64) (model.Service, error)
	GetProvider(ctx context.Context, id int64) (model.Provider, error)
}

type Advancer interface {
	AdvanceOrder(ctx context.Context, orderID int64, progress model.OrderProgress) (model.Order, error)
	RecordProviderOrder(ctx context.Context, orderID int64, providerOrderID string) (model.Order, error)
}

// Syncer pushes new orders to their providers and pulls progress for the
// ones already submitted.
type Syncer struct {
	orders   OrderSource
	catalog  Catalog
	settler  Advancer
	client   *Client
	interval time.Duration
	logger   *zap.SugaredLogger

	// orders queued or being worked on; keeps a slow add from being sent twice
	inFlight sync.Map
	// last order id handed out; only the Run loop touches it
	cursor int64
}

func NewSyncer(orders OrderSource, catalog Catalog, settler Advancer, client *Client, interval time.Duration, logger *zap.SugaredLogger) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		orders:   orders,
		catalog:  catalog,
		settler:  settler,
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	ch := make(chan model.Order, 10*workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, ch)
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.enqueue(ctx, ch)

		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) enqueue(ctx context.Context, ch chan<- model.Order) {
	orders, err := s.orders.ListSyncableOrders(ctx, s.cursor, batchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Errorf("list syncable orders: %v", err)
		}
		return
	}

	if len(orders) < batchSize {
		s.cursor = 0
	} else {
		s.cursor = orders[len(orders)-1].ID
	}

	skipped := 0
	for _, order := range orders {
		if _, busy := s.inFlight.LoadOrStore(order.ID, struct{}{}); busy {
			continue
		}
		select {
		case ch <- order:
		default:
			s.inFlight.Delete(order.ID)
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.Warnf("channel full, skipped %d orders", skipped)
	}
}

func (s *Syncer) work(ctx context.Context, ch <-chan model.Order) {
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-ch:
			err := s.Sync(ctx, order)
			s.inFlight.Delete(order.ID)

			var limited *RateLimitedError
			if errors.As(err, &limited) {
				s.logger.Warnf("provider rate limited, pausing %s", limited.RetryAfter)
				select {
				case <-ctx.Done():
					return
				case <-time.After(limited.RetryAfter):
				}
				continue
			}
			if err != nil && ctx.Err() == nil {
				s.logger.Errorf("sync order %d: %v", order.ID, err)
			}
		}
	}
}

// Sync moves one order forward with its provider. Orders whose service has
// no active provider are left for manual fulfilment.
func (s *Syncer) Sync(ctx context.Context, queued model.Order) error {
	// the queued copy may predate a submit finished by another worker
	order, err := s.orders.GetOrder(ctx, queued.ID)
	if err != nil {
		return err
	}
	if order.Status.Settled() {
		return nil
	}

	svc, err := s.catalog.GetService(ctx, order.ServiceID)
	if err != nil {
		return err
	}
	if svc.ProviderID == nil {
		return nil
	}

	p, err := s.catalog.GetProvider(ctx, *svc.ProviderID)
	if err != nil {
		return err
	}
	if p.Status != model.ServiceActive {
		return nil
	}

	if order.ProviderOrderID == nil {
		if order.Status != model.Pending {
			return nil
		}
		id, err := s.client.AddOrder(ctx, p, svc.ProviderServiceID, order.Link, order.Quantity)
		if err != nil {
			return err
		}

		_, err = s.settler.AdvanceOrder(ctx, order.ID, model.OrderProgress{Status: model.Pending, ProviderOrderID: &id})
		if errors.Is(err, errs.ErrInvalidState) {
			// settled while the add was on the wire; keep the upstream id on the order
			return s.orphaned(ctx, order.ID, p.ID, id)
		}
		if err != nil {
			s.logger.Errorw("provider accepted order but id was not stored", "order_id", order.ID, "provider_order_id", id, "error", err)
			return err
		}
		s.logger.Infow("order submitted", "order_id", order.ID, "provider_id", p.ID, "provider_order_id", id)
		return nil
	}

	status, err := s.client.Status(ctx, p, *order.ProviderOrderID)
	if err != nil {
		return err
	}
	if status.Canceled {
		s.logger.Warnw("provider cancelled order, refund needs operator action", "order_id", order.ID, "provider_order_id", *order.ProviderOrderID)
		return nil
	}
	if status.Progress.Status == order.Status && !changed(order, status.Progress) {
		return nil
	}
	if !order.Status.CanAdvanceTo(status.Progress.Status) {
		s.logger.Debugw("ignoring provider status", "order_id", order.ID, "status", order.Status, "reported", status.Progress.Status)
		return nil
	}

	_, err = s.settler.AdvanceOrder(ctx, order.ID, status.Progress)
	return err
}

func (s *Syncer) orphaned(ctx context.Context, orderID, providerID int64, providerOrderID string) error {
	order, err := s.settler.RecordProviderOrder(ctx, orderID, providerOrderID)
	if err != nil {
		s.logger.Errorw("provider accepted order but id was not stored", "order_id", orderID, "provider_order_id", providerOrderID, "error", err)
		return err
	}

	s.logger.Warnw("provider accepted an order that was settled meanwhile, cancel it upstream",
		"order_id", orderID, "status", order.Status, "provider_id", providerID, "provider_order_id", providerOrderID)
	return nil
}

func changed(order model.Order, p model.OrderProgress) bool {
	if p.StartCount != nil && *p.StartCount != order.StartCount {
		return true
	}
	return p.Remains != nil && *p.Remains != order.Remains
}
