package metrics

import (
	"errors"
	"net/http"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/errs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	ordersPlaced     *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	ledgerEntries    *prometheus.CounterVec
	guardRetries     *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ordersPlaced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smm_panel",
				Subsystem: "settlement",
				Name:      "orders_placed_total",
				Help:      "Order placement attempts partitioned by result.",
			},
			[]string{"result"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smm_panel",
				Subsystem: "settlement",
				Name:      "actions_total",
				Help:      "Refund, cancel and advance attempts partitioned by action and result.",
			},
			[]string{"action", "result"},
		),
		ledgerEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smm_panel",
				Subsystem: "ledger",
				Name:      "entries_total",
				Help:      "Committed ledger entries by kind.",
			},
			[]string{"kind"},
		),
		guardRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smm_panel",
				Subsystem: "ledger",
				Name:      "guard_retries_total",
				Help:      "Retried account mutations by outcome of the retry.",
			},
			[]string{"outcome"},
		),
		providerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "smm_panel",
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Upstream provider API calls by action and result.",
			},
			[]string{"action", "result"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OrderPlaced(err error) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Settlement(action string, err error) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(action, Result(err)).Inc()
}

func (m *Metrics) EntryAppended(kind string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(kind).Inc()
}

func (m *Metrics) GuardRetry(err error) {
	if m == nil {
		return
	}
	outcome := "recovered"
	if err != nil {
		outcome = "failed"
	}
	m.guardRetries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProviderRequest(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerRequests.WithLabelValues(action, result).Inc()
}

// Result turns an operation error into a bounded label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, errs.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, errs.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, errs.ErrAlreadyRefunded):
		return "already_refunded"
	case errors.Is(err, errs.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, errs.ErrConcurrentUpdateConflict):
		return "conflict"
	case errors.Is(err, errs.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, errs.ErrAccountNotFound), errors.Is(err, errs.ErrOrderNotFound),
		errors.Is(err, errs.ErrServiceNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrServiceInactive), errors.Is(err, errs.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, errs.ErrForbidden):
		return "forbidden"
	}
	return "error"
}
