package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"go.uber.org/zap"
)

const (
	SubjectOrderPlaced    = "orders.placed"
	SubjectOrderRefunded  = "orders.refunded"
	SubjectOrderCancelled = "orders.cancelled"
	SubjectOrderOrphaned  = "orders.orphaned"
	SubjectLedgerEntry    = "ledger.entries"
)

type Bus interface {
	Publish(subject string, data []byte) error
}

type OrderEvent struct {
	Order     model.Order        `json:"order"`
	Entry     *model.LedgerEntry `json:"entry,omitempty"`
	ActorID   int64              `json:"actor_id,omitempty"`
	EmittedAt time.Time          `json:"emitted_at"`
}

// Publisher emits events after commit. Failures are logged and swallowed:
// the committed state is the source of truth, events are notifications.
type Publisher struct {
	bus    Bus
	logger *zap.SugaredLogger
}

func NewPublisher(bus Bus, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) Emit(subject string, payload any) {
	if p == nil || p.bus == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Errorf("marshal %s event: %v", subject, err)
		return
	}

	if err := p.bus.Publish(subject, data); err != nil {
		p.logger.Warnf("publish %s event: %v", subject, err)
	}
}

type NatsBus struct {
	nc *nats.Conn
}

func ConnectNats(url string) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("smm-panel"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Close flushes buffered messages before closing the connection.
func (b *NatsBus) Close() error {
	return b.nc.Drain()
}
