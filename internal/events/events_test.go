package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingBus struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (b *recordingBus) Publish(subject string, data []byte) error {
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return b.err
}

func TestEmitMarshalsPayload(t *testing.T) {
	bus := &recordingBus{}
	p := NewPublisher(bus, zaptest.NewLogger(t).Sugar())

	p.Emit(SubjectOrderPlaced, OrderEvent{Order: model.Order{ID: 12, Status: model.Pending}})

	require.Equal(t, []string{SubjectOrderPlaced}, bus.subjects)
	var got OrderEvent
	require.NoError(t, json.Unmarshal(bus.payloads[0], &got))
	require.Equal(t, int64(12), got.Order.ID)
	require.Equal(t, model.Pending, got.Order.Status)
}

func TestEmitSwallowsBusErrors(t *testing.T) {
	bus := &recordingBus{err: errors.New("nats down")}
	p := NewPublisher(bus, zaptest.NewLogger(t).Sugar())

	require.NotPanics(t, func() { p.Emit(SubjectLedgerEntry, map[string]int{"a": 1}) })
	require.Len(t, bus.subjects, 1)
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	require.NotPanics(t, func() { p.Emit(SubjectOrderRefunded, nil) })

	empty := NewPublisher(nil, zaptest.NewLogger(t).Sugar())
	require.NotPanics(t, func() { empty.Emit(SubjectOrderRefunded, nil) })
}
