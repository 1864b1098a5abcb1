package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestRegistry(queue int, m *infra.Metrics) *Registry {
	return NewRegistry(RegistryOptions{
		QueueSize: queue,
		Now:       func() time.Time { return fixedNow },
		Metrics:   m,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// next pops one queued frame or fails.
func next(t *testing.T, c *Connection) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.Send():
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func empty(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case frame := <-c.Send():
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}

func TestRegistry_ConnectSendsResponse(t *testing.T) {
	r := newTestRegistry(8, &infra.Metrics{})
	c := r.Connect()

	env := next(t, c)
	assert.Equal(t, EventConnectionResponse, env.Event)

	var resp ConnectionResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "connected", resp.Status)
	assert.Equal(t, c.ID, resp.ID)
	assert.True(t, resp.Timestamp.Equal(fixedNow))
	assert.Empty(t, c.Topics())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_SubscribeUnsubscribe(t *testing.T) {
	m := &infra.Metrics{}
	r := newTestRegistry(8, m)
	c := r.Connect()
	next(t, c)

	topic, err := r.Subscribe(c, "aapl", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Topic{Class: domain.ClassStock, Symbol: "AAPL"}, topic)

	env := next(t, c)
	assert.Equal(t, EventSubscriptionConfirmed, env.Event)
	var ack SubscriptionConfirmed
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.Equal(t, "AAPL", ack.Symbol)
	assert.Equal(t, "stock", ack.Type)

	// duplicate subscribe is acknowledged but leaves one entry
	_, err = r.Subscribe(c, "AAPL", "stock")
	require.NoError(t, err)
	next(t, c)
	assert.Len(t, c.Topics(), 1)
	assert.EqualValues(t, 1, m.Snapshot().Subscriptions)

	require.NoError(t, r.Unsubscribe(c, "AAPL", "stock"))
	assert.Empty(t, c.Topics())
	assert.EqualValues(t, 0, m.Snapshot().Subscriptions)
	empty(t, c)

	// removing again is a no-op
	require.NoError(t, r.Unsubscribe(c, "AAPL", "stock"))
}

func TestRegistry_UnsubscribeWithoutTypeRemovesAllClasses(t *testing.T) {
	r := newTestRegistry(8, &infra.Metrics{})
	c := r.Connect()

	_, err := r.Subscribe(c, "BTC", "crypto")
	require.NoError(t, err)
	_, err = r.Subscribe(c, "BTC", "stock")
	require.NoError(t, err)
	_, err = r.Subscribe(c, "ETH", "crypto")
	require.NoError(t, err)

	require.NoError(t, r.Unsubscribe(c, "btc", ""))
	assert.Equal(t, []domain.Topic{{Class: domain.ClassCrypto, Symbol: "ETH"}}, c.Topics())
}

func TestRegistry_AckGoesToRequesterOnly(t *testing.T) {
	r := newTestRegistry(8, &infra.Metrics{})
	a, b := r.Connect(), r.Connect()
	next(t, a)
	next(t, b)

	_, err := r.Subscribe(a, "EURUSD", "forex")
	require.NoError(t, err)

	assert.Equal(t, EventSubscriptionConfirmed, next(t, a).Event)
	empty(t, b)
	assert.Empty(t, b.Topics())
}

func TestRegistry_DisconnectIsolated(t *testing.T) {
	m := &infra.Metrics{}
	r := newTestRegistry(8, m)
	a, b := r.Connect(), r.Connect()
	_, _ = r.Subscribe(a, "AAPL", "")
	_, _ = r.Subscribe(b, "MSFT", "")
	_, _ = r.Subscribe(b, "ETH", "crypto")

	r.Disconnect(b)
	r.Disconnect(b)

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []domain.Topic{{Class: domain.ClassStock, Symbol: "AAPL"}}, a.Topics())
	assert.Equal(t, []domain.Topic{{Class: domain.ClassStock, Symbol: "AAPL"}}, r.ActiveTopics())

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.ActiveConnections)
	assert.EqualValues(t, 1, snap.Subscriptions)

	_, err := r.Get(b.ID)
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)

	// drain b: connection_response and two acks, then closed
	for range 3 {
		<-b.Send()
	}
	_, ok := <-b.Send()
	assert.False(t, ok)
}

func TestRegistry_SubscribeAfterDisconnect(t *testing.T) {
	m := &infra.Metrics{}
	r := newTestRegistry(8, m)
	c := r.Connect()
	r.Disconnect(c)

	_, err := r.Subscribe(c, "AAPL", "")
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)

	r.Handle(c, []byte(`{"event":"subscribe","data":{"symbol":"MSFT"}}`))

	assert.Empty(t, c.Topics())
	snap := m.Snapshot()
	assert.EqualValues(t, 0, snap.Subscriptions)
	assert.EqualValues(t, 0, snap.MessagesDropped)
}

func TestRegistry_SlowConsumerDrops(t *testing.T) {
	m := &infra.Metrics{}
	r := newTestRegistry(2, m)
	slow, fast := r.Connect(), r.Connect()
	next(t, fast)

	// slow never drains: its queue holds the connection_response plus one
	n, err := r.Publish(EventMarketUpdate, map[string]int{"tick": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Publish(EventMarketUpdate, map[string]int{"tick": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, m.Snapshot().MessagesDropped)

	assert.Equal(t, EventMarketUpdate, next(t, fast).Event)
	assert.Equal(t, EventMarketUpdate, next(t, fast).Event)
	assert.Len(t, slow.Send(), 2)
}

func TestRegistry_PublishTopic(t *testing.T) {
	r := newTestRegistry(8, &infra.Metrics{})
	a, b := r.Connect(), r.Connect()
	_, _ = r.Subscribe(a, "BTC", "crypto")
	next(t, a)
	next(t, a)
	next(t, b)

	btc := domain.Topic{Class: domain.ClassCrypto, Symbol: "BTC"}
	n, err := r.PublishTopic(btc, EventPriceUpdate, PriceUpdate{Symbol: "BTC", Type: "crypto"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, EventPriceUpdate, next(t, a).Event)
	empty(t, b)
}

func TestRegistry_Handle(t *testing.T) {
	r := newTestRegistry(8, &infra.Metrics{})
	c := r.Connect()
	next(t, c)

	r.Handle(c, []byte(`{"event":"subscribe","data":{"symbol":"eth","type":"crypto"}}`))
	assert.Equal(t, EventSubscriptionConfirmed, next(t, c).Event)
	assert.True(t, c.Has(domain.Topic{Class: domain.ClassCrypto, Symbol: "ETH"}))

	r.Handle(c, []byte(`{"event":"unsubscribe","data":{"symbol":"ETH"}}`))
	empty(t, c)
	assert.Empty(t, c.Topics())

	for name, frame := range map[string]string{
		"not json":      `hello`,
		"unknown event": `{"event":"ping"}`,
		"bad type":      `{"event":"subscribe","data":{"symbol":"AAPL","type":"bond"}}`,
		"bad symbol":    `{"event":"subscribe","data":{"symbol":"AA PL"}}`,
		"bad payload":   `{"event":"subscribe","data":[1,2]}`,
	} {
		t.Run(name, func(t *testing.T) {
			r.Handle(c, []byte(frame))
			env := next(t, c)
			assert.Equal(t, EventError, env.Event)
			var msg ErrorMessage
			require.NoError(t, json.Unmarshal(env.Data, &msg))
			assert.NotEmpty(t, msg.Message)
		})
	}
	assert.Empty(t, c.Topics())
}
