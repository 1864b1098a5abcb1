package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"market_pulse/internal/domain"
	"market_pulse/internal/infra"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-connection outbound buffer.
const DefaultQueueSize = 64

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	QueueSize int
	Now       func() time.Time
	Metrics   *infra.Metrics
	Logger    *slog.Logger
}

// Registry tracks connected consumers and their subscriptions.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	queueSize int
	now       func() time.Time
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		conns:     make(map[string]*Connection),
		queueSize: opts.QueueSize,
		now:       opts.Now,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(slog.String("module", "stream")),
	}
}

// Connect registers a new consumer with an empty subscription set and
// queues its connection_response.
func (r *Registry) Connect() *Connection {
	c := newConnection(uuid.NewString(), r.queueSize)

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()

	r.metrics.IncrementConnections()
	r.send(c, EventConnectionResponse, ConnectionResponse{Status: "connected", ID: c.ID, Timestamp: r.now()})
	r.logger.Info("Stream consumer connected", slog.String("conn", c.ID))
	return c
}

// Disconnect removes the consumer and discards its subscriptions. It closes
// the connection's Send channel. Calling it twice is a no-op.
func (r *Registry) Disconnect(c *Connection) {
	r.mu.Lock()
	_, ok := r.conns[c.ID]
	delete(r.conns, c.ID)
	r.mu.Unlock()
	if !ok {
		return
	}

	n := c.close()
	r.metrics.DecrementConnections()
	r.metrics.AddSubscriptions(-int32(n))
	r.logger.Info("Stream consumer disconnected", slog.String("conn", c.ID), slog.Int("topics", n))
}

// Subscribe adds a topic and acknowledges it to the requester only.
// An empty type means stock.
func (r *Registry) Subscribe(c *Connection, symbol, typ string) (domain.Topic, error) {
	topic, err := parseTopic(symbol, typ)
	if err != nil {
		return domain.Topic{}, err
	}
	added, err := c.add(topic)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("connection %s: %w", c.ID, err)
	}
	if added {
		r.metrics.AddSubscriptions(1)
	}

	r.send(c, EventSubscriptionConfirmed, SubscriptionConfirmed{
		Symbol:    topic.Symbol,
		Type:      string(topic.Class),
		Timestamp: r.now(),
	})
	return topic, nil
}

// Unsubscribe removes a topic. Without a type every class of the symbol is
// removed. No confirmation is sent.
func (r *Registry) Unsubscribe(c *Connection, symbol, typ string) error {
	if strings.TrimSpace(typ) != "" {
		topic, err := parseTopic(symbol, typ)
		if err != nil {
			return err
		}
		if c.remove(topic) {
			r.metrics.AddSubscriptions(-1)
		}
		return nil
	}

	matched := false
	for _, class := range domain.Classes {
		topic, err := domain.NewTopic(class, symbol)
		if err != nil {
			continue
		}
		matched = true
		if c.remove(topic) {
			r.metrics.AddSubscriptions(-1)
		}
	}
	if !matched {
		return domain.NewInputError("symbol", symbol, domain.ErrInvalidSymbol)
	}
	return nil
}

func parseTopic(symbol, typ string) (domain.Topic, error) {
	class := domain.ClassStock
	if strings.TrimSpace(typ) != "" {
		c, err := domain.ParseAssetClass(typ)
		if err != nil {
			return domain.Topic{}, err
		}
		class = c
	}
	return domain.NewTopic(class, symbol)
}

// Handle dispatches one inbound frame. Malformed or rejected requests are
// answered with an error event to the sender.
func (r *Registry) Handle(c *Connection, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		r.sendError(c, "malformed message")
		return
	}

	var req TopicRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			r.sendError(c, "malformed "+env.Event+" payload")
			return
		}
	}

	var err error
	switch env.Event {
	case EventSubscribe:
		_, err = r.Subscribe(c, req.Symbol, req.Type)
	case EventUnsubscribe:
		err = r.Unsubscribe(c, req.Symbol, req.Type)
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
	}
	if errors.Is(err, domain.ErrConnectionClosed) {
		return
	}
	if err != nil {
		r.sendError(c, err.Error())
	}
}

func (r *Registry) sendError(c *Connection, msg string) {
	r.send(c, EventError, ErrorMessage{Message: msg})
}

func (r *Registry) send(c *Connection, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		r.logger.Error("Failed to encode stream event", slog.String("event", event), slog.Any("error", err))
		return
	}
	r.deliver(c, frame)
}

func (r *Registry) deliver(c *Connection, frame []byte) bool {
	if c.enqueue(frame) {
		return true
	}
	r.metrics.RecordDropped()
	return false
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Publish sends one event to every connected consumer. The payload is
// encoded once; slow consumers lose the frame instead of blocking others.
func (r *Registry) Publish(event string, data any) (int, error) {
	frame, err := encode(event, data)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", event, err)
	}

	delivered := 0
	for _, c := range r.snapshot() {
		if r.deliver(c, frame) {
			delivered++
		}
	}
	return delivered, nil
}

// PublishTopic sends an event only to consumers subscribed to t.
func (r *Registry) PublishTopic(t domain.Topic, event string, data any) (int, error) {
	frame, err := encode(event, data)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", event, err)
	}

	delivered := 0
	for _, c := range r.snapshot() {
		if c.Has(t) && r.deliver(c, frame) {
			delivered++
		}
	}
	return delivered, nil
}

// ActiveTopics returns every topic with at least one subscriber.
func (r *Registry) ActiveTopics() []domain.Topic {
	seen := make(map[domain.Topic]struct{})
	var out []domain.Topic
	for _, c := range r.snapshot() {
		for _, t := range c.Topics() {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

// Count returns the number of connected consumers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Get returns a connection by id.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, domain.ErrConnectionClosed)
	}
	return c, nil
}
