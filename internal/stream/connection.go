package stream

import (
	"sort"
	"sync"

	"market_pulse/internal/domain"
)

// Connection is one connected consumer. The transport reads outbound frames
// from Send and hands inbound frames to Registry.Handle.
type Connection struct {
	ID string

	send chan []byte

	mu     sync.Mutex
	topics map[domain.Topic]struct{}
	closed bool
}

func newConnection(id string, queueSize int) *Connection {
	return &Connection{
		ID:     id,
		send:   make(chan []byte, queueSize),
		topics: make(map[domain.Topic]struct{}),
	}
}

// Send is closed when the connection is removed from the registry.
func (c *Connection) Send() <-chan []byte {
	return c.send
}

// enqueue queues a frame without blocking. It reports false if the frame
// was dropped because the queue is full or the connection is closed.
func (c *Connection) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default: // DROP
		return false
	}
}

func (c *Connection) close() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	c.closed = true
	close(c.send)
	n := len(c.topics)
	c.topics = nil
	return n
}

// add reports whether the topic was new. It fails once the connection is closed.
func (c *Connection) add(t domain.Topic) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, domain.ErrConnectionClosed
	}
	if _, ok := c.topics[t]; ok {
		return false, nil
	}
	c.topics[t] = struct{}{}
	return true, nil
}

// remove reports whether the topic was present.
func (c *Connection) remove(t domain.Topic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[t]; !ok {
		return false
	}
	delete(c.topics, t)
	return true
}

// Has reports whether the connection follows t.
func (c *Connection) Has(t domain.Topic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[t]
	return ok
}

// Topics returns the subscription set sorted by class then symbol.
func (c *Connection) Topics() []domain.Topic {
	c.mu.Lock()
	out := make([]domain.Topic, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
