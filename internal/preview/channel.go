package preview

import (
	"context"
	"sync"
)

// Channel is one end of the bridge. Messages are delivered in send order.
// A message sent while the other end has no handler is dropped.
type Channel interface {
	Send(ctx context.Context, env Envelope) error
	OnMessage(fn func(Envelope))
	Close() error
}

// memoryEndpoint queues incoming envelopes and drains them on a single
// goroutine, so handlers run in order and may send from inside a handler.
type memoryEndpoint struct {
	mu       sync.Mutex
	handler  func(Envelope)
	peer     *memoryEndpoint
	closed   bool
	queue    []Envelope
	draining bool
}

// NewMemoryPair returns two connected in-process endpoints.
func NewMemoryPair() (Channel, Channel) {
	a, b := &memoryEndpoint{}, &memoryEndpoint{}
	a.peer, b.peer = b, a
	return a, b
}

func (m *memoryEndpoint) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil
	}
	m.peer.receive(env)
	return nil
}

func (m *memoryEndpoint) receive(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.handler == nil {
		return
	}
	m.queue = append(m.queue, env)
	if !m.draining {
		m.draining = true
		go m.drain()
	}
}

func (m *memoryEndpoint) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 || m.closed {
			m.queue = nil
			m.draining = false
			m.mu.Unlock()
			return
		}
		env := m.queue[0]
		m.queue = m.queue[1:]
		fn := m.handler
		m.mu.Unlock()

		fn(env)
	}
}

func (m *memoryEndpoint) OnMessage(fn func(Envelope)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

func (m *memoryEndpoint) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
