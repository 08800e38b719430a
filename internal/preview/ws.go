package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// ErrClosed is returned by Send on a closed websocket channel.
var ErrClosed = errors.New("preview channel closed")

// WSChannel is a Channel over a gorilla websocket connection. One goroutine
// writes and one reads; Send only enqueues. Messages that arrive before the
// first OnMessage are held for it, up to sendBuffer of them, since the relay
// may answer as soon as the socket opens.
type WSChannel struct {
	conn *websocket.Conn
	out  chan []byte

	// deliverMu keeps held and live messages in arrival order.
	deliverMu sync.Mutex
	mu        sync.Mutex
	handler   func(Envelope)
	early     []Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSChannel starts the read and write loops on conn.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{
		conn: conn,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// DialEditor joins a preview session as the editor. rawURL is the relay
// endpoint, e.g. ws://host/admin/preview/ws?session=ID; role is set here.
func DialEditor(ctx context.Context, rawURL string) (*WSChannel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid preview url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	if q.Get("session") == "" {
		return nil, fmt.Errorf("preview url %q has no session", rawURL)
	}
	q.Set("role", RoleEditor)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial preview relay: %w", err)
	}
	return NewWSChannel(conn), nil
}

func (c *WSChannel) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSChannel) OnMessage(fn func(Envelope)) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.handler = fn
	held := c.early
	c.early = nil
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for _, env := range held {
		fn(env)
	}
}

func (c *WSChannel) deliver(env Envelope) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	fn := c.handler
	if fn == nil && len(c.early) < sendBuffer {
		c.early = append(c.early, env)
	}
	c.mu.Unlock()

	if fn != nil {
		fn(env)
	}
}

// Done is closed when the connection ends.
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[Preview] Write failed: %v", err)
				c.Close()
				return
			}
		}
	}
}

func (c *WSChannel) readLoop() {
	defer c.Close()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[Preview] Unexpected close: %v", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("[Preview] Dropping malformed message: %v", err)
			continue
		}
		c.deliver(env)
	}
}
