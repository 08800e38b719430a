package preview

import (
	"encoding/json"
	"log"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Roles a websocket may join a session as.
const (
	RoleEditor  = "editor"
	RoleSurface = "surface"
)

// allowed lists the message types each role may send.
var allowed = map[string]map[string]bool{
	RoleEditor:  {TypeInit: true, TypeUpdate: true},
	RoleSurface: {TypeReady: true, TypeBlockClick: true, TypeSectionClick: true},
}

// NewSessionID returns a fresh preview session id.
func NewSessionID() string {
	return uuid.NewString()
}

// SameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests whose Origin host matches the request host.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

type peer struct {
	role string
	conn *websocket.Conn
	done chan struct{}
	once sync.Once

	// announced is set once a surface has sent preview-ready.
	announced atomic.Bool

	mu    sync.Mutex
	queue []outbound
	wake  chan struct{}
}

// outbound is a queued envelope. Updates keep their fields unencoded so a
// later update can fold into them.
type outbound struct {
	env    Envelope
	fields map[string]json.RawMessage
}

func newPeer(role string, conn *websocket.Conn) *peer {
	return &peer{role: role, conn: conn, done: make(chan struct{}), wake: make(chan struct{}, 1)}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

// enqueue queues env for the writer. Nothing is dropped: an init replaces
// whatever is still queued, since it carries the full state, and an update
// behind another queued update is merged into it field by field. It reports
// false when a peer has sendBuffer unmergeable messages waiting.
func (p *peer) enqueue(env Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch env.Type {
	case TypeInit:
		p.queue = append(p.queue[:0], outbound{env: env})
	case TypeUpdate:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(env.Payload, &fields); err != nil || fields == nil {
			log.Printf("[Preview] Dropping update with unreadable payload: %v", err)
			return true
		}
		if n := len(p.queue); n > 0 && p.queue[n-1].fields != nil {
			maps.Copy(p.queue[n-1].fields, fields)
		} else {
			p.queue = append(p.queue, outbound{env: env, fields: fields})
		}
	default:
		if len(p.queue) >= sendBuffer {
			return false
		}
		p.queue = append(p.queue, outbound{env: env})
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// next pops the oldest queued message, encoded for the wire.
func (p *peer) next() ([]byte, bool) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, false
	}
	msg := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()

	if msg.fields != nil {
		payload, err := json.Marshal(msg.fields)
		if err != nil {
			return nil, false
		}
		msg.env.Payload = payload
	}
	data, err := json.Marshal(msg.env)
	return data, err == nil
}

type session struct {
	editor  *peer
	surface *peer
}

func (s *session) get(role string) *peer {
	if role == RoleEditor {
		return s.editor
	}
	return s.surface
}

func (s *session) set(role string, p *peer) {
	if role == RoleEditor {
		s.editor = p
	} else {
		s.surface = p
	}
}

// Hub pairs one editor and one surface websocket per session and relays
// envelopes between them in order. A message for an absent peer is dropped;
// a connected but slow surface gets its pending updates merged.
type Hub struct {
	upgrader websocket.Upgrader
	debug    bool

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHub creates a relay. debug enables per-message logging.
func NewHub(debug bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: SameOrigin},
		debug:    debug,
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades ?session=ID&role=editor|surface and relays until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	role := r.URL.Query().Get("role")
	if id == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}
	if role != RoleEditor && role != RoleSurface {
		http.Error(w, "role must be editor or surface", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Preview] Failed to upgrade connection: %v", err)
		return
	}

	p := newPeer(role, conn)
	h.join(id, p)
	if h.debug {
		log.Printf("[Preview] %s joined session %s", role, id)
	}

	go h.writeLoop(p)
	h.readLoop(id, p)

	h.leave(id, p)
	p.close()
	if h.debug {
		log.Printf("[Preview] %s left session %s", role, id)
	}
}

// Sessions returns the number of sessions with at least one peer.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	var peers []*peer
	for _, s := range h.sessions {
		if s.editor != nil {
			peers = append(peers, s.editor)
		}
		if s.surface != nil {
			peers = append(peers, s.surface)
		}
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

// join registers p, replacing and closing an earlier peer with the same role.
// An editor joining a session whose surface has already announced itself is
// told the surface is ready, since that surface will not announce again.
func (h *Hub) join(id string, p *peer) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		s = &session{}
		h.sessions[id] = s
	}
	old := s.get(p.role)
	s.set(p.role, p)
	surface := s.surface
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	if p.role == RoleEditor && surface != nil && surface.announced.Load() {
		p.enqueue(Envelope{Type: TypeReady})
		if h.debug {
			log.Printf("[Preview] Surface in session %s already ready, told new editor", id)
		}
	}
}

func (h *Hub) leave(id string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok || s.get(p.role) != p {
		return
	}
	s.set(p.role, nil)
	if s.editor == nil && s.surface == nil {
		delete(h.sessions, id)
	}
}

func (h *Hub) other(id, role string) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil
	}
	if role == RoleEditor {
		return s.surface
	}
	return s.editor
}

func (h *Hub) readLoop(id string, p *peer) {
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[Preview] Unexpected close: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("[Preview] Dropping malformed message from %s: %v", p.role, err)
			continue
		}
		if !allowed[p.role][env.Type] {
			log.Printf("[Preview] Dropping %q sent by %s", env.Type, p.role)
			continue
		}

		if env.Type == TypeReady {
			p.announced.Store(true)
		}

		dst := h.other(id, p.role)
		if dst == nil {
			if h.debug {
				log.Printf("[Preview] No peer for %q in session %s, dropped", env.Type, id)
			}
			continue
		}
		if !dst.enqueue(env) {
			log.Printf("[Preview] %s in session %s stopped reading, disconnecting", dst.role, id)
			dst.close()
		}
	}
}

func (h *Hub) writeLoop(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			data, ok := p.next()
			if !ok {
				break
			}
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if h.debug {
					log.Printf("[Preview] Write to %s failed: %v", p.role, err)
				}
				p.close()
				return
			}
		}
	}
}
