package preview

import (
	"context"
	"log"
	"sync"

	"github.com/livetemplate/storefront"
)

// Editor is the editing side of the bridge. It holds the initial state until
// the surface reports ready, sends it exactly once, and then forwards partial
// updates.
type Editor struct {
	ch Channel

	// sendMu orders outgoing envelopes: init is on the wire before any
	// update that observed initSent.
	sendMu sync.Mutex

	mu        sync.Mutex
	initial   *InitPayload
	ready     bool
	initSent  bool
	onBlock   func(id string)
	onSection func(name string)
}

// NewEditor attaches an editor to ch.
func NewEditor(ch Channel) *Editor {
	e := &Editor{ch: ch}
	ch.OnMessage(e.handle)
	return e
}

// SetInitial stores the full state. If the surface is already ready it is
// sent now; otherwise it waits for preview-ready.
func (e *Editor) SetInitial(ctx context.Context, init InitPayload) error {
	e.mu.Lock()
	if e.initSent {
		e.mu.Unlock()
		// A nil slice would go out as null, which surfaces read as "keep".
		if init.Blocks == nil {
			init.Blocks = []storefront.Block{}
		}
		if init.Footer == nil {
			init.Footer = []storefront.Block{}
		}
		return e.Update(ctx, UpdatePayload{
			Config: &init.Config, Blocks: &init.Blocks, Footer: &init.Footer, ActivePage: &init.ActivePage,
		})
	}
	e.initial = &init
	e.mu.Unlock()
	return e.maybeSendInit(ctx)
}

// Update sends a partial update. Before init has gone out it is merged into
// the buffered init instead, so nothing is lost and nothing is sent early.
func (e *Editor) Update(ctx context.Context, u UpdatePayload) error {
	if u.Empty() {
		return nil
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	if !e.initSent {
		base := InitPayload{}
		if e.initial != nil {
			base = *e.initial
		}
		merged := u.Apply(base)
		e.initial = &merged
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	env, err := NewEnvelope(TypeUpdate, u)
	if err != nil {
		return err
	}
	return e.ch.Send(ctx, env)
}

// OnBlockClick registers the handler for block clicks. Ids are passed
// through unchanged.
func (e *Editor) OnBlockClick(fn func(id string)) {
	e.mu.Lock()
	e.onBlock = fn
	e.mu.Unlock()
}

// OnSectionClick registers the handler for section clicks.
func (e *Editor) OnSectionClick(fn func(name string)) {
	e.mu.Lock()
	e.onSection = fn
	e.mu.Unlock()
}

// Ready reports whether preview-ready has been observed.
func (e *Editor) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// InitSent reports whether the one-time init has gone out.
func (e *Editor) InitSent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initSent
}

// Close closes the underlying channel.
func (e *Editor) Close() error {
	return e.ch.Close()
}

func (e *Editor) handle(env Envelope) {
	switch env.Type {
	case TypeReady:
		e.mu.Lock()
		e.ready = true
		e.mu.Unlock()
		if err := e.maybeSendInit(context.Background()); err != nil {
			log.Printf("[Preview] Failed to send init: %v", err)
		}
	case TypeBlockClick, TypeSectionClick:
		var click ClickPayload
		if err := env.Decode(&click); err != nil {
			log.Printf("[Preview] Ignoring click: %v", err)
			return
		}
		e.mu.Lock()
		fn := e.onBlock
		if env.Type == TypeSectionClick {
			fn = e.onSection
		}
		e.mu.Unlock()
		if fn != nil {
			fn(click.ID)
		}
	default:
		log.Printf("[Preview] Editor ignoring %q", env.Type)
	}
}

// maybeSendInit sends the buffered init when the surface is ready and init
// has not gone out yet.
func (e *Editor) maybeSendInit(ctx context.Context) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	if !e.ready || e.initSent || e.initial == nil {
		e.mu.Unlock()
		return nil
	}
	init := *e.initial
	e.initSent = true
	e.initial = nil
	e.mu.Unlock()

	env, err := NewEnvelope(TypeInit, init)
	if err != nil {
		return err
	}
	return e.ch.Send(ctx, env)
}
