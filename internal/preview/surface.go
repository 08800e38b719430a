package preview

import (
	"context"
	"log"
	"sync"
)

// State is what the render surface currently displays.
type State struct {
	InitPayload
	Initialized bool
}

func (s State) clone() State {
	c := s
	c.Blocks = append(c.Blocks[:0:0], s.Blocks...)
	c.Footer = append(c.Footer[:0:0], s.Footer...)
	c.Products = append(c.Products[:0:0], s.Products...)
	c.Categories = append(c.Categories[:0:0], s.Categories...)
	c.Brands = append(c.Brands[:0:0], s.Brands...)
	c.Menus = append(c.Menus[:0:0], s.Menus...)
	c.Banners = append(c.Banners[:0:0], s.Banners...)
	return c
}

// Surface is the render side of the bridge. It announces readiness once,
// applies init and updates, and reports clicks back to the editor.
type Surface struct {
	ch      Channel
	onState func(State)

	mu      sync.Mutex
	state   State
	mounted bool
}

// NewSurface attaches a surface to ch. onState, if set, is called with a copy
// of the state after every init or update.
func NewSurface(ch Channel, onState func(State)) *Surface {
	s := &Surface{ch: ch, onState: onState}
	ch.OnMessage(s.handle)
	return s
}

// Mount sends preview-ready. Later calls do nothing.
func (s *Surface) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.mu.Unlock()

	return s.ch.Send(ctx, Envelope{Type: TypeReady})
}

// ClickBlock reports a click on the block with the given id.
func (s *Surface) ClickBlock(ctx context.Context, id string) error {
	return s.click(ctx, TypeBlockClick, id)
}

// ClickSection reports a click on a page section such as "header" or "footer".
func (s *Surface) ClickSection(ctx context.Context, name string) error {
	return s.click(ctx, TypeSectionClick, name)
}

func (s *Surface) click(ctx context.Context, typ, id string) error {
	env, err := NewEnvelope(typ, ClickPayload{ID: id})
	if err != nil {
		return err
	}
	return s.ch.Send(ctx, env)
}

// State returns a copy of the current state.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Close closes the underlying channel.
func (s *Surface) Close() error {
	return s.ch.Close()
}

func (s *Surface) handle(env Envelope) {
	s.mu.Lock()
	switch env.Type {
	case TypeInit:
		var init InitPayload
		if err := env.Decode(&init); err != nil {
			s.mu.Unlock()
			log.Printf("[Preview] Bad init: %v", err)
			return
		}
		s.state = State{InitPayload: init, Initialized: true}
	case TypeUpdate:
		var u UpdatePayload
		if err := env.Decode(&u); err != nil {
			s.mu.Unlock()
			log.Printf("[Preview] Bad update: %v", err)
			return
		}
		s.state.InitPayload = u.Apply(s.state.InitPayload)
	default:
		s.mu.Unlock()
		log.Printf("[Preview] Surface ignoring %q", env.Type)
		return
	}
	snapshot := s.state.clone()
	s.mu.Unlock()

	if s.onState != nil {
		s.onState(snapshot)
	}
}
