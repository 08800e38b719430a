package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/style"
)

// ConfigStore implements the draft/publish protocol over a Backend.
// Concurrent draft edits are last-write-wins.
type ConfigStore struct {
	backend   Backend
	seedTheme style.Theme
	debug     bool

	mu        sync.RWMutex
	listeners []func(Slot)
	published []func(*Record)
}

// Options configures a ConfigStore.
type Options struct {
	SeedTheme style.Theme // Theme written by Seed (merged over style.DefaultTheme)
	Debug     bool
}

// DraftInput is a whole-document draft write. Blocks always replaces the
// home layout (nil means an empty page). A nil Footer or Theme keeps the
// draft's current value.
type DraftInput struct {
	Blocks []storefront.Block
	Footer []storefront.Block
	Theme  *style.Theme
}

// New creates a ConfigStore.
func New(backend Backend, opts Options) *ConfigStore {
	return &ConfigStore{
		backend:   backend,
		seedTheme: style.DefaultTheme().Merge(opts.SeedTheme),
		debug:     opts.Debug,
	}
}

// Backend returns the underlying persistence layer.
func (s *ConfigStore) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *ConfigStore) Close() error {
	return s.backend.Close()
}

// OnChange registers fn to be called after a record is successfully written.
func (s *ConfigStore) OnChange(fn func(Slot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnPublish registers fn to be called with the new live record after each
// successful publish. fn runs on the publishing goroutine.
func (s *ConfigStore) OnPublish(fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, fn)
}

func (s *ConfigStore) notify(slot Slot) {
	s.mu.RLock()
	listeners := append([]func(Slot){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(slot)
	}
}

// GetLive returns the live record, seeding a fresh install on first access.
func (s *ConfigStore) GetLive(ctx context.Context) (*Record, error) {
	rec, err := s.backend.Load(ctx, Live)
	if errors.Is(err, ErrNotFound) {
		if _, err := s.Seed(ctx, false); err != nil {
			return nil, err
		}
		rec, err = s.backend.Load(ctx, Live)
	}
	if err != nil {
		return nil, fmt.Errorf("load live config: %w", err)
	}
	return rec, nil
}

// GetDraft returns the draft record. A missing draft is created as a copy
// of live rather than reported as an error.
func (s *ConfigStore) GetDraft(ctx context.Context) (*Record, error) {
	rec, err := s.backend.Load(ctx, Draft)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load draft config: %w", err)
	}

	live, err := s.GetLive(ctx)
	if err != nil {
		return nil, err
	}
	draft := live.Clone()
	draft.Slot = Draft
	draft.ID = DraftKey
	draft.Version = 1
	draft.UpdatedAt = time.Now().UTC()
	draft.UpdatedBy = config.GetOperator()
	if err := s.backend.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("bootstrap draft config: %w", err)
	}
	log.Printf("[Store] Draft bootstrapped from live (version %d)", live.Version)
	return draft, nil
}

// SaveDraft replaces the draft's block document and, when given, its footer
// and theme.
func (s *ConfigStore) SaveDraft(ctx context.Context, in DraftInput) (*Record, error) {
	draft, err := s.GetDraft(ctx)
	if err != nil {
		return nil, err
	}

	home, err := storefront.MarshalBlocks(in.Blocks)
	if err != nil {
		return nil, err
	}
	draft.HomeLayout = home

	if in.Footer != nil {
		footer, err := storefront.MarshalBlocks(in.Footer)
		if err != nil {
			return nil, err
		}
		draft.FooterLayout = footer
	}
	if in.Theme != nil {
		draft.Theme = *in.Theme
	}

	draft.Version++
	draft.UpdatedAt = time.Now().UTC()
	draft.UpdatedBy = config.GetOperator()

	if err := s.backend.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("save draft config: %w", err)
	}
	if s.debug {
		log.Printf("[Store] Draft saved: %d blocks (version %d)", len(in.Blocks), draft.Version)
	}
	s.notify(Draft)
	return draft, nil
}

// Publish copies the draft's theme and layouts onto live in one write. On
// failure live is unchanged and a *PublishError is returned.
func (s *ConfigStore) Publish(ctx context.Context) error {
	if _, err := s.GetDraft(ctx); err != nil {
		return &PublishError{Err: err}
	}
	if err := s.backend.Copy(ctx, Draft, Live, config.GetOperator()); err != nil {
		log.Printf("[Store] Publish failed: %v", err)
		return &PublishError{Err: err}
	}
	log.Printf("[Store] Draft published to live")
	s.notify(Live)
	s.announcePublish(ctx)
	return nil
}

func (s *ConfigStore) announcePublish(ctx context.Context) {
	s.mu.RLock()
	hooks := append([]func(*Record){}, s.published...)
	s.mu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	rec, err := s.backend.Load(ctx, Live)
	if err != nil {
		log.Printf("[Store] Publish succeeded but live record could not be reloaded: %v", err)
		return
	}
	for _, fn := range hooks {
		fn(rec.Clone())
	}
}

// DiscardDraft overwrites the draft with the current live content.
func (s *ConfigStore) DiscardDraft(ctx context.Context) error {
	if _, err := s.GetLive(ctx); err != nil {
		return err
	}
	if _, err := s.GetDraft(ctx); err != nil {
		return err
	}
	if err := s.backend.Copy(ctx, Live, Draft, config.GetOperator()); err != nil {
		return fmt.Errorf("discard draft: %w", err)
	}
	log.Printf("[Store] Draft discarded")
	s.notify(Draft)
	return nil
}

// Status reports whether the draft differs from live.
func (s *ConfigStore) Status(ctx context.Context) (State, error) {
	live, err := s.GetLive(ctx)
	if err != nil {
		return "", err
	}
	draft, err := s.GetDraft(ctx)
	if err != nil {
		return "", err
	}
	if SameContent(live, draft) {
		return Clean, nil
	}
	return Dirty, nil
}

// Seed writes the default records. Existing records are kept unless force
// is set. It reports whether any record was written.
func (s *ConfigStore) Seed(ctx context.Context, force bool) (bool, error) {
	wrote := false
	for _, slot := range []Slot{Live, Draft} {
		if !force {
			_, err := s.backend.Load(ctx, slot)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return wrote, fmt.Errorf("seed %s: %w", slot, err)
			}
		}

		rec, err := s.defaultRecord(slot)
		if err != nil {
			return wrote, err
		}
		if err := s.backend.Save(ctx, rec); err != nil {
			return wrote, fmt.Errorf("seed %s: %w", slot, err)
		}
		log.Printf("[Store] Seeded %s config", slot)
		wrote = true
		s.notify(slot)
	}
	return wrote, nil
}

func (s *ConfigStore) defaultRecord(slot Slot) (*Record, error) {
	home, err := storefront.MarshalBlocks(storefront.DefaultHomeLayout())
	if err != nil {
		return nil, err
	}
	footer, err := storefront.MarshalBlocks(storefront.DefaultFooterLayout())
	if err != nil {
		return nil, err
	}
	return &Record{
		Slot:         slot,
		ID:           slot.Key(),
		Theme:        s.seedTheme,
		HomeLayout:   home,
		FooterLayout: footer,
		Settings:     map[string]any{},
		Version:      1,
		UpdatedAt:    time.Now().UTC(),
		UpdatedBy:    config.GetOperator(),
	}, nil
}

// ConvertNewsletter rewrites legacy HTML newsletter blocks in the draft into
// structured newsletter blocks, optionally publishing the result.
func (s *ConfigStore) ConvertNewsletter(ctx context.Context, publish bool) (int, error) {
	draft, err := s.GetDraft(ctx)
	if err != nil {
		return 0, err
	}
	home, err := draft.HomeBlocks()
	if err != nil {
		return 0, err
	}
	footer, err := draft.FooterBlocks()
	if err != nil {
		return 0, err
	}

	home, n := storefront.ConvertNewsletterBlocks(home)
	footer, m := storefront.ConvertNewsletterBlocks(footer)
	if n+m > 0 {
		if _, err := s.SaveDraft(ctx, DraftInput{Blocks: home, Footer: footer}); err != nil {
			return 0, err
		}
	}
	if publish {
		if err := s.Publish(ctx); err != nil {
			return n + m, err
		}
	}
	return n + m, nil
}

// HomeBlocks parses the record's home layout.
func (r *Record) HomeBlocks() ([]storefront.Block, error) {
	return r.parse(r.HomeLayout, "homeLayout")
}

// FooterBlocks parses the record's footer layout. An empty footer is an
// empty block list rather than an error.
func (r *Record) FooterBlocks() ([]storefront.Block, error) {
	if r.FooterLayout == "" {
		return []storefront.Block{}, nil
	}
	return r.parse(r.FooterLayout, "footerLayout")
}

func (r *Record) parse(doc, field string) ([]storefront.Block, error) {
	blocks, err := storefront.ParseBlocks(doc)
	if err != nil {
		var pe *storefront.ParseError
		if errors.As(err, &pe) {
			pe.WithSource(r.Slot.Key() + "/" + field)
		}
		return nil, err
	}
	return blocks, nil
}
