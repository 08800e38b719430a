package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps records in process. It is used by tests and by
// `serve --memory` for throwaway sessions.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[Slot]*Record
	copyErr error
	saveErr error
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Slot]*Record)}
}

// FailCopy makes every following Copy return err without writing. Pass nil
// to clear.
func (b *MemoryBackend) FailCopy(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.copyErr = err
}

// FailSave makes every following Save return err without writing.
func (b *MemoryBackend) FailSave(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context, slot Slot) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	c := rec.Clone()
	c.ID = rec.Slot.Key()
	b.records[rec.Slot] = c
	return nil
}

// Copy implements Backend.
func (b *MemoryBackend) Copy(_ context.Context, from, to Slot, by string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.copyErr != nil {
		return b.copyErr
	}
	src, ok := b.records[from]
	if !ok {
		return fmt.Errorf("copy from %s: %w", from.Key(), ErrNotFound)
	}

	dst, ok := b.records[to]
	if ok {
		dst = dst.Clone()
	} else {
		dst = &Record{Slot: to, ID: to.Key(), Settings: map[string]any{}}
	}
	dst.Theme = src.Theme
	dst.HomeLayout = src.HomeLayout
	dst.FooterLayout = src.FooterLayout
	dst.Version++
	dst.UpdatedAt = time.Now().UTC()
	dst.UpdatedBy = by
	b.records[to] = dst
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	return nil
}
