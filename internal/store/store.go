// Package store persists the two storefront configuration records (live and
// draft) and implements the publish/discard transitions between them.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/livetemplate/storefront/internal/style"
)

// Slot addresses one of the two configuration singletons.
type Slot int

const (
	Live Slot = iota
	Draft
)

// Storage keys for the two records. Every backend addresses records by these.
const (
	LiveKey  = "store-config"
	DraftKey = "store-config-draft"
)

// Key returns the storage identifier of the slot.
func (s Slot) Key() string {
	if s == Draft {
		return DraftKey
	}
	return LiveKey
}

func (s Slot) String() string {
	if s == Draft {
		return "draft"
	}
	return "live"
}

// ParseSlot accepts "live", "draft" or a storage key.
func ParseSlot(v string) (Slot, error) {
	switch v {
	case "live", LiveKey:
		return Live, nil
	case "draft", DraftKey:
		return Draft, nil
	}
	return Live, fmt.Errorf("unknown config slot %q", v)
}

// Record is one configuration record. HomeLayout and FooterLayout hold
// serialized block arrays; Settings carries business settings that the page
// builder stores but never interprets or copies.
type Record struct {
	Slot         Slot           `json:"-"`
	ID           string         `json:"id"`
	Theme        style.Theme    `json:"theme"`
	HomeLayout   string         `json:"homeLayout"`
	FooterLayout string         `json:"footerLayout"`
	Settings     map[string]any `json:"settings,omitempty"`
	Version      int64          `json:"version"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	UpdatedBy    string         `json:"updatedBy,omitempty"`
}

// Clone returns a deep-enough copy for handing records across goroutines.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Settings != nil {
		c.Settings = make(map[string]any, len(r.Settings))
		for k, v := range r.Settings {
			c.Settings[k] = v
		}
	}
	return &c
}

// SameContent reports whether two records carry the same builder content
// (theme and both layouts).
func SameContent(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.HomeLayout == b.HomeLayout &&
		a.FooterLayout == b.FooterLayout &&
		reflect.DeepEqual(a.Theme, b.Theme)
}

// Backend is the persistence layer behind ConfigStore.
type Backend interface {
	// Load returns the record in slot, or ErrNotFound.
	Load(ctx context.Context, slot Slot) (*Record, error)

	// Save replaces the whole record in rec.Slot, creating it if needed.
	Save(ctx context.Context, rec *Record) error

	// Copy overwrites the builder fields of `to` with those of `from` as one
	// atomic write. On error `to` is left exactly as it was.
	Copy(ctx context.Context, from, to Slot, by string) error

	Close() error
}

var (
	// ErrNotFound is returned by Backend.Load for a missing record.
	ErrNotFound = errors.New("config record not found")

	// ErrPublishFailed matches every *PublishError.
	ErrPublishFailed = errors.New("publish failed")
)

// PublishError reports a failed publish. The live record is unchanged and
// the operation can be retried.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed, live config unchanged: %v", e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPublishFailed) match.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailed
}

// Retryable is always true: publish copies whatever the draft holds.
func (e *PublishError) Retryable() bool {
	return true
}

// State is the editing state of the draft relative to live.
type State string

const (
	Clean State = "clean"
	Dirty State = "dirty"
)
