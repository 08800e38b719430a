// Package preview carries page-builder state between the editor and an
// isolated render surface. Both ends exchange Envelopes over a Channel; the
// Hub relays them between browser windows over websockets.
package preview

import (
	"encoding/json"
	"fmt"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/style"
)

// Message types.
const (
	TypeReady        = "preview-ready"
	TypeInit         = "preview-init"
	TypeUpdate       = "preview-update"
	TypeBlockClick   = "preview-block-click"
	TypeSectionClick = "preview-section-click"
)

// Envelope is the wire unit of the bridge.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type. A nil
// payload leaves Payload empty.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}

// InitPayload is the full state sent once after the surface is ready.
type InitPayload struct {
	Config     style.Theme        `json:"config"`
	Blocks     []storefront.Block `json:"blocks"`
	Footer     []storefront.Block `json:"footer"`
	ActivePage string             `json:"activePage,omitempty"`
	Products   []catalog.Product  `json:"products"`
	Categories []catalog.Category `json:"categories"`
	Brands     []catalog.Brand    `json:"brands"`
	Menus      []catalog.Menu     `json:"menus"`
	Banners    []catalog.Banner   `json:"banners"`
}

// UpdatePayload carries only the fields that changed. Nil means "keep".
type UpdatePayload struct {
	Config     *style.Theme        `json:"config,omitempty"`
	Blocks     *[]storefront.Block `json:"blocks,omitempty"`
	Footer     *[]storefront.Block `json:"footer,omitempty"`
	ActivePage *string             `json:"activePage,omitempty"`
}

// Empty reports whether u changes nothing.
func (u UpdatePayload) Empty() bool {
	return u.Config == nil && u.Blocks == nil && u.Footer == nil && u.ActivePage == nil
}

// Merge overlays the set fields of next onto u; next wins.
func (u UpdatePayload) Merge(next UpdatePayload) UpdatePayload {
	if next.Config != nil {
		u.Config = next.Config
	}
	if next.Blocks != nil {
		u.Blocks = next.Blocks
	}
	if next.Footer != nil {
		u.Footer = next.Footer
	}
	if next.ActivePage != nil {
		u.ActivePage = next.ActivePage
	}
	return u
}

// Apply overlays the set fields of u onto init. Collaborator data is kept.
func (u UpdatePayload) Apply(init InitPayload) InitPayload {
	if u.Config != nil {
		init.Config = *u.Config
	}
	if u.Blocks != nil {
		init.Blocks = *u.Blocks
	}
	if u.Footer != nil {
		init.Footer = *u.Footer
	}
	if u.ActivePage != nil {
		init.ActivePage = *u.ActivePage
	}
	return init
}

// ClickPayload identifies a clicked block (by id) or section (by name).
type ClickPayload struct {
	ID string `json:"id"`
}
