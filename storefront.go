// Package storefront provides the core page-builder document model: the closed
// set of block types, their content shapes, and the parse/migrate rules that let
// stored block documents evolve without breaking the storefront.
package storefront

import (
	"fmt"

	"github.com/google/uuid"
)

// Version is the storefront build version reported by the CLI.
const Version = "0.1.0-dev"

// NewBlockID returns a fresh block id prefixed with the block type,
// e.g. "hero-1a2b3c4d".
func NewBlockID(t BlockType) string {
	return fmt.Sprintf("%s-%s", t, uuid.NewString()[:8])
}

// FindBlock returns the block with the given id, searching nested columns.
func FindBlock(blocks []Block, id string) (Block, bool) {
	for _, b := range blocks {
		if b.ID == id {
			return b, true
		}
		if cols, ok := b.Content.(ColumnsContent); ok {
			for _, col := range cols.Columns {
				if found, ok := FindBlock(col, id); ok {
					return found, true
				}
			}
		}
	}
	return Block{}, false
}
