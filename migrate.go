package storefront

// DefaultAutoplayInterval is the carousel interval in milliseconds used when
// a hero leaves autoplayInterval unset.
const DefaultAutoplayInterval = 5000

// legacySlideID is the id given to the single slide produced from a legacy hero.
const legacySlideID = "slide-1"

// MigrateLegacyShape upgrades a block whose content predates the current
// shape. It is pure and idempotent: the input is never modified and migrating
// an already-current block returns it unchanged.
func MigrateLegacyShape(b Block) Block {
	switch c := b.Content.(type) {
	case HeroContent:
		if !c.IsLegacy() {
			return b
		}
		b.Content = HeroContent{
			Slides: []Slide{{
				ID:         legacySlideID,
				Title:      c.Title,
				Subtitle:   c.Subtitle,
				ButtonText: c.ButtonText,
				ButtonLink: c.ButtonLink,
				Image:      c.Image,
			}},
			Autoplay:         false,
			AutoplayInterval: c.AutoplayInterval,
			Height:           c.Height,
		}
	case ColumnsContent:
		if len(c.Columns) == 0 {
			return b
		}
		cols := make([][]Block, len(c.Columns))
		for i, col := range c.Columns {
			cols[i] = MigrateBlocks(col)
		}
		b.Content = ColumnsContent{Columns: cols, Gap: c.Gap}
	}
	return b
}

// MigrateBlocks applies MigrateLegacyShape to every block, returning a new slice.
func MigrateBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = MigrateLegacyShape(b)
	}
	return out
}
