// Package catalog holds the read-only collaborator data that blocks reference
// by id: products, categories, brands, menus and banners.
package catalog

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/livetemplate/storefront/internal/source"
)

// Feed names looked up in the source registry.
const (
	FeedProducts   = "products"
	FeedCategories = "categories"
	FeedBrands     = "brands"
	FeedMenus      = "menus"
	FeedBanners    = "banners"
)

type Product struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Images     []string `json:"images,omitempty"`
	CategoryID string   `json:"categoryId,omitempty"`
	Featured   bool     `json:"featured,omitempty"`
}

// Image returns the first product image, or "".
func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Category struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug,omitempty"`
	Children []Category `json:"children,omitempty"`
}

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

type MenuItem struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// Menu items are kept sorted by Order.
type Menu struct {
	ID    string     `json:"id"`
	Items []MenuItem `json:"items"`
}

type Banner struct {
	ID        string `json:"id"`
	ImageURL  string `json:"imageUrl"`
	MobileURL string `json:"mobileUrl,omitempty"`
	Link      string `json:"link,omitempty"`
	Active    bool   `json:"active"`
}

// Snapshot is one consistent read of every collection.
type Snapshot struct {
	Products   []Product  `json:"products"`
	Categories []Category `json:"categories"`
	Brands     []Brand    `json:"brands"`
	Menus      []Menu     `json:"menus"`
	Banners    []Banner   `json:"banners"`
}

// Empty returns a snapshot with non-nil empty collections.
func Empty() *Snapshot {
	return &Snapshot{
		Products:   []Product{},
		Categories: []Category{},
		Brands:     []Brand{},
		Menus:      []Menu{},
		Banners:    []Banner{},
	}
}

// ActiveBanners returns the banners with Active set, in feed order.
func (s *Snapshot) ActiveBanners() []Banner {
	var out []Banner
	for _, b := range s.Banners {
		if b.Active {
			out = append(out, b)
		}
	}
	return out
}

// Menu returns the menu with the given id.
func (s *Snapshot) Menu(id string) (Menu, bool) {
	for _, m := range s.Menus {
		if m.ID == id {
			return m, true
		}
	}
	return Menu{}, false
}

// Provider builds snapshots from a feed registry.
type Provider struct {
	registry *source.Registry
}

func NewProvider(r *source.Registry) *Provider {
	return &Provider{registry: r}
}

// Snapshot fetches the five feeds. A feed that is not registered yields an
// empty collection; a feed that fails to fetch is an error.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := Empty()
	if p == nil || p.registry == nil {
		return snap, nil
	}

	fetch := func(feed string) (source.Rows, error) {
		src, ok := p.registry.Get(feed)
		if !ok {
			return nil, nil
		}
		rows, err := src.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog feed %s: %w", feed, err)
		}
		return rows, nil
	}

	rows, err := fetch(FeedProducts)
	if err != nil {
		return nil, err
	}
	snap.Products = DecodeProducts(rows)

	if rows, err = fetch(FeedCategories); err != nil {
		return nil, err
	}
	snap.Categories = DecodeCategories(rows)

	if rows, err = fetch(FeedBrands); err != nil {
		return nil, err
	}
	snap.Brands = DecodeBrands(rows)

	if rows, err = fetch(FeedMenus); err != nil {
		return nil, err
	}
	snap.Menus = DecodeMenus(rows)

	if rows, err = fetch(FeedBanners); err != nil {
		return nil, err
	}
	snap.Banners = DecodeBanners(rows)

	return snap, nil
}

// SnapshotOrEmpty logs fetch failures and falls back to an empty snapshot,
// so a broken feed degrades blocks instead of failing the page.
func (p *Provider) SnapshotOrEmpty(ctx context.Context) *Snapshot {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		log.Printf("[Catalog] %s (%v)", source.EditorMessage(err), err)
		return Empty()
	}
	return snap
}

func DecodeProducts(rows source.Rows) []Product {
	out := make([]Product, 0, len(rows))
	for _, r := range rows {
		id := str(r["id"])
		if id == "" {
			continue
		}
		out = append(out, Product{
			ID:         id,
			Name:       str(r["name"]),
			Price:      num(r["price"]),
			Images:     strs(r["images"]),
			CategoryID: first(str(r["categoryId"]), str(r["category_id"])),
			Featured:   boolean(r["featured"]),
		})
	}
	return out
}

func DecodeCategories(rows source.Rows) []Category {
	out := make([]Category, 0, len(rows))
	for _, r := range rows {
		if c, ok := category(r); ok {
			out = append(out, c)
		}
	}
	return out
}

func category(v any) (Category, bool) {
	switch t := v.(type) {
	case string:
		return Category{ID: t}, t != ""
	case map[string]any:
		c := Category{ID: str(t["id"]), Name: str(t["name"]), Slug: str(t["slug"])}
		if c.ID == "" {
			return Category{}, false
		}
		if kids, ok := t["children"].([]any); ok {
			for _, k := range kids {
				if child, ok := category(k); ok {
					c.Children = append(c.Children, child)
				}
			}
		}
		return c, true
	}
	return Category{}, false
}

func DecodeBrands(rows source.Rows) []Brand {
	out := make([]Brand, 0, len(rows))
	for _, r := range rows {
		id := str(r["id"])
		if id == "" {
			continue
		}
		out = append(out, Brand{ID: id, Name: str(r["name"]), Logo: str(r["logo"])})
	}
	return out
}

func DecodeMenus(rows source.Rows) []Menu {
	out := make([]Menu, 0, len(rows))
	for _, r := range rows {
		id := str(r["id"])
		if id == "" {
			continue
		}
		m := Menu{ID: id, Items: []MenuItem{}}
		items, _ := r["items"].([]any)
		for _, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				continue
			}
			m.Items = append(m.Items, MenuItem{
				Label: str(obj["label"]),
				URL:   str(obj["url"]),
				Order: int(num(obj["order"])),
			})
		}
		sort.SliceStable(m.Items, func(i, j int) bool { return m.Items[i].Order < m.Items[j].Order })
		out = append(out, m)
	}
	return out
}

func DecodeBanners(rows source.Rows) []Banner {
	out := make([]Banner, 0, len(rows))
	for _, r := range rows {
		id := str(r["id"])
		if id == "" {
			continue
		}
		active := true
		if v, ok := r["active"]; ok {
			active = boolean(v)
		}
		out = append(out, Banner{
			ID:        id,
			ImageURL:  first(str(r["imageUrl"]), str(r["image_url"])),
			MobileURL: first(str(r["mobileUrl"]), str(r["mobile_url"])),
			Link:      str(r["link"]),
			Active:    active,
		})
	}
	return out
}
