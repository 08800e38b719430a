package storefront

// DefaultHomeLayout is served when the live home layout is missing or cannot
// be parsed, and is used to seed fresh installs.
func DefaultHomeLayout() []Block {
	return []Block{
		{
			ID:   "hero-main",
			Type: TypeHero,
			Content: HeroContent{
				Slides: []Slide{{
					ID:         legacySlideID,
					Title:      "Welcome to our store",
					Subtitle:   "Discover this season's favourites",
					ButtonText: "Shop now",
					ButtonLink: "/products",
				}},
			},
		},
		{
			ID:   "featured-products",
			Type: TypeProductGrid,
			Content: ProductGridContent{
				Title:          "Featured products",
				CollectionType: "featured",
				Limit:          8,
			},
		},
		{
			ID:      "shop-by-category",
			Type:    TypeCategories,
			Content: CategoriesContent{Title: "Shop by category"},
		},
		{
			ID:   "newsletter",
			Type: TypeNewsletter,
			Content: NewsletterContent{
				Title:       defaultNewsletterTitle,
				Placeholder: defaultNewsletterPlaceholder,
				ButtonText:  defaultNewsletterButton,
			},
		},
	}
}

// DefaultFooterLayout is the seed footer.
func DefaultFooterLayout() []Block {
	return []Block{
		{
			ID:   "footer-about",
			Type: TypeText,
			Content: TextContent{
				Title: "About us",
				HTML:  "<p>Thoughtfully made products, shipped with care.</p>",
			},
		},
		{
			ID:      "footer-brands",
			Type:    TypeBrands,
			Content: BrandsContent{Limit: 6},
		},
	}
}
