package domain

import "strings"

// AllCategories is the category id meaning "no category filter".
const AllCategories = "all"

// legacyAllCategories is accepted on input for addresses written by older clients.
const legacyAllCategories = "general"

// Category maps an internal category id to the provider's topic URI.
// ProviderURI is only authoritative after a successful lookup; FallbackURI
// is the statically configured advisory value.
type Category struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	ProviderURI string `json:"provider_uri,omitempty"`
	FallbackURI string `json:"fallback_uri,omitempty"`
}

// Catalog is the ordered list of categories a user can pick from.
type Catalog []Category

// DefaultCatalog mirrors the categories offered by the discover page.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: AllCategories, Label: "All"},
		{ID: "business", Label: "Business", FallbackURI: "dmoz/Business"},
		{ID: "technology", Label: "Technology", FallbackURI: "dmoz/Computers"},
		{ID: "entertainment", Label: "Entertainment", FallbackURI: "dmoz/Arts/Entertainment"},
		{ID: "health", Label: "Health", FallbackURI: "dmoz/Health"},
		{ID: "science", Label: "Science", FallbackURI: "dmoz/Science"},
		{ID: "sports", Label: "Sports", FallbackURI: "dmoz/Sports"},
		{ID: "politics", Label: "Politics", FallbackURI: "dmoz/Society/Politics"},
	}
}

// Lookup returns the category with the given id.
func (c Catalog) Lookup(id string) (Category, bool) {
	id = NormalizeCategoryID(id)
	for _, cat := range c {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// NormalizeCategoryID lower-cases the id and maps the empty and legacy
// values to AllCategories.
func NormalizeCategoryID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == legacyAllCategories {
		return AllCategories
	}
	return id
}
