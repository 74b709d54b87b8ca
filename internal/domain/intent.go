package domain

import "strings"

// SearchIntent is the user's current desired query. It is a value object:
// two intents are equal when all their fields are equal.
type SearchIntent struct {
	Keyword    string `json:"keyword"`
	CategoryID string `json:"category"`
	Page       int    `json:"page"`
}

// DefaultIntent is the intent of a freshly opened search view.
func DefaultIntent() SearchIntent {
	return SearchIntent{CategoryID: AllCategories, Page: 1}
}

// Normalize trims the keyword, canonicalizes the category id and clamps
// the page to at least 1.
func (i SearchIntent) Normalize() SearchIntent {
	i.Keyword = strings.TrimSpace(i.Keyword)
	i.CategoryID = NormalizeCategoryID(i.CategoryID)
	if i.Page < 1 {
		i.Page = 1
	}
	return i
}

// WithKeyword returns a copy with a new keyword; the page goes back to 1.
func (i SearchIntent) WithKeyword(keyword string) SearchIntent {
	i.Keyword = strings.TrimSpace(keyword)
	i.Page = 1
	return i
}

// WithCategory returns a copy with a new category; the page goes back to 1.
func (i SearchIntent) WithCategory(categoryID string) SearchIntent {
	i.CategoryID = NormalizeCategoryID(categoryID)
	i.Page = 1
	return i
}

// WithPage returns a copy on another page. Keyword and category are kept.
func (i SearchIntent) WithPage(page int) SearchIntent {
	if page < 1 {
		page = 1
	}
	i.Page = page
	return i
}
