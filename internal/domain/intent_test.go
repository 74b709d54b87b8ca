package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchIntent_Normalize(t *testing.T) {
	got := SearchIntent{Keyword: "  election ", CategoryID: "General", Page: 0}.Normalize()
	assert.Equal(t, SearchIntent{Keyword: "election", CategoryID: AllCategories, Page: 1}, got)
}

func TestSearchIntent_KeywordAndCategoryResetPage(t *testing.T) {
	base := SearchIntent{Keyword: "election", CategoryID: "politics", Page: 4}

	assert.Equal(t, 1, base.WithKeyword("elections").Page)
	assert.Equal(t, 1, base.WithCategory("business").Page)

	paged := base.WithPage(7)
	assert.Equal(t, "election", paged.Keyword)
	assert.Equal(t, "politics", paged.CategoryID)
	assert.Equal(t, 7, paged.Page)
	assert.Equal(t, 1, base.WithPage(-3).Page)
}

func TestCatalog_Lookup(t *testing.T) {
	catalog := DefaultCatalog()

	tech, ok := catalog.Lookup("Technology")
	assert.True(t, ok)
	assert.Equal(t, "dmoz/Computers", tech.FallbackURI)

	all, ok := catalog.Lookup("")
	assert.True(t, ok)
	assert.Equal(t, AllCategories, all.ID)

	_, ok = catalog.Lookup("astrology")
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&NetworkError{Op: "search", Err: assert.AnError}))
	assert.False(t, IsRetryable(&APIError{StatusCode: 500, Message: "boom"}))
	assert.False(t, IsRetryable(&MalformedResponseError{Reason: "bad"}))
	assert.False(t, IsRetryable(nil))
}
