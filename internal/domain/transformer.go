package domain

// Normalizer maps raw provider payloads onto the stable domain shapes.
type Normalizer interface {
	NormalizeArticleList(raw []byte) (PaginatedResult, error)
	NormalizeArticleEnvelope(raw []byte, id string) (Article, error)
	NormalizeCategorySuggestions(raw []byte) ([]Category, error)
}
