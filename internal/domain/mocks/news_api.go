package mocks

import (
	"context"

	"github.com/NewsDiscover/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockNewsAPI struct {
	mock.Mock
}

var _ domain.NewsAPI = (*MockNewsAPI)(nil)

func (m *MockNewsAPI) SearchArticles(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
	args := m.Called(ctx, params)

	var result domain.PaginatedResult
	if args.Get(0) != nil {
		result = args.Get(0).(domain.PaginatedResult)
	}
	return result, args.Error(1)
}

func (m *MockNewsAPI) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	args := m.Called(ctx, id)

	var article domain.Article
	if args.Get(0) != nil {
		article = args.Get(0).(domain.Article)
	}
	return article, args.Error(1)
}

func (m *MockNewsAPI) SuggestCategories(ctx context.Context, prefix string) ([]domain.Category, error) {
	args := m.Called(ctx, prefix)

	var categories []domain.Category
	if args.Get(0) != nil {
		categories = args.Get(0).([]domain.Category)
	}
	return categories, args.Error(1)
}
