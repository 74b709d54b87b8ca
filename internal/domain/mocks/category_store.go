package mocks

import (
	"context"

	"github.com/NewsDiscover/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockCategoryURIStore struct {
	mock.Mock
}

var _ domain.CategoryURIStore = (*MockCategoryURIStore)(nil)

func (m *MockCategoryURIStore) LoadAll(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockCategoryURIStore) Save(ctx context.Context, categoryID, uri string) error {
	args := m.Called(ctx, categoryID, uri)
	return args.Error(0)
}
