package mocks

import (
	"context"

	"github.com/NewsDiscover/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockEventProducer struct {
	mock.Mock
}

var _ domain.EventProducer = (*MockEventProducer)(nil)

func (m *MockEventProducer) PublishSearch(ctx context.Context, event domain.SearchEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}
