package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"relay-service/internal/observability"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

var _ observability.Publisher = (*PublisherMock)(nil)
