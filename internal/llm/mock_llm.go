package llm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"genai-demos/internal/models"
)

// MockCompleter is a mock implementation of Completer using testify/mock.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, d models.Descriptor, req Request) (string, error) {
	args := m.Called(ctx, d, req)
	return args.String(0), args.Error(1)
}
