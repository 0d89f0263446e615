package prompts

import "github.com/stretchr/testify/mock"

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) EnsureCategory(category, body string) error {
	args := m.Called(category, body)
	return args.Error(0)
}

func (m *MockStore) List(category string) ([]string, error) {
	args := m.Called(category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Load(category, name string) (string, error) {
	args := m.Called(category, name)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Save(category, name, body string) error {
	args := m.Called(category, name, body)
	return args.Error(0)
}

func (m *MockStore) SaveAs(category, name, body string) error {
	args := m.Called(category, name, body)
	return args.Error(0)
}
