// Package mocks provides test doubles for the fetcher package.
package mocks

import (
	"context"

	model "github.com/sells-group/market-validator/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockFetcher is a mock type for the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, source, ticker
func (_m *MockFetcher) Fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error) {
	ret := _m.Called(ctx, source, ticker)

	if len(ret) == 0 {
		panic("no return value specified for Fetch")
	}

	var r0 map[string]any
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.DataSource, string) (map[string]any, error)); ok {
		return rf(ctx, source, ticker)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.DataSource, string) map[string]any); ok {
		r0 = rf(ctx, source, ticker)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(map[string]any)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.DataSource, string) error); ok {
		r1 = rf(ctx, source, ticker)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockFetcher creates a new instance of MockFetcher.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	mock := &MockFetcher{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
