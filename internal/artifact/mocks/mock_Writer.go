// Package mocks provides test doubles for the artifact package.
package mocks

import (
	"context"

	artifact "github.com/sells-group/market-validator/internal/artifact"
	mock "github.com/stretchr/testify/mock"
)

// MockWriter is a mock type for the Writer interface.
type MockWriter struct {
	mock.Mock
}

// Prepare provides a mock function with given fields: ctx, date
func (_m *MockWriter) Prepare(ctx context.Context, date string) (string, error) {
	ret := _m.Called(ctx, date)

	if len(ret) == 0 {
		panic("no return value specified for Prepare")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, date)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) string); ok {
		r0 = rf(ctx, date)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, date)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Write provides a mock function with given fields: ctx, date, a
func (_m *MockWriter) Write(ctx context.Context, date string, a artifact.Artifacts) (artifact.Paths, error) {
	ret := _m.Called(ctx, date, a)

	if len(ret) == 0 {
		panic("no return value specified for Write")
	}

	var r0 artifact.Paths
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, artifact.Artifacts) (artifact.Paths, error)); ok {
		return rf(ctx, date, a)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, artifact.Artifacts) artifact.Paths); ok {
		r0 = rf(ctx, date, a)
	} else {
		r0 = ret.Get(0).(artifact.Paths)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, artifact.Artifacts) error); ok {
		r1 = rf(ctx, date, a)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockWriter creates a new instance of MockWriter.
func NewMockWriter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWriter {
	mock := &MockWriter{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
