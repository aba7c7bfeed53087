package mocks

import (
	"context"

	model "github.com/sells-group/market-validator/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockBaselineLoader is a mock type for the BaselineLoader interface.
type MockBaselineLoader struct {
	mock.Mock
}

// Load provides a mock function with given fields: ctx, targetFileID
func (_m *MockBaselineLoader) Load(ctx context.Context, targetFileID string) ([]model.BaselineItem, error) {
	ret := _m.Called(ctx, targetFileID)

	if len(ret) == 0 {
		panic("no return value specified for Load")
	}

	var r0 []model.BaselineItem
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.BaselineItem, error)); ok {
		return rf(ctx, targetFileID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) []model.BaselineItem); ok {
		r0 = rf(ctx, targetFileID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.BaselineItem)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, targetFileID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockBaselineLoader creates a new instance of MockBaselineLoader.
func NewMockBaselineLoader(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBaselineLoader {
	mock := &MockBaselineLoader{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
