// Package mocks provides test doubles for the dataset package.
package mocks

import (
	"context"

	model "github.com/sells-group/market-validator/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockUpdater is a mock type for the Updater interface.
type MockUpdater struct {
	mock.Mock
}

// Apply provides a mock function with given fields: ctx, targetFileID, batch
func (_m *MockUpdater) Apply(ctx context.Context, targetFileID string, batch []model.Discrepancy) ([]model.AppliedChange, error) {
	ret := _m.Called(ctx, targetFileID, batch)

	if len(ret) == 0 {
		panic("no return value specified for Apply")
	}

	var r0 []model.AppliedChange
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []model.Discrepancy) ([]model.AppliedChange, error)); ok {
		return rf(ctx, targetFileID, batch)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, []model.Discrepancy) []model.AppliedChange); ok {
		r0 = rf(ctx, targetFileID, batch)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.AppliedChange)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, []model.Discrepancy) error); ok {
		r1 = rf(ctx, targetFileID, batch)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockUpdater creates a new instance of MockUpdater.
func NewMockUpdater(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUpdater {
	mock := &MockUpdater{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
