// Package dataset stores the validated market data as one JSON document per
// target file id and applies confirmed update batches to it.
package dataset

import (
	"context"
	"fmt"

	"github.com/sells-group/market-validator/internal/model"
)

// BaselineLoader returns the stored items of a target file, in file order.
type BaselineLoader interface {
	Load(ctx context.Context, targetFileID string) ([]model.BaselineItem, error)
}

// Updater applies a batch of update discrepancies to a target file and
// declares the changes it actually made.
type Updater interface {
	Apply(ctx context.Context, targetFileID string, batch []model.Discrepancy) ([]model.AppliedChange, error)
}

// UpdateError is returned when a batch could not be applied. Nothing from the
// batch is considered applied.
type UpdateError struct {
	TargetFileID string
	Err          error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update %s: %v", e.TargetFileID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }
