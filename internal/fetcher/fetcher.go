package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/resilience"
)

// Fetcher supplies the current raw field values of one ticker of a source.
// Keys are the source's native field names; values are strings or numbers.
type Fetcher interface {
	Fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error)
}

// FetchError wraps any failure to obtain data for a (source, ticker) pair.
type FetchError struct {
	Source model.SourceID
	Ticker string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Source, e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the underlying failure is worth retrying soon.
func (e *FetchError) Transient() bool {
	return resilience.IsTransient(e.Err)
}

func fetchErr(source model.DataSource, ticker string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Source: source.ID, Ticker: ticker, Err: err}
}
