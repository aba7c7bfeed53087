// Package notify tells the outside world about finished validation sessions.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/sells-group/market-validator/internal/model"
)

// Notifier receives every finished session snapshot.
type Notifier interface {
	SessionFinished(ctx context.Context, snap model.SessionSnapshot) error
}

// Multi fans a session out to several notifiers. Every notifier is called
// even when an earlier one fails; the failures are combined.
type Multi []Notifier

// SessionFinished calls each notifier in order.
func (m Multi) SessionFinished(ctx context.Context, snap model.SessionSnapshot) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SessionFinished(ctx, snap))
	}
	return err
}
