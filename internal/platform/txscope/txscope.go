// Package txscope provides the transactional boundary around a mutation.
//
// A mutation reads its before-state, writes the change and appends its audit entry
// inside one RunInTx call, so all three commit or roll back together. Once a scope
// has started it is not interruptible by the caller: cancellation of the parent
// context is detached and only the scope's own timeout applies.
package txscope

import (
	"context"
	"time"

	dErrors "projectdesk/pkg/domain-errors"
)

// DefaultTimeout bounds a single transaction.
const DefaultTimeout = 5 * time.Second

// Scope runs fn inside a transaction. key identifies the entity being mutated and
// is used by implementations that serialize per entity. A nested call joins the
// surrounding transaction.
type Scope interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// begin rejects an already-cancelled caller and returns a context that outlives the
// caller's cancellation but not the scope's timeout.
func begin(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	return detached, cancel, nil
}
