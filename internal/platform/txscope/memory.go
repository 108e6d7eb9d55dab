package txscope

import (
	"context"
	"sync"
	"time"

	dErrors "projectdesk/pkg/domain-errors"
)

// numShards spreads per-entity locks so unrelated mutations do not contend.
const numShards = 128

// InMemory serializes transactions per entity key with sharded mutexes and undoes
// store writes on failure. In-memory stores register their compensations with
// OnRollback while they mutate.
type InMemory struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewInMemory(timeout time.Duration) *InMemory {
	return &InMemory{timeout: timeout}
}

type journalKey struct{}

type journal struct {
	undo []func()
}

// OnRollback registers a compensation for a write made inside an in-memory
// transaction. Outside a transaction it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

func (t *InMemory) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	ctx, cancel, err := begin(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	shard := &t.shards[hashKey(key)%numShards]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: timed out waiting for lock")
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}

// hashKey uses FNV-1a for an even shard distribution.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
