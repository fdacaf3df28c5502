package storage

import (
	"context"
)

// MemoryDSN selects the in-process store
const MemoryDSN = "memory"

// Open returns the store selected by dsn
func Open(ctx context.Context, dsn string, pool PoolOptions) (Store, error) {
	if dsn == MemoryDSN {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, dsn, pool)
}
