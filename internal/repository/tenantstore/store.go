package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
)

const DefaultAcquireTimeout = 5 * time.Second

// Store is the tenant-scoped RepositoryFactory backed by per-tenant pools.
type Store struct {
	pools          *PoolManager
	acquireTimeout time.Duration
}

func NewStore(pools *PoolManager, acquireTimeout time.Duration) unitofwork.RepositoryFactory {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Store{
		pools:          pools,
		acquireTimeout: acquireTimeout,
	}
}

// Run leases one connection of the tenant pool and runs work in a transaction on it.
// Waiting longer than the acquire timeout for the lease yields PoolExhausted.
func (s *Store) Run(ctx context.Context, id tenant.ID, work unitofwork.Work) error {
	if !id.Valid() {
		return apperror.Validation("invalid tenant id %d", int64(id))
	}

	p, err := s.pools.Get(ctx, id)
	if err != nil {
		return err
	}

	leaseCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	leased := false
	err = p.db.WithContext(leaseCtx).Connection(func(conn *gorm.DB) error {
		leased = true
		return unitofwork.RunInTx(ctx, conn, id, work)
	})
	if err != nil && !leased {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return apperror.PoolExhausted(err, "tenant %s: no connection within %s", id, s.acquireTimeout)
		}
		return fmt.Errorf("tenant store: lease %s: %w", id, err)
	}
	return err
}
