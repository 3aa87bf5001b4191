package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"voice2note-be/internal/model"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const DefaultTenantPoolSize = 5

// tenantPool is the pgx pool of one tenant plus the gorm handle layered on it.
type tenantPool struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	db    *gorm.DB
}

func (p *tenantPool) close() {
	_ = p.sqlDB.Close()
	p.pool.Close()
}

// PoolManager maps tenant ids to lazily opened, bounded connection pools. Every
// connection of a tenant pool runs as the tenant role with the tenant schema on its
// search path, so a query can only reach tables the role was granted.
type PoolManager struct {
	mu       sync.RWMutex
	pools    map[tenant.ID]*tenantPool
	group    singleflight.Group
	mgmt     *gorm.DB
	dsn      string
	maxConns int32
	logger   logger.ILogger
}

func NewPoolManager(mgmt *gorm.DB, dsn string, maxConns int, log logger.ILogger) *PoolManager {
	if maxConns <= 0 {
		maxConns = DefaultTenantPoolSize
	}
	return &PoolManager{
		pools:    make(map[tenant.ID]*tenantPool),
		mgmt:     mgmt,
		dsn:      dsn,
		maxConns: int32(maxConns),
		logger:   log,
	}
}

// Get returns the tenant pool, opening it on first use. Unregistered tenants get a
// NotFound error and no pool.
func (pm *PoolManager) Get(ctx context.Context, id tenant.ID) (*tenantPool, error) {
	pm.mu.RLock()
	p, ok := pm.pools[id]
	pm.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := pm.group.Do(id.String(), func() (interface{}, error) {
		pm.mu.RLock()
		existing, ok := pm.pools[id]
		pm.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := pm.open(ctx, id)
		if err != nil {
			return nil, err
		}

		pm.mu.Lock()
		pm.pools[id] = created
		pm.mu.Unlock()

		pm.logger.Info("TENANT_STORE", "Opened tenant pool", map[string]interface{}{
			"tenant":    id.String(),
			"max_conns": pm.maxConns,
		})
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tenantPool), nil
}

func (pm *PoolManager) registered(ctx context.Context, id tenant.ID) (bool, error) {
	var count int64
	err := pm.mgmt.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("tenant_id = ?", int64(id)).
		Count(&count).Error
	return count > 0, err
}

func (pm *PoolManager) open(ctx context.Context, id tenant.ID) (*tenantPool, error) {
	ok, err := pm.registered(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("tenant store: lookup %s: %w", id, err)
	}
	if !ok {
		return nil, apperror.NotFound("unknown tenant %s", id)
	}

	cfg, err := pgxpool.ParseConfig(pm.dsn)
	if err != nil {
		return nil, fmt.Errorf("tenant store: parse config for %s: %w", id, err)
	}

	cfg.MaxConns = pm.maxConns
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	ns := id.Namespace()
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "SET ROLE "+ns.Role()); err != nil {
			return err
		}
		// public stays reachable for the vector type, not for its tables
		_, err := conn.Exec(ctx, "SET search_path TO "+ns.Schema()+", public")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tenant store: connect %s: %w", id, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant store: ping %s: %w", id, err)
	}

	db, err := database.NewGormDBFromPool(pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant store: gorm for %s: %w", id, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant store: gorm for %s: %w", id, err)
	}
	// database/sql must not hold more connections than pgx will hand out
	sqlDB.SetMaxOpenConns(int(pm.maxConns))
	sqlDB.SetMaxIdleConns(int(pm.maxConns))

	return &tenantPool{pool: pool, sqlDB: sqlDB, db: db}, nil
}

// Close shuts down all tenant pools.
func (pm *PoolManager) Close() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for id, p := range pm.pools {
		p.close()
		delete(pm.pools, id)
	}
}

type PoolStat struct {
	Acquired int32 `json:"acquired"`
	Total    int32 `json:"total"`
	Max      int32 `json:"max"`
}

// Stats reports connection usage per open tenant pool, keyed by tenant reference.
func (pm *PoolManager) Stats() map[string]PoolStat {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make(map[string]PoolStat, len(pm.pools))
	for id, p := range pm.pools {
		s := p.pool.Stat()
		out[id.String()] = PoolStat{Acquired: s.AcquiredConns(), Total: s.TotalConns(), Max: s.MaxConns()}
	}
	return out
}
