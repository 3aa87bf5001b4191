package tenantstore

import (
	"context"
	"errors"
	"fmt"

	"voice2note-be/internal/model"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// provisionLockKey serializes provisioning across service instances.
const provisionLockKey int64 = 0x76326e_70726f76

// SQLSTATEs raised when another provisioner won a race on the same object.
var conflictCodes = map[string]struct{}{
	"42710": {}, // duplicate_object (role)
	"42P06": {}, // duplicate_schema
	"23505": {}, // unique_violation (tenants row)
}

type Provisioner struct {
	db     *gorm.DB
	logger logger.ILogger
}

func NewProvisioner(mgmt *gorm.DB, log logger.ILogger) *Provisioner {
	return &Provisioner{db: mgmt, logger: log}
}

// Bootstrap creates the management tables. Safe to run on every start.
func (p *Provisioner) Bootstrap(ctx context.Context) error {
	if err := p.db.WithContext(ctx).Exec(tenant.ManagementSchema).Error; err != nil {
		return apperror.Provisioning(err, "bootstrap management schema")
	}
	return nil
}

// Provision creates the namespace, role, tables and grants of a tenant and registers it,
// all in one transaction. Running it again for a provisioned tenant changes nothing.
func (p *Provisioner) Provision(ctx context.Context, id tenant.ID) error {
	if !id.Valid() {
		return apperror.Validation("invalid tenant id %d", int64(id))
	}
	ns := id.Namespace()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", provisionLockKey).Error; err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		var roles int64
		if err := tx.Raw("SELECT count(*) FROM pg_roles WHERE rolname = ?", ns.Name()).Scan(&roles).Error; err != nil {
			return fmt.Errorf("lookup role: %w", err)
		}
		if roles == 0 {
			if err := tx.Exec("CREATE ROLE " + ns.Role() + " NOLOGIN").Error; err != nil {
				return fmt.Errorf("create role: %w", err)
			}
		}
		// the service role switches into the tenant role with SET ROLE
		if err := tx.Exec("GRANT " + ns.Role() + " TO CURRENT_USER").Error; err != nil {
			return fmt.Errorf("grant role: %w", err)
		}

		for _, stmt := range tenant.SchemaStatements(ns) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("schema: %w", err)
			}
		}
		for _, stmt := range tenant.GrantStatements(ns) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("grants: %w", err)
			}
		}

		row := &model.Tenant{
			TenantId:   int64(id),
			SchemaName: ns.Name(),
			RoleName:   ns.Name(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
			return fmt.Errorf("register: %w", err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("TENANT_STORE", "Provisioning failed", map[string]interface{}{
			"tenant": id.String(),
			"error":  err.Error(),
		})
		return classifyProvisioningError(id, err)
	}

	p.logger.Info("TENANT_STORE", "Tenant provisioned", map[string]interface{}{"tenant": id.String()})
	return nil
}

func classifyProvisioningError(id tenant.ID, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := conflictCodes[pgErr.Code]; ok {
			return apperror.ConcurrencyConflict(err, "tenant %s is being provisioned concurrently", id)
		}
	}
	return apperror.Provisioning(err, "provision %s", id)
}
