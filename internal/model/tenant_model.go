package model

import "time"

type Tenant struct {
	TenantId   int64     `gorm:"column:tenant_id;primaryKey"`
	SchemaName string    `gorm:"column:schema_name;type:varchar(64);not null;uniqueIndex"`
	RoleName   string    `gorm:"column:role_name;type:varchar(64);not null;uniqueIndex"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Tenant) TableName() string {
	return "public.tenants"
}
