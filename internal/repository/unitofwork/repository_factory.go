package unitofwork

import (
	"context"

	"voice2note-be/internal/tenant"
)

// RepositoryFactory leases a connection from the tenant's pool, runs work in one
// transaction on it and returns the connection on every exit path.
type RepositoryFactory interface {
	Run(ctx context.Context, id tenant.ID, work Work) error
}
