// Package provision defines the boundary to the external provisioning API:
// the only interface through which tenants, users, quotas and pre-created
// resources are made and destroyed. The context manager is the sole caller
// of the mutating methods.
package provision

import "context"

// Tenant is an isolated project on the storage provider.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User belongs to exactly one tenant.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
}

// Identity is one user/tenant pair a scenario iteration runs as.
type Identity struct {
	Tenant Tenant `json:"tenant"`
	User   User   `json:"user"`
}

func (i Identity) String() string {
	return i.Tenant.Name + "/" + i.User.Name
}

// Resource is a provider object created by a context precondition,
// e.g. a pre-created volume or server.
type Resource struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	TenantID string `json:"tenant_id"`
}

// Provisioner is the provisioning API consumed by the context manager.
// Implementations must be safe for sequential use; the engine never calls
// mutating methods concurrently.
type Provisioner interface {
	CreateTenant(ctx context.Context, name string) (Tenant, error)
	DeleteTenant(ctx context.Context, id string) error

	CreateUser(ctx context.Context, tenant Tenant, name string) (User, error)
	DeleteUser(ctx context.Context, id string) error

	// ExistingIdentities lists identities already present on the provider,
	// used when a context reuses existing users instead of creating new.
	ExistingIdentities(ctx context.Context) ([]Identity, error)

	// SetQuota applies one resource limit to a tenant.
	// bench.QuotaUnlimited (-1) means no limit.
	SetQuota(ctx context.Context, tenantID, resource string, limit int64) error

	CreateResource(ctx context.Context, ident Identity, kind string, args map[string]any) (Resource, error)
	DeleteResource(ctx context.Context, res Resource) error
}
