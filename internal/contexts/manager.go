package contexts

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

// Manager builds and destroys execution contexts. It is the only
// component permitted to create or delete tenants and users, and the only
// caller of the provisioner's mutating methods.
type Manager struct {
	prov provision.Provisioner
	log  *log.Entry

	// namePrefix distinguishes this engine's resources from pre-existing
	// ones on the provider.
	namePrefix string
	seq        int
}

// NewManager creates a manager on top of the given provisioner.
func NewManager(p provision.Provisioner) *Manager {
	return &Manager{
		prov:       p,
		log:        log.WithField("component", "contexts"),
		namePrefix: "loadstone",
	}
}

// Setup allocates tenants and users (or reuses existing ones), applies
// quotas, and executes preconditions in order. On partial failure it
// tears down whatever was created and returns *bench.ContextSetupError.
func (m *Manager) Setup(ctx context.Context, spec bench.ContextSpec) (*Handle, error) {
	h := newHandle(spec)

	identities, err := m.allocateIdentities(ctx, spec, h)
	if err == nil && len(identities) == 0 {
		err = errors.New("context yielded no identities")
	}
	if err != nil {
		return nil, m.failSetup(ctx, h, "allocate_identities", err)
	}

	if err := m.applyQuotas(ctx, spec, identities); err != nil {
		return nil, m.failSetup(ctx, h, "set_quota", err)
	}

	if err := m.runPreconditions(ctx, spec, h, identities); err != nil {
		return nil, m.failSetup(ctx, h, "precondition", err)
	}

	h.fillPool(identities)
	m.log.WithFields(log.Fields{
		"tenants":    spec.Tenants,
		"identities": len(identities),
		"reused":     spec.UseExistingUsers,
	}).Info("context ready")
	return h, nil
}

// allocateIdentities creates tenants and users, or collects existing ones.
func (m *Manager) allocateIdentities(ctx context.Context, spec bench.ContextSpec, h *Handle) ([]provision.Identity, error) {
	if spec.UseExistingUsers {
		identities, err := m.prov.ExistingIdentities(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing existing users: %w", err)
		}
		return identities, nil
	}

	var identities []provision.Identity
	for t := 0; t < spec.Tenants; t++ {
		tenant, err := m.prov.CreateTenant(ctx, m.nextName("tenant"))
		if err != nil {
			return nil, fmt.Errorf("creating tenant %d: %w", t, err)
		}
		h.createdTenants = append(h.createdTenants, tenant)

		for u := 0; u < spec.UsersPerTenant; u++ {
			user, err := m.prov.CreateUser(ctx, tenant, m.nextName("user"))
			if err != nil {
				return nil, fmt.Errorf("creating user %d in tenant %s: %w", u, tenant.Name, err)
			}
			h.createdUsers = append(h.createdUsers, user)
			identities = append(identities, provision.Identity{Tenant: tenant, User: user})
		}
	}
	return identities, nil
}

// applyQuotas sets every configured limit once per distinct tenant.
func (m *Manager) applyQuotas(ctx context.Context, spec bench.ContextSpec, identities []provision.Identity) error {
	if len(spec.Quotas) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, ident := range identities {
		if seen[ident.Tenant.ID] {
			continue
		}
		seen[ident.Tenant.ID] = true
		for resource, limit := range spec.Quotas {
			if err := m.prov.SetQuota(ctx, ident.Tenant.ID, resource, limit); err != nil {
				return fmt.Errorf("setting %s quota on tenant %s: %w", resource, ident.Tenant.Name, err)
			}
		}
	}
	return nil
}

// runPreconditions provisions the resource pools scenarios expect to find,
// spreading them round-robin over the identity pool.
func (m *Manager) runPreconditions(ctx context.Context, spec bench.ContextSpec, h *Handle, identities []provision.Identity) error {
	for _, pre := range spec.Preconditions {
		count := pre.Count
		if count == 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			ident := identities[i%len(identities)]
			res, err := m.prov.CreateResource(ctx, ident, pre.Kind, pre.Args)
			if err != nil {
				return fmt.Errorf("pre-creating %s %d/%d: %w", pre.Kind, i+1, count, err)
			}
			h.createdResources = append(h.createdResources, res)
			h.precreated[pre.Kind] = append(h.precreated[pre.Kind], res)
		}
	}
	return nil
}

// failSetup tears down whatever a partial setup created, then wraps the
// original failure. The returned error always satisfies
// errors.As(*bench.ContextSetupError).
func (m *Manager) failSetup(ctx context.Context, h *Handle, step string, err error) error {
	m.log.WithError(err).WithField("step", step).Error("context setup failed, rolling back")
	// Roll back even when the failure was a cancellation.
	if terr := m.Teardown(context.WithoutCancel(ctx), h); terr != nil {
		m.log.WithError(terr).Warn("rollback of partial context left residue")
	}
	return &bench.ContextSetupError{Step: step, Err: err}
}

// Teardown releases everything Setup created, never pre-existing
// resources. It runs exactly once per handle; later calls are no-ops.
// Individual delete failures are collected rather than aborting the rest
// of the teardown.
func (m *Manager) Teardown(ctx context.Context, h *Handle) error {
	var err error
	h.teardownOnce.Do(func() {
		h.MarkGone()
		err = m.teardown(ctx, h)
	})
	return err
}

func (m *Manager) teardown(ctx context.Context, h *Handle) error {
	var errs []error

	// Reverse creation order: resources, then users, then tenants.
	for i := len(h.createdResources) - 1; i >= 0; i-- {
		if err := m.prov.DeleteResource(ctx, h.createdResources[i]); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s %s: %w", h.createdResources[i].Kind, h.createdResources[i].ID, err))
		}
	}
	for i := len(h.createdUsers) - 1; i >= 0; i-- {
		if err := m.prov.DeleteUser(ctx, h.createdUsers[i].ID); err != nil {
			errs = append(errs, fmt.Errorf("deleting user %s: %w", h.createdUsers[i].ID, err))
		}
	}
	for i := len(h.createdTenants) - 1; i >= 0; i-- {
		if err := m.prov.DeleteTenant(ctx, h.createdTenants[i].ID); err != nil {
			errs = append(errs, fmt.Errorf("deleting tenant %s: %w", h.createdTenants[i].ID, err))
		}
	}

	m.log.WithFields(log.Fields{
		"resources": len(h.createdResources),
		"users":     len(h.createdUsers),
		"tenants":   len(h.createdTenants),
		"errors":    len(errs),
	}).Info("context torn down")
	return errors.Join(errs...)
}

func (m *Manager) nextName(kind string) string {
	m.seq++
	return fmt.Sprintf("%s-%s-%d", m.namePrefix, kind, m.seq)
}
