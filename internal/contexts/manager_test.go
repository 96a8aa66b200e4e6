package contexts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/storage"
)

func TestSetupAllocatesTenantsAndUsers(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)

	handle, err := m.Setup(context.Background(), bench.ContextSpec{Tenants: 2, UsersPerTenant: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.TenantCount())
	assert.Equal(t, 6, fake.UserCount())
	assert.Len(t, handle.Identities(), 6)

	require.NoError(t, m.Teardown(context.Background(), handle))
	assert.Zero(t, fake.TenantCount())
	assert.Zero(t, fake.UserCount())
}

func TestSetupAppliesQuotasOncePerTenant(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)

	handle, err := m.Setup(context.Background(), bench.ContextSpec{
		Tenants:        2,
		UsersPerTenant: 2,
		Quotas:         map[string]int64{"volumes": 5, "gigabytes": bench.QuotaUnlimited},
	})
	require.NoError(t, err)
	defer m.Teardown(context.Background(), handle)

	for _, ident := range handle.Identities() {
		limit, err := fake.GetQuota(context.Background(), ident.Tenant.ID, "volumes")
		require.NoError(t, err)
		assert.Equal(t, int64(5), limit)

		limit, err = fake.GetQuota(context.Background(), ident.Tenant.ID, "gigabytes")
		require.NoError(t, err)
		assert.Equal(t, bench.QuotaUnlimited, limit)
	}
}

func TestSetupRunsPreconditions(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)

	handle, err := m.Setup(context.Background(), bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 2,
		Preconditions: []bench.PreconditionSpec{
			{Kind: "server", Count: 3},
			{Kind: "volume"}, // count 0 means one
		},
	})
	require.NoError(t, err)

	assert.Len(t, handle.Precreated("server"), 3)
	assert.Len(t, handle.Precreated("volume"), 1)
	assert.Equal(t, 1, fake.VolumeCount())

	require.NoError(t, m.Teardown(context.Background(), handle))
	assert.Zero(t, fake.VolumeCount())
}

func TestSetupReusesExistingUsers(t *testing.T) {
	fake := storage.NewFake()
	ctx := context.Background()

	tenant, err := fake.CreateTenant(ctx, "preexisting")
	require.NoError(t, err)
	_, err = fake.CreateUser(ctx, tenant, "alice")
	require.NoError(t, err)
	_, err = fake.CreateUser(ctx, tenant, "bob")
	require.NoError(t, err)

	m := NewManager(fake)
	handle, err := m.Setup(ctx, bench.ContextSpec{UseExistingUsers: true})
	require.NoError(t, err)
	assert.Len(t, handle.Identities(), 2)

	// Teardown must never touch resources it did not create.
	require.NoError(t, m.Teardown(ctx, handle))
	assert.Equal(t, 1, fake.TenantCount())
	assert.Equal(t, 2, fake.UserCount())
}

func TestSetupFailureRollsBack(t *testing.T) {
	fake := storage.NewFake()
	boom := errors.New("user service down")

	// Fail user creation: the tenant created before the failure must be
	// rolled back.
	fake.FailOn["create_user"] = boom

	m := NewManager(fake)
	_, err := m.Setup(context.Background(), bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})
	require.Error(t, err)

	var setupErr *bench.ContextSetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "allocate_identities", setupErr.Step)
	assert.ErrorIs(t, err, boom)

	assert.Zero(t, fake.TenantCount())
	assert.Zero(t, fake.UserCount())
}

func TestSetupFailureAtQuotaStep(t *testing.T) {
	fake := storage.NewFake()
	fake.FailOn["set_quota"] = errors.New("quota API broken")

	m := NewManager(fake)
	_, err := m.Setup(context.Background(), bench.ContextSpec{
		Tenants:        2,
		UsersPerTenant: 2,
		Quotas:         map[string]int64{"volumes": 10},
	})
	require.Error(t, err)

	var setupErr *bench.ContextSetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "set_quota", setupErr.Step)

	// All four users and both tenants were created before the quota step
	// failed; everything must be gone afterwards.
	assert.Zero(t, fake.TenantCount())
	assert.Zero(t, fake.UserCount())
}

func TestSetupFailureAtPreconditionStep(t *testing.T) {
	fake := storage.NewFake()
	fake.FailOn["create_resource"] = errors.New("no capacity")

	m := NewManager(fake)
	_, err := m.Setup(context.Background(), bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Preconditions:  []bench.PreconditionSpec{{Kind: "server", Count: 2}},
	})
	require.Error(t, err)

	var setupErr *bench.ContextSetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "precondition", setupErr.Step)
	assert.Zero(t, fake.TenantCount())
}

func TestTeardownDeletesUsersBeforeTenants(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)
	ctx := context.Background()

	handle, err := m.Setup(ctx, bench.ContextSpec{Tenants: 1, UsersPerTenant: 2})
	require.NoError(t, err)
	require.NoError(t, m.Teardown(ctx, handle))

	// Users are removed before their tenant.
	require.Len(t, fake.DeletedUsers(), 2)
	require.Len(t, fake.DeletedTenants(), 1)
}

func TestTeardownRunsExactlyOnce(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)
	ctx := context.Background()

	handle, err := m.Setup(ctx, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})
	require.NoError(t, err)

	require.NoError(t, m.Teardown(ctx, handle))
	deleted := len(fake.DeletedUsers())

	// Second call is a no-op: no double deletes, no errors.
	require.NoError(t, m.Teardown(ctx, handle))
	assert.Equal(t, deleted, len(fake.DeletedUsers()))
}

func TestTeardownCollectsDeleteFailures(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)
	ctx := context.Background()

	handle, err := m.Setup(ctx, bench.ContextSpec{Tenants: 2, UsersPerTenant: 1})
	require.NoError(t, err)

	boom := errors.New("delete refused")
	fake.FailOn["delete_user"] = boom

	err = m.Teardown(ctx, handle)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// Tenants were still attempted despite the user failures.
	assert.Zero(t, fake.TenantCount())
}

func TestTeardownMarksHandleGone(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)
	ctx := context.Background()

	handle, err := m.Setup(ctx, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})
	require.NoError(t, err)
	require.NoError(t, m.Teardown(ctx, handle))

	assert.True(t, handle.Gone())
	_, err = handle.Acquire(ctx)
	assert.ErrorIs(t, err, bench.ErrContextGone)
}

func TestSetupWithNoIdentitiesFails(t *testing.T) {
	fake := storage.NewFake()
	m := NewManager(fake)

	// No tenants configured and no existing users on the provider.
	_, err := m.Setup(context.Background(), bench.ContextSpec{UseExistingUsers: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no identities")
}
