package scenarios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/contexts"
	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/storage"
)

func liveCall(t *testing.T, fake *storage.Fake, spec bench.ContextSpec) invoker.Call {
	t.Helper()
	m := contexts.NewManager(fake)
	handle, err := m.Setup(context.Background(), spec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Teardown(context.Background(), handle) })

	ident, err := handle.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { handle.Release(ident) })

	return invoker.Call{
		Identity:   ident,
		Precreated: handle.Precreated,
	}
}

func registryFor(t *testing.T, fake *storage.Fake) *invoker.Registry {
	t.Helper()
	reg := invoker.NewRegistry()
	require.NoError(t, Register(reg, fake))
	return reg
}

func TestRegisterExposesAllScenarios(t *testing.T) {
	reg := registryFor(t, storage.NewFake())
	assert.Equal(t, []string{
		"Quotas.show_quota",
		"Snapshots.create_and_delete_snapshot",
		"Volumes.create_and_attach_volume",
		"Volumes.create_and_delete_volume",
	}, reg.Names())
}

func TestCreateAndDeleteVolume(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})
	call.Args = map[string]any{"size_gb": 5}

	body, err := registryFor(t, fake).Get("Volumes.create_and_delete_volume")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, int64(5), gjson.GetBytes(out, "size_gb").Int())
	assert.NotEmpty(t, gjson.GetBytes(out, "volume_id").String())

	// The round trip leaves nothing behind.
	assert.Zero(t, fake.VolumeCount())
}

func TestCreateAndDeleteVolumeDefaultSize(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})

	body, err := registryFor(t, fake).Get("Volumes.create_and_delete_volume")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.GetBytes(out, "size_gb").Int())
}

func TestCreateAndDeleteVolumeQuotaFailure(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Quotas:         map[string]int64{"volumes": 0},
	})

	body, err := registryFor(t, fake).Get("Volumes.create_and_delete_volume")
	require.NoError(t, err)

	_, err = body.Run(context.Background(), call)
	assert.ErrorContains(t, err, "volume quota exceeded")
}

func TestCreateAndAttachVolume(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Preconditions:  []bench.PreconditionSpec{{Kind: "server", Count: 2}},
	})

	body, err := registryFor(t, fake).Get("Volumes.create_and_attach_volume")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.NotEmpty(t, gjson.GetBytes(out, "server_id").String())
	assert.Zero(t, fake.VolumeCount(), "the volume must be cleaned up")
}

func TestCreateAndAttachVolumeNeedsServers(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})

	body, err := registryFor(t, fake).Get("Volumes.create_and_attach_volume")
	require.NoError(t, err)

	_, err = body.Run(context.Background(), call)
	assert.ErrorContains(t, err, "no pre-created servers")
}

func TestCreateAndDeleteSnapshot(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{Tenants: 1, UsersPerTenant: 1})

	body, err := registryFor(t, fake).Get("Snapshots.create_and_delete_snapshot")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.NotEmpty(t, gjson.GetBytes(out, "snapshot_id").String())
	assert.Zero(t, fake.VolumeCount())
}

func TestShowQuota(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Quotas:         map[string]int64{"volumes": 25},
	})

	body, err := registryFor(t, fake).Get("Quotas.show_quota")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, int64(25), gjson.GetBytes(out, "limit").Int())
	assert.Equal(t, "volumes", gjson.GetBytes(out, "resource").String())
}

func TestShowQuotaCustomResource(t *testing.T) {
	fake := storage.NewFake()
	call := liveCall(t, fake, bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Quotas:         map[string]int64{"gigabytes": bench.QuotaUnlimited},
	})
	call.Args = map[string]any{"resource": "gigabytes"}

	body, err := registryFor(t, fake).Get("Quotas.show_quota")
	require.NoError(t, err)

	out, err := body.Run(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), gjson.GetBytes(out, "limit").Int())
}
