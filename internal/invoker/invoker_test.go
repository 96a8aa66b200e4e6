package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/contexts"
	"github.com/loadstone/loadstone/internal/storage"
)

func testHandle(t *testing.T) (*contexts.Handle, func()) {
	t.Helper()
	fake := storage.NewFake()
	m := contexts.NewManager(fake)
	handle, err := m.Setup(context.Background(), bench.ContextSpec{Tenants: 1, UsersPerTenant: 2})
	require.NoError(t, err)
	return handle, func() { _ = m.Teardown(context.Background(), handle) }
}

func TestInvokeSuccess(t *testing.T) {
	handle, done := testHandle(t)
	defer done()

	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		assert.NotEmpty(t, call.Identity.User.ID)
		assert.Equal(t, 7, call.Args["size_gb"])
		return json.RawMessage(`{"ok":true}`), nil
	})

	res, fatal := New(handle).Invoke(context.Background(), body, map[string]any{"size_gb": 7})
	require.NoError(t, fatal)
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.Identity)
	assert.False(t, res.StartedAt.IsZero())
	assert.JSONEq(t, `{"ok":true}`, string(res.Output))
}

func TestInvokeBodyErrorBecomesResultData(t *testing.T) {
	handle, done := testHandle(t)
	defer done()

	boom := errors.New("volume quota exceeded")
	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		return nil, boom
	})

	res, fatal := New(handle).Invoke(context.Background(), body, nil)
	require.NoError(t, fatal, "body errors must not be fatal")
	require.True(t, res.Failed())
	assert.Equal(t, "volume quota exceeded", res.Error.Message)
	assert.Equal(t, "*errors.errorString", res.Error.Type)
	assert.Empty(t, res.Error.Traceback)
}

func TestInvokePanicBecomesResultData(t *testing.T) {
	handle, done := testHandle(t)
	defer done()

	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		var volumes []string
		return json.RawMessage(volumes[3]), nil // deliberate out-of-range
	})

	res, fatal := New(handle).Invoke(context.Background(), body, nil)
	require.NoError(t, fatal, "panics must not be fatal")
	require.True(t, res.Failed())
	assert.Equal(t, "panic", res.Error.Type)
	assert.Contains(t, res.Error.Message, "out of range")
	assert.Contains(t, res.Error.Traceback, "goroutine")
}

func TestInvokeReleasesIdentityAfterPanic(t *testing.T) {
	handle, done := testHandle(t)
	defer done()

	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		panic("boom")
	})

	inv := New(handle)
	// The pool has two identities; four sequential invokes only work if
	// each one releases its identity on the way out.
	for i := 0; i < 4; i++ {
		res, fatal := inv.Invoke(context.Background(), body, nil)
		require.NoError(t, fatal)
		require.True(t, res.Failed())
	}
}

func TestInvokeGoneContextIsFatal(t *testing.T) {
	handle, done := testHandle(t)
	done() // tear down immediately

	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		t.Error("body must not run against a gone context")
		return nil, nil
	})

	_, fatal := New(handle).Invoke(context.Background(), body, nil)
	assert.ErrorIs(t, fatal, bench.ErrContextGone)
}

func TestInvokeExposesPrecreatedResources(t *testing.T) {
	fake := storage.NewFake()
	m := contexts.NewManager(fake)
	handle, err := m.Setup(context.Background(), bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
		Preconditions:  []bench.PreconditionSpec{{Kind: "server", Count: 2}},
	})
	require.NoError(t, err)
	defer m.Teardown(context.Background(), handle)

	body := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		assert.Len(t, call.Precreated("server"), 2)
		assert.Empty(t, call.Precreated("volume"))
		return nil, nil
	})

	res, fatal := New(handle).Invoke(context.Background(), body, nil)
	require.NoError(t, fatal)
	assert.False(t, res.Failed())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	noop := ScenarioFunc(func(ctx context.Context, call Call) (json.RawMessage, error) {
		return nil, nil
	})

	require.NoError(t, reg.Register("Volumes.create_and_delete_volume", noop))
	require.NoError(t, reg.Register("Quotas.show_quota", noop))

	assert.Error(t, reg.Register("Quotas.show_quota", noop), "duplicate names must be rejected")

	_, err := reg.Get("Volumes.create_and_delete_volume")
	assert.NoError(t, err)

	_, err = reg.Get("Volumes.nope")
	var missing *bench.NoSuchScenarioError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Volumes.nope", missing.Name)

	assert.Equal(t, []string{"Quotas.show_quota", "Volumes.create_and_delete_volume"}, reg.Names())
}
