// Package scenarios holds the built-in benchmark bodies for the storage
// service. Each scenario is a thin sequence of API calls; pacing,
// identity binding, timing, and error capture all belong to the engine.
package scenarios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/provision"
	"github.com/loadstone/loadstone/internal/storage"
)

// API is the slice of the storage service the built-in scenarios
// exercise. Both the real client and the in-memory fake satisfy it.
type API interface {
	CreateVolume(ctx context.Context, ident provision.Identity, sizeGB int64) (storage.Volume, error)
	DeleteVolume(ctx context.Context, id string) error
	CreateSnapshot(ctx context.Context, ident provision.Identity, volumeID string) (storage.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	AttachVolume(ctx context.Context, ident provision.Identity, volumeID, serverID string) (storage.Attachment, error)
	DetachVolume(ctx context.Context, attachmentID string) error
	GetQuota(ctx context.Context, tenantID, resource string) (int64, error)
}

var (
	_ API = (*storage.Client)(nil)
	_ API = (*storage.Fake)(nil)
)

// Register adds every built-in scenario to the registry, bound to api.
func Register(reg *invoker.Registry, api API) error {
	bodies := map[string]invoker.Scenario{
		"Volumes.create_and_delete_volume":     createAndDeleteVolume(api),
		"Volumes.create_and_attach_volume":     createAndAttachVolume(api),
		"Snapshots.create_and_delete_snapshot": createAndDeleteSnapshot(api),
		"Quotas.show_quota":                    showQuota(api),
	}
	for name, body := range bodies {
		if err := reg.Register(name, body); err != nil {
			return err
		}
	}
	return nil
}

// sizeGB reads the "size_gb" argument, defaulting to 1.
func sizeGB(args map[string]any) (int64, error) {
	v, ok := args["size_gb"]
	if !ok {
		return 1, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("size_gb must be an integer, got %T", v)
	}
}

// createAndDeleteVolume measures the full create/delete round trip of one
// volume.
func createAndDeleteVolume(api API) invoker.Scenario {
	return invoker.ScenarioFunc(func(ctx context.Context, call invoker.Call) (json.RawMessage, error) {
		size, err := sizeGB(call.Args)
		if err != nil {
			return nil, err
		}
		vol, err := api.CreateVolume(ctx, call.Identity, size)
		if err != nil {
			return nil, fmt.Errorf("creating volume: %w", err)
		}
		if err := api.DeleteVolume(ctx, vol.ID); err != nil {
			return nil, fmt.Errorf("deleting volume %s: %w", vol.ID, err)
		}
		return json.Marshal(map[string]any{"volume_id": vol.ID, "size_gb": size})
	})
}

// createAndAttachVolume creates a volume, attaches it to a pre-created
// server, detaches, and deletes. The context must pre-create at least one
// "server" resource.
func createAndAttachVolume(api API) invoker.Scenario {
	var turn atomic.Int64
	return invoker.ScenarioFunc(func(ctx context.Context, call invoker.Call) (json.RawMessage, error) {
		servers := call.Precreated("server")
		if len(servers) == 0 {
			return nil, errors.New("no pre-created servers; add a server precondition to the context")
		}
		size, err := sizeGB(call.Args)
		if err != nil {
			return nil, err
		}

		vol, err := api.CreateVolume(ctx, call.Identity, size)
		if err != nil {
			return nil, fmt.Errorf("creating volume: %w", err)
		}
		// Best-effort cleanup keeps a failed attach from leaking the
		// volume past its iteration.
		defer func() { _ = api.DeleteVolume(ctx, vol.ID) }()

		server := servers[int(turn.Add(1)-1)%len(servers)]
		att, err := api.AttachVolume(ctx, call.Identity, vol.ID, server.ID)
		if err != nil {
			return nil, fmt.Errorf("attaching volume %s to server %s: %w", vol.ID, server.ID, err)
		}
		if err := api.DetachVolume(ctx, att.ID); err != nil {
			return nil, fmt.Errorf("detaching %s: %w", att.ID, err)
		}
		return json.Marshal(map[string]any{"volume_id": vol.ID, "server_id": server.ID})
	})
}

// createAndDeleteSnapshot measures snapshot churn against a fresh volume.
func createAndDeleteSnapshot(api API) invoker.Scenario {
	return invoker.ScenarioFunc(func(ctx context.Context, call invoker.Call) (json.RawMessage, error) {
		size, err := sizeGB(call.Args)
		if err != nil {
			return nil, err
		}
		vol, err := api.CreateVolume(ctx, call.Identity, size)
		if err != nil {
			return nil, fmt.Errorf("creating volume: %w", err)
		}
		defer func() { _ = api.DeleteVolume(ctx, vol.ID) }()

		snap, err := api.CreateSnapshot(ctx, call.Identity, vol.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshotting volume %s: %w", vol.ID, err)
		}
		if err := api.DeleteSnapshot(ctx, snap.ID); err != nil {
			return nil, fmt.Errorf("deleting snapshot %s: %w", snap.ID, err)
		}
		return json.Marshal(map[string]any{"volume_id": vol.ID, "snapshot_id": snap.ID})
	})
}

// showQuota reads the caller's tenant quota for the "resource" argument
// (default "volumes"). A read-only scenario for measuring control-plane
// latency without consuming capacity.
func showQuota(api API) invoker.Scenario {
	return invoker.ScenarioFunc(func(ctx context.Context, call invoker.Call) (json.RawMessage, error) {
		resource := "volumes"
		if v, ok := call.Args["resource"].(string); ok && v != "" {
			resource = v
		}
		limit, err := api.GetQuota(ctx, call.Identity.Tenant.ID, resource)
		if err != nil {
			return nil, fmt.Errorf("reading %s quota: %w", resource, err)
		}
		return json.Marshal(map[string]any{"resource": resource, "limit": limit})
	})
}
