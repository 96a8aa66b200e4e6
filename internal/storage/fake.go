package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

// Fake is an in-memory storage service. It backs dry runs and tests:
// quotas are enforced, identifiers are stable, and optional latency and
// failure injection make it a usable stand-in for a real endpoint.
//
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	latency time.Duration

	tenants     map[string]provision.Tenant
	users       map[string]provision.User
	quotas      map[string]map[string]int64 // tenantID -> resource -> limit
	volumes     map[string]Volume
	volumeOwner map[string]string // volumeID -> tenantID
	snapshots   map[string]Snapshot
	attachments map[string]Attachment
	servers     map[string]string // serverID -> tenantID

	deletedTenants []string
	deletedUsers   []string

	// FailOn makes the named operation return the given error. Operation
	// names: create_tenant, delete_tenant, create_user, delete_user,
	// set_quota, create_resource, delete_resource, create_volume,
	// delete_volume, create_snapshot, attach_volume.
	FailOn map[string]error
}

// NewFake returns an empty in-memory storage service.
func NewFake() *Fake {
	return &Fake{
		tenants:     make(map[string]provision.Tenant),
		users:       make(map[string]provision.User),
		quotas:      make(map[string]map[string]int64),
		volumes:     make(map[string]Volume),
		volumeOwner: make(map[string]string),
		snapshots:   make(map[string]Snapshot),
		attachments: make(map[string]Attachment),
		servers:     make(map[string]string),
		FailOn:      make(map[string]error),
	}
}

// SetLatency makes every operation sleep for d before completing.
func (f *Fake) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

func (f *Fake) begin(ctx context.Context, op string) error {
	f.mu.Lock()
	d := f.latency
	err := f.FailOn[op]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%04d", prefix, f.nextID)
}

// CreateTenant implements provision.Provisioner.
func (f *Fake) CreateTenant(ctx context.Context, name string) (provision.Tenant, error) {
	if err := f.begin(ctx, "create_tenant"); err != nil {
		return provision.Tenant{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := provision.Tenant{ID: f.id("tenant"), Name: name}
	f.tenants[t.ID] = t
	return t, nil
}

// DeleteTenant implements provision.Provisioner.
func (f *Fake) DeleteTenant(ctx context.Context, id string) error {
	if err := f.begin(ctx, "delete_tenant"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[id]; !ok {
		return fmt.Errorf("tenant %s not found", id)
	}
	delete(f.tenants, id)
	delete(f.quotas, id)
	f.deletedTenants = append(f.deletedTenants, id)
	return nil
}

// CreateUser implements provision.Provisioner.
func (f *Fake) CreateUser(ctx context.Context, tenant provision.Tenant, name string) (provision.User, error) {
	if err := f.begin(ctx, "create_user"); err != nil {
		return provision.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := provision.User{ID: f.id("user"), Name: name, TenantID: tenant.ID}
	f.users[u.ID] = u
	return u, nil
}

// DeleteUser implements provision.Provisioner.
func (f *Fake) DeleteUser(ctx context.Context, id string) error {
	if err := f.begin(ctx, "delete_user"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("user %s not found", id)
	}
	delete(f.users, id)
	f.deletedUsers = append(f.deletedUsers, id)
	return nil
}

// ExistingIdentities implements provision.Provisioner.
func (f *Fake) ExistingIdentities(ctx context.Context) ([]provision.Identity, error) {
	if err := f.begin(ctx, "existing_identities"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var identities []provision.Identity
	for _, u := range f.users {
		identities = append(identities, provision.Identity{
			Tenant: f.tenants[u.TenantID],
			User:   u,
		})
	}
	return identities, nil
}

// SetQuota implements provision.Provisioner.
func (f *Fake) SetQuota(ctx context.Context, tenantID, resource string, limit int64) error {
	if err := f.begin(ctx, "set_quota"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[tenantID]; !ok {
		return fmt.Errorf("tenant %s not found", tenantID)
	}
	if f.quotas[tenantID] == nil {
		f.quotas[tenantID] = make(map[string]int64)
	}
	f.quotas[tenantID][resource] = limit
	return nil
}

// CreateResource implements provision.Provisioner.
func (f *Fake) CreateResource(ctx context.Context, ident provision.Identity, kind string, args map[string]any) (provision.Resource, error) {
	if err := f.begin(ctx, "create_resource"); err != nil {
		return provision.Resource{}, err
	}
	switch kind {
	case "volume":
		vol, err := f.createVolume(ident, argInt64(args, "size_gb", 1))
		if err != nil {
			return provision.Resource{}, err
		}
		return provision.Resource{ID: vol.ID, Kind: kind, TenantID: ident.Tenant.ID}, nil
	case "server":
		f.mu.Lock()
		defer f.mu.Unlock()
		id := f.id("server")
		f.servers[id] = ident.Tenant.ID
		return provision.Resource{ID: id, Kind: kind, TenantID: ident.Tenant.ID}, nil
	default:
		return provision.Resource{}, fmt.Errorf("unknown precondition resource kind %q", kind)
	}
}

// DeleteResource implements provision.Provisioner.
func (f *Fake) DeleteResource(ctx context.Context, res provision.Resource) error {
	if err := f.begin(ctx, "delete_resource"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch res.Kind {
	case "volume":
		delete(f.volumes, res.ID)
		delete(f.volumeOwner, res.ID)
	case "server":
		delete(f.servers, res.ID)
	default:
		return fmt.Errorf("unknown resource kind %q", res.Kind)
	}
	return nil
}

func (f *Fake) createVolume(ident provision.Identity, sizeGB int64) (Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	limit, ok := f.quotas[ident.Tenant.ID]["volumes"]
	if ok && limit != bench.QuotaUnlimited {
		owned := int64(0)
		for _, tid := range f.volumeOwner {
			if tid == ident.Tenant.ID {
				owned++
			}
		}
		if owned >= limit {
			return Volume{}, fmt.Errorf("volume quota exceeded for tenant %s (limit %d)", ident.Tenant.ID, limit)
		}
	}

	v := Volume{ID: f.id("volume"), SizeGB: sizeGB, Status: "available"}
	v.Name = "vol-" + v.ID
	f.volumes[v.ID] = v
	f.volumeOwner[v.ID] = ident.Tenant.ID
	return v, nil
}

// CreateVolume mirrors Client.CreateVolume against the in-memory state.
func (f *Fake) CreateVolume(ctx context.Context, ident provision.Identity, sizeGB int64) (Volume, error) {
	if err := f.begin(ctx, "create_volume"); err != nil {
		return Volume{}, err
	}
	return f.createVolume(ident, sizeGB)
}

// DeleteVolume mirrors Client.DeleteVolume.
func (f *Fake) DeleteVolume(ctx context.Context, id string) error {
	if err := f.begin(ctx, "delete_volume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[id]; !ok {
		return fmt.Errorf("volume %s not found", id)
	}
	delete(f.volumes, id)
	delete(f.volumeOwner, id)
	return nil
}

// CreateSnapshot mirrors Client.CreateSnapshot.
func (f *Fake) CreateSnapshot(ctx context.Context, ident provision.Identity, volumeID string) (Snapshot, error) {
	if err := f.begin(ctx, "create_snapshot"); err != nil {
		return Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return Snapshot{}, fmt.Errorf("volume %s not found", volumeID)
	}
	s := Snapshot{ID: f.id("snap"), VolumeID: volumeID, Status: "available"}
	f.snapshots[s.ID] = s
	return s, nil
}

// DeleteSnapshot mirrors Client.DeleteSnapshot.
func (f *Fake) DeleteSnapshot(ctx context.Context, id string) error {
	if err := f.begin(ctx, "delete_snapshot"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[id]; !ok {
		return fmt.Errorf("snapshot %s not found", id)
	}
	delete(f.snapshots, id)
	return nil
}

// AttachVolume mirrors Client.AttachVolume.
func (f *Fake) AttachVolume(ctx context.Context, ident provision.Identity, volumeID, serverID string) (Attachment, error) {
	if err := f.begin(ctx, "attach_volume"); err != nil {
		return Attachment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return Attachment{}, fmt.Errorf("volume %s not found", volumeID)
	}
	a := Attachment{ID: f.id("attach"), VolumeID: volumeID, ServerID: serverID}
	f.attachments[a.ID] = a
	return a, nil
}

// DetachVolume mirrors Client.DetachVolume.
func (f *Fake) DetachVolume(ctx context.Context, attachmentID string) error {
	if err := f.begin(ctx, "detach_volume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attachments[attachmentID]; !ok {
		return fmt.Errorf("attachment %s not found", attachmentID)
	}
	delete(f.attachments, attachmentID)
	return nil
}

// GetQuota mirrors Client.GetQuota.
func (f *Fake) GetQuota(ctx context.Context, tenantID, resource string) (int64, error) {
	if err := f.begin(ctx, "get_quota"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[tenantID][resource]
	if !ok {
		return 0, fmt.Errorf("no quota for resource %q", resource)
	}
	return q, nil
}

// TenantCount returns the number of live tenants.
func (f *Fake) TenantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tenants)
}

// UserCount returns the number of live users.
func (f *Fake) UserCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// VolumeCount returns the number of live volumes.
func (f *Fake) VolumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.volumes)
}

// DeletedUsers returns IDs of users deleted so far, in deletion order.
func (f *Fake) DeletedUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedUsers...)
}

// DeletedTenants returns IDs of tenants deleted so far, in deletion order.
func (f *Fake) DeletedTenants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedTenants...)
}

var _ provision.Provisioner = (*Fake)(nil)
