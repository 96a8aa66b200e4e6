// Package storage talks to the storage-service REST API: it implements
// the provisioning boundary (tenants, users, quotas, pre-created
// resources) and the volume/snapshot operations the built-in scenario
// bodies exercise.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

// Volume is a block-storage volume.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	SizeGB int64  `json:"size_gb"`
	Status string `json:"status"`
}

// Snapshot is a point-in-time copy of a volume.
type Snapshot struct {
	ID       string `json:"id"`
	VolumeID string `json:"volume_id"`
	Status   string `json:"status"`
}

// Attachment records a volume attached to a server.
type Attachment struct {
	ID       string `json:"id"`
	VolumeID string `json:"volume_id"`
	ServerID string `json:"server_id"`
}

// APIError is a non-2xx response from the storage service.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage API %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client is an HTTP client for the storage service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *log.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		log:        log.WithField("component", "storage"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// do executes one request and returns the response body. Non-2xx statuses
// become *APIError with the service's error message when one is present.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	c.log.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("storage API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    msg,
		}
	}
	return data, nil
}

// CreateTenant implements provision.Provisioner.
func (c *Client) CreateTenant(ctx context.Context, name string) (provision.Tenant, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/tenants", map[string]string{"name": name})
	if err != nil {
		return provision.Tenant{}, err
	}
	return provision.Tenant{
		ID:   gjson.GetBytes(data, "tenant.id").String(),
		Name: gjson.GetBytes(data, "tenant.name").String(),
	}, nil
}

// DeleteTenant implements provision.Provisioner.
func (c *Client) DeleteTenant(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/tenants/"+id, nil)
	return err
}

// CreateUser implements provision.Provisioner.
func (c *Client) CreateUser(ctx context.Context, tenant provision.Tenant, name string) (provision.User, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/tenants/"+tenant.ID+"/users", map[string]string{"name": name})
	if err != nil {
		return provision.User{}, err
	}
	return provision.User{
		ID:       gjson.GetBytes(data, "user.id").String(),
		Name:     gjson.GetBytes(data, "user.name").String(),
		TenantID: tenant.ID,
	}, nil
}

// DeleteUser implements provision.Provisioner.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/users/"+id, nil)
	return err
}

// ExistingIdentities implements provision.Provisioner.
func (c *Client) ExistingIdentities(ctx context.Context) ([]provision.Identity, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/users", nil)
	if err != nil {
		return nil, err
	}

	var identities []provision.Identity
	for _, u := range gjson.GetBytes(data, "users").Array() {
		identities = append(identities, provision.Identity{
			Tenant: provision.Tenant{
				ID:   u.Get("tenant_id").String(),
				Name: u.Get("tenant_name").String(),
			},
			User: provision.User{
				ID:       u.Get("id").String(),
				Name:     u.Get("name").String(),
				TenantID: u.Get("tenant_id").String(),
			},
		})
	}
	return identities, nil
}

// SetQuota implements provision.Provisioner. bench.QuotaUnlimited is sent
// as the service's own -1 sentinel.
func (c *Client) SetQuota(ctx context.Context, tenantID, resource string, limit int64) error {
	payload := map[string]int64{resource: limit}
	if limit == bench.QuotaUnlimited {
		payload[resource] = -1
	}
	_, err := c.do(ctx, http.MethodPut, "/v1/tenants/"+tenantID+"/quotas", payload)
	return err
}

// CreateResource implements provision.Provisioner for precondition kinds.
func (c *Client) CreateResource(ctx context.Context, ident provision.Identity, kind string, args map[string]any) (provision.Resource, error) {
	switch kind {
	case "volume":
		vol, err := c.CreateVolume(ctx, ident, argInt64(args, "size_gb", 1))
		if err != nil {
			return provision.Resource{}, err
		}
		return provision.Resource{ID: vol.ID, Kind: kind, TenantID: ident.Tenant.ID}, nil

	case "server":
		data, err := c.do(ctx, http.MethodPost, "/v1/tenants/"+ident.Tenant.ID+"/servers", args)
		if err != nil {
			return provision.Resource{}, err
		}
		return provision.Resource{
			ID:       gjson.GetBytes(data, "server.id").String(),
			Kind:     kind,
			TenantID: ident.Tenant.ID,
		}, nil

	default:
		return provision.Resource{}, fmt.Errorf("unknown precondition resource kind %q", kind)
	}
}

// DeleteResource implements provision.Provisioner.
func (c *Client) DeleteResource(ctx context.Context, res provision.Resource) error {
	switch res.Kind {
	case "volume":
		return c.DeleteVolume(ctx, res.ID)
	case "server":
		_, err := c.do(ctx, http.MethodDelete, "/v1/servers/"+res.ID, nil)
		return err
	default:
		return fmt.Errorf("unknown resource kind %q", res.Kind)
	}
}

// CreateVolume creates a volume owned by the identity's tenant.
func (c *Client) CreateVolume(ctx context.Context, ident provision.Identity, sizeGB int64) (Volume, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/tenants/"+ident.Tenant.ID+"/volumes", map[string]any{
		"size_gb": sizeGB,
		"user_id": ident.User.ID,
	})
	if err != nil {
		return Volume{}, err
	}
	v := gjson.GetBytes(data, "volume")
	return Volume{
		ID:     v.Get("id").String(),
		Name:   v.Get("name").String(),
		SizeGB: v.Get("size_gb").Int(),
		Status: v.Get("status").String(),
	}, nil
}

// DeleteVolume removes a volume.
func (c *Client) DeleteVolume(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/volumes/"+id, nil)
	return err
}

// CreateSnapshot snapshots a volume.
func (c *Client) CreateSnapshot(ctx context.Context, ident provision.Identity, volumeID string) (Snapshot, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/volumes/"+volumeID+"/snapshots", map[string]string{
		"user_id": ident.User.ID,
	})
	if err != nil {
		return Snapshot{}, err
	}
	s := gjson.GetBytes(data, "snapshot")
	return Snapshot{
		ID:       s.Get("id").String(),
		VolumeID: volumeID,
		Status:   s.Get("status").String(),
	}, nil
}

// DeleteSnapshot removes a snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/snapshots/"+id, nil)
	return err
}

// AttachVolume attaches a volume to a server.
func (c *Client) AttachVolume(ctx context.Context, ident provision.Identity, volumeID, serverID string) (Attachment, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/volumes/"+volumeID+"/attachments", map[string]string{
		"server_id": serverID,
		"user_id":   ident.User.ID,
	})
	if err != nil {
		return Attachment{}, err
	}
	a := gjson.GetBytes(data, "attachment")
	return Attachment{
		ID:       a.Get("id").String(),
		VolumeID: volumeID,
		ServerID: serverID,
	}, nil
}

// DetachVolume removes an attachment.
func (c *Client) DetachVolume(ctx context.Context, attachmentID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/attachments/"+attachmentID, nil)
	return err
}

// GetQuota reads one resource limit for a tenant.
func (c *Client) GetQuota(ctx context.Context, tenantID, resource string) (int64, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/tenants/"+tenantID+"/quotas", nil)
	if err != nil {
		return 0, err
	}
	q := gjson.GetBytes(data, "quotas."+resource)
	if !q.Exists() {
		return 0, fmt.Errorf("no quota for resource %q", resource)
	}
	return q.Int(), nil
}

func argInt64(args map[string]any, key string, def int64) int64 {
	switch v := args[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}

var _ provision.Provisioner = (*Client)(nil)
