package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Client = (*restClient)(nil)

// restClient talks to the destination control plane's REST API. Content
// uploads stream the request body; everything else is small JSON payloads.
type restClient struct {
	base   *url.URL
	token  string
	client *http.Client
	// streamClient has no timeout: disk uploads legitimately run for hours.
	streamClient *http.Client
}

// NewRestClient returns a destination client for the control plane at
// endpoint, authenticating with an API token.
func NewRestClient(endpoint, token string, tlsVerify bool) (Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid control plane endpoint: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !tlsVerify},
	}

	return &restClient{
		base:         base,
		token:        token,
		client:       &http.Client{Transport: transport, Timeout: 5 * time.Minute},
		streamClient: &http.Client{Transport: transport},
	}, nil
}

type vmDocument struct {
	ID string `json:"id"`
}

type vdiDocument struct {
	ID string `json:"id"`
}

func (c *restClient) CreateVm(ctx context.Context, spec VmSpec) (VmRef, error) {
	body := map[string]any{
		"name_label":       spec.NameLabel,
		"name_description": spec.NameDescription,
		"memory":           spec.MemoryBytes,
		"cpus":             spec.CpuCount,
		"firmware":         string(spec.Firmware),
	}
	var doc vmDocument
	if err := c.do(ctx, http.MethodPost, "/vms", body, &doc); err != nil {
		return "", fmt.Errorf("create vm failed: %w", err)
	}
	return VmRef(doc.ID), nil
}

func (c *restClient) DestroyVm(ctx context.Context, vm VmRef) error {
	return c.do(ctx, http.MethodDelete, "/vms/"+string(vm), nil, nil)
}

func (c *restClient) SetVmNameLabel(ctx context.Context, vm VmRef, label string) error {
	return c.do(ctx, http.MethodPatch, "/vms/"+string(vm), map[string]any{"name_label": label}, nil)
}

func (c *restClient) BlockStart(ctx context.Context, vm VmRef, reason string) error {
	body := map[string]any{
		"operations": []string{"start", "start_on"},
		"reason":     reason,
	}
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/blocked-operations", body, nil)
}

func (c *restClient) UnblockStart(ctx context.Context, vm VmRef) error {
	body := map[string]any{
		"operations": []string{"start", "start_on"},
	}
	return c.do(ctx, http.MethodDelete, "/vms/"+string(vm)+"/blocked-operations", body, nil)
}

func (c *restClient) CreateVdi(ctx context.Context, spec VdiSpec) (VdiRef, error) {
	body := map[string]any{
		"name_label":       spec.NameLabel,
		"name_description": spec.NameDescription,
		"size":             spec.Size,
		"sr":               spec.StorageID,
	}
	var doc vdiDocument
	if err := c.do(ctx, http.MethodPost, "/vdis", body, &doc); err != nil {
		return "", fmt.Errorf("create vdi failed: %w", err)
	}
	return VdiRef(doc.ID), nil
}

func (c *restClient) DestroyVdi(ctx context.Context, vdi VdiRef) error {
	return c.do(ctx, http.MethodDelete, "/vdis/"+string(vdi), nil, nil)
}

func (c *restClient) AttachVdi(ctx context.Context, vm VmRef, vdi VdiRef, device string) error {
	body := map[string]any{
		"vdi":    string(vdi),
		"device": device,
	}
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/vbds", body, nil)
}

func (c *restClient) AllowedVifDevices(ctx context.Context, vm VmRef) ([]string, error) {
	var devices []string
	if err := c.do(ctx, http.MethodGet, "/vms/"+string(vm)+"/allowed-vif-devices", nil, &devices); err != nil {
		return nil, fmt.Errorf("query allowed vif devices failed: %w", err)
	}
	return devices, nil
}

func (c *restClient) CreateVif(ctx context.Context, vm VmRef, spec VifSpec) error {
	body := map[string]any{
		"network": spec.NetworkID,
		"mac":     spec.MacAddress,
		"device":  spec.Device,
	}
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/vifs", body, nil)
}

func (c *restClient) ImportContent(ctx context.Context, vdi VdiRef, content io.Reader, format Format) error {
	u := c.url("/vdis/" + string(vdi) + "/content")
	u.RawQuery = url.Values{"format": []string{string(format)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), content)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("import content failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("import content failed: %s", resp.Status)
	}
	return nil
}

func (c *restClient) Start(ctx context.Context, vm VmRef) error {
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/actions/start", nil, nil)
}

func (c *restClient) Shutdown(ctx context.Context, vm VmRef) error {
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/actions/clean-shutdown", nil, nil)
}

func (c *restClient) HardShutdown(ctx context.Context, vm VmRef) error {
	return c.do(ctx, http.MethodPost, "/vms/"+string(vm)+"/actions/hard-shutdown", nil, nil)
}

func (c *restClient) FindVms(ctx context.Context, q VmQuery) ([]VmRef, error) {
	u := "/vms"
	values := url.Values{}
	if len(q.Tags) > 0 {
		values.Set("tags", strings.Join(q.Tags, ","))
	}
	if q.StartBlocked {
		values.Set("start_blocked", "true")
	}
	if len(values) > 0 {
		u += "?" + values.Encode()
	}

	var docs []vmDocument
	if err := c.do(ctx, http.MethodGet, u, nil, &docs); err != nil {
		return nil, fmt.Errorf("find vms failed: %w", err)
	}
	refs := make([]VmRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, VmRef(doc.ID))
	}
	return refs, nil
}

func (c *restClient) url(path string) *url.URL {
	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, path)
	return &u
}

func (c *restClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	u := c.url(path)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u = c.url(path[:i])
		u.RawQuery = path[i+1:]
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}
