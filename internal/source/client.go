// Package source queries the source hypervisor for a VM's transferable
// metadata and controls its power state during the migration.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/kubev2v/migration-executor/internal/api"
)

// ErrConnection marks a failure to reach or authenticate against the source
// endpoint. No partial state exists when it is returned.
var ErrConnection = errors.New("cannot connect to source endpoint")

// Client is the inventory and power-control surface the orchestrators need
// from the source side.
type Client interface {
	ListVms(ctx context.Context) ([]api.VmSummary, error)
	GetTransferableMetadata(ctx context.Context, vmID string) (*api.SourceVmMetadata, error)
	PowerOff(ctx context.Context, vmID string) error
}

// VCenterClient implements Client against vCenter or a standalone ESXi host.
type VCenterClient struct {
	client *govmomi.Client
}

var _ Client = (*VCenterClient)(nil)

// Connect dials the source endpoint and logs in. The URL path defaults to
// /sdk when absent.
func Connect(ctx context.Context, endpoint, username, password string, tlsVerify bool) (*VCenterClient, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/sdk"
	}
	u.User = url.UserPassword(username, password)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vimClient, err := vim25.NewClient(connectCtx, soap.NewClient(u, !tlsVerify))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	client := &govmomi.Client{
		SessionManager: session.NewManager(vimClient),
		Client:         vimClient,
	}
	if err := client.Login(connectCtx, u.User); err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrConnection, err)
	}
	zap.S().Named("source").Infof("connected to %s", u.Host)

	return &VCenterClient{client: client}, nil
}

// Close logs out of the source endpoint.
func (c *VCenterClient) Close(ctx context.Context) {
	_ = c.client.Logout(ctx)
	c.client.CloseIdleConnections()
}

func (c *VCenterClient) ListVms(ctx context.Context) ([]api.VmSummary, error) {
	m := view.NewManager(c.client.Client)
	v, err := m.CreateContainerView(ctx, c.client.ServiceContent.RootFolder, []string{"VirtualMachine"}, true)
	if err != nil {
		return nil, fmt.Errorf("listing vms: %w", err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	var vms []mo.VirtualMachine
	if err := v.Retrieve(ctx, []string{"VirtualMachine"}, []string{"summary"}, &vms); err != nil {
		return nil, fmt.Errorf("listing vms: %w", err)
	}

	summaries := make([]api.VmSummary, 0, len(vms))
	for _, vm := range vms {
		if vm.Summary.Config.Template {
			continue
		}
		summaries = append(summaries, api.VmSummary{
			ID:         vm.Self.Value,
			Name:       vm.Summary.Config.Name,
			PowerState: powerState(vm.Summary.Runtime.PowerState),
		})
	}
	return summaries, nil
}

func (c *VCenterClient) PowerOff(ctx context.Context, vmID string) error {
	vm := c.vm(vmID)
	task, err := vm.PowerOff(ctx)
	if err != nil {
		return fmt.Errorf("powering off %s: %w", vmID, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("powering off %s: %w", vmID, err)
	}
	zap.S().Named("source").Infof("powered off %s", vmID)
	return nil
}

func vmRef(vmID string) types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: "VirtualMachine", Value: vmID}
}

func powerState(s types.VirtualMachinePowerState) api.PowerState {
	if s == types.VirtualMachinePowerStatePoweredOn {
		return api.PowerStateRunning
	}
	return api.PowerStateStopped
}
