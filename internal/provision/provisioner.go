// Package provision creates the destination VM shell, its network interfaces
// and one empty virtual disk per disk-node, registering compensating actions
// so a later failure in the same migration attempt unwinds everything that
// was created.
package provision

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/platform"
)

const importingSuffix = " (importing...)"

// StartBlockedReason is the message attached to the destination VM's blocked
// start operations while its disks are still importing.
const StartBlockedReason = "import in progress, do not start"

type Provisioner struct {
	client    platform.Client
	storageID string
}

func New(client platform.Client, storageID string) *Provisioner {
	return &Provisioner{client: client, storageID: storageID}
}

// ImportingLabel returns the display name a VM carries while importing.
func ImportingLabel(name string) string {
	return name + importingSuffix
}

// CreateVm creates the destination VM shell mirroring the source's memory,
// CPU count and firmware, with its display name tagged as importing and its
// start operations blocked so a half-imported VM cannot be powered on. One
// network interface per source adapter is created on networkID, preserving
// MAC addresses. A compensating destroy is registered on rb before anything
// else can fail.
func (p *Provisioner) CreateVm(ctx context.Context, meta *api.SourceVmMetadata, networkID string, rb *Rollback) (platform.VmRef, error) {
	vm, err := p.client.CreateVm(ctx, platform.VmSpec{
		NameLabel:       ImportingLabel(meta.Name),
		NameDescription: fmt.Sprintf("migrated from %s", meta.ID),
		MemoryBytes:     meta.MemoryBytes,
		CpuCount:        meta.CpuCount,
		Firmware:        meta.Firmware,
	})
	if err != nil {
		return "", fmt.Errorf("creating destination vm: %w", err)
	}
	rb.Add(fmt.Sprintf("destroy vm %s", vm), func(ctx context.Context) error {
		return p.client.DestroyVm(ctx, vm)
	})
	zap.S().Named("provision").Infof("created destination vm %s for %s", vm, meta.ID)

	if err := p.client.BlockStart(ctx, vm, StartBlockedReason); err != nil {
		return "", fmt.Errorf("blocking start operations: %w", err)
	}

	devices, err := p.client.AllowedVifDevices(ctx, vm)
	if err != nil {
		return "", err
	}
	if len(devices) < len(meta.Adapters) {
		return "", fmt.Errorf("source has %d network adapters but destination allows only %d interfaces", len(meta.Adapters), len(devices))
	}
	for i, adapter := range meta.Adapters {
		err := p.client.CreateVif(ctx, vm, platform.VifSpec{
			NetworkID:  networkID,
			MacAddress: adapter.MacAddress,
			Device:     devices[i],
		})
		if err != nil {
			return "", fmt.Errorf("creating network interface for %s: %w", adapter.MacAddress, err)
		}
	}

	return vm, nil
}

// CreateVdis creates one empty destination disk per disk-node, sized to the
// node's newest descriptor, and attaches it to the VM. Each disk registers
// its own compensating destroy so every disk created during the attempt is
// unwound on failure, whether or not it imported.
func (p *Provisioner) CreateVdis(ctx context.Context, vm platform.VmRef, chains map[int]api.DiskChain, rb *Rollback) (map[int]platform.VdiRef, error) {
	nodes := make([]int, 0, len(chains))
	for node := range chains {
		nodes = append(nodes, node)
	}
	sort.Ints(nodes)

	vdis := make(map[int]platform.VdiRef, len(chains))
	for _, node := range nodes {
		chain := chains[node]
		if len(chain) == 0 {
			return nil, fmt.Errorf("disk-node %d has an empty chain", node)
		}
		newest := chain[len(chain)-1]

		vdi, err := p.client.CreateVdi(ctx, platform.VdiSpec{
			NameLabel:       newest.Label,
			NameDescription: newest.Description,
			Size:            newest.Capacity,
			StorageID:       p.storageID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating disk for node %d: %w", node, err)
		}
		rb.Add(fmt.Sprintf("destroy vdi %s", vdi), func(ctx context.Context) error {
			return p.client.DestroyVdi(ctx, vdi)
		})

		if err := p.client.AttachVdi(ctx, vm, vdi, diskDevice(node)); err != nil {
			return nil, fmt.Errorf("attaching disk for node %d: %w", node, err)
		}
		vdis[node] = vdi
	}

	return vdis, nil
}

// diskDevice maps a disk-node to its destination device name, following the
// xvda..xvdz, xvdaa.. progression.
func diskDevice(node int) string {
	name := ""
	for n := node; ; n = n/26 - 1 {
		name = string(rune('a'+n%26)) + name
		if n < 26 {
			break
		}
	}
	return "xvd" + name
}
