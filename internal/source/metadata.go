package source

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/kubev2v/migration-executor/internal/api"
)

func (c *VCenterClient) vm(vmID string) *object.VirtualMachine {
	return object.NewVirtualMachine(c.client.Client, vmRef(vmID))
}

// GetTransferableMetadata takes a read-only snapshot of everything the
// migration needs from the source VM: identity, firmware, sizing, power
// state, NICs, the current disk set and the snapshot tree with each
// snapshot's disk layers.
func (c *VCenterClient) GetTransferableMetadata(ctx context.Context, vmID string) (*api.SourceVmMetadata, error) {
	var vm mo.VirtualMachine
	pc := property.DefaultCollector(c.client.Client)
	props := []string{"name", "config", "runtime", "snapshot", "layoutEx"}
	if err := pc.RetrieveOne(ctx, vmRef(vmID), props, &vm); err != nil {
		return nil, fmt.Errorf("retrieving metadata for %s: %w", vmID, err)
	}
	if vm.Config == nil {
		return nil, fmt.Errorf("vm %s has no configuration", vmID)
	}

	meta := &api.SourceVmMetadata{
		ID:          vmID,
		Name:        vm.Name,
		Firmware:    firmware(vm.Config.Firmware),
		MemoryBytes: int64(vm.Config.Hardware.MemoryMB) * 1024 * 1024,
		CpuCount:    int(vm.Config.Hardware.NumCPU),
		PowerState:  powerState(vm.Runtime.PowerState),
	}

	nodeByDeviceKey := map[int32]int{}
	capacityByDeviceKey := map[int32]int64{}
	for _, dev := range vm.Config.Hardware.Device {
		switch d := dev.(type) {
		case types.BaseVirtualEthernetCard:
			card := d.GetVirtualEthernetCard()
			meta.Adapters = append(meta.Adapters, api.NetworkAdapter{
				Label:      deviceLabel(card.VirtualDevice),
				MacAddress: card.MacAddress,
			})
		case *types.VirtualDisk:
			node := len(nodeByDeviceKey)
			nodeByDeviceKey[d.Key] = node
			capacityByDeviceKey[d.Key] = d.CapacityInBytes

			backing, ok := d.Backing.(*types.VirtualDiskFlatVer2BackingInfo)
			if !ok {
				return nil, fmt.Errorf("disk %d of %s has an unsupported backing", node, vmID)
			}
			loc, err := parseDatastorePath(backing.FileName)
			if err != nil {
				return nil, err
			}
			meta.Disks = append(meta.Disks, api.DiskDescriptor{
				Node:        node,
				Capacity:    d.CapacityInBytes,
				Label:       deviceLabel(d.VirtualDevice),
				Description: backing.FileName,
				Location:    loc,
				Delta:       backing.Parent != nil,
			})
		}
	}

	if vm.Snapshot != nil && vm.Snapshot.CurrentSnapshot != nil {
		tree, err := snapshotTree(&vm, nodeByDeviceKey, capacityByDeviceKey)
		if err != nil {
			return nil, fmt.Errorf("reading snapshot tree of %s: %w", vmID, err)
		}
		meta.Snapshots = tree
	}

	return meta, nil
}

// snapshotTree flattens the snapshot hierarchy into records with parent
// links and resolves each snapshot's disk layers through the VM's extended
// file layout.
func snapshotTree(vm *mo.VirtualMachine, nodeByDeviceKey map[int32]int, capacityByDeviceKey map[int32]int64) (*api.SnapshotTree, error) {
	tree := &api.SnapshotTree{
		Current:   vm.Snapshot.CurrentSnapshot.Value,
		Snapshots: map[string]api.Snapshot{},
	}

	fileByKey := map[int32]types.VirtualMachineFileLayoutExFileInfo{}
	layoutBySnapshot := map[string]types.VirtualMachineFileLayoutExSnapshotLayout{}
	if vm.LayoutEx != nil {
		for _, f := range vm.LayoutEx.File {
			fileByKey[f.Key] = f
		}
		for _, s := range vm.LayoutEx.Snapshot {
			layoutBySnapshot[s.Key.Value] = s
		}
	}

	var walk func(nodes []types.VirtualMachineSnapshotTree, parent string) error
	walk = func(nodes []types.VirtualMachineSnapshotTree, parent string) error {
		for _, node := range nodes {
			id := node.Snapshot.Value
			disks, err := snapshotDisks(node, layoutBySnapshot[id], fileByKey, nodeByDeviceKey, capacityByDeviceKey)
			if err != nil {
				return err
			}
			tree.Snapshots[id] = api.Snapshot{
				ID:     id,
				Parent: parent,
				Disks:  disks,
			}
			if err := walk(node.ChildSnapshotList, id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(vm.Snapshot.RootSnapshotList, ""); err != nil {
		return nil, err
	}

	return tree, nil
}

// snapshotDisks resolves the disk layer each disk-node gained at one
// snapshot. The newest unit of a disk's chain at that point in the layout is
// the layer the snapshot froze; any unit past the first is a delta against
// its predecessor.
func snapshotDisks(node types.VirtualMachineSnapshotTree, layout types.VirtualMachineFileLayoutExSnapshotLayout,
	fileByKey map[int32]types.VirtualMachineFileLayoutExFileInfo,
	nodeByDeviceKey map[int32]int, capacityByDeviceKey map[int32]int64) ([]api.DiskDescriptor, error) {

	var disks []api.DiskDescriptor
	for _, diskLayout := range layout.Disk {
		slot, ok := nodeByDeviceKey[diskLayout.Key]
		if !ok {
			// disk removed since the snapshot was taken
			continue
		}
		if len(diskLayout.Chain) == 0 {
			continue
		}
		newest := diskLayout.Chain[len(diskLayout.Chain)-1]
		if len(newest.FileKey) == 0 {
			continue
		}
		file, ok := fileByKey[newest.FileKey[0]]
		if !ok {
			return nil, fmt.Errorf("snapshot %s references unknown file key %d", node.Snapshot.Value, newest.FileKey[0])
		}
		loc, err := parseDatastorePath(file.Name)
		if err != nil {
			return nil, err
		}
		disks = append(disks, api.DiskDescriptor{
			Node:        slot,
			Capacity:    capacityByDeviceKey[diskLayout.Key],
			Label:       fmt.Sprintf("%s (disk %d)", node.Name, slot),
			Description: file.Name,
			Location:    loc,
			Delta:       len(diskLayout.Chain) > 1,
		})
	}
	return disks, nil
}

func deviceLabel(d types.VirtualDevice) string {
	if d.DeviceInfo != nil {
		return d.DeviceInfo.GetDescription().Label
	}
	return ""
}

func firmware(f string) api.FirmwareType {
	if f == string(types.GuestOsDescriptorFirmwareTypeEfi) {
		return api.FirmwareUefi
	}
	return api.FirmwareBios
}

func parseDatastorePath(name string) (api.DiskLocation, error) {
	var p object.DatastorePath
	if !p.FromString(name) {
		return api.DiskLocation{}, fmt.Errorf("malformed datastore path %q", name)
	}
	return api.DiskLocation{Datastore: p.Datastore, Path: p.Path}, nil
}
