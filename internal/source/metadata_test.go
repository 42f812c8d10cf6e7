package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/kubev2v/migration-executor/internal/api"
)

func snapRef(id string) types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: "VirtualMachineSnapshot", Value: id}
}

func TestSnapshotTree(t *testing.T) {
	current := snapRef("snap-2")
	vm := &mo.VirtualMachine{
		Snapshot: &types.VirtualMachineSnapshotInfo{
			CurrentSnapshot: &current,
			RootSnapshotList: []types.VirtualMachineSnapshotTree{
				{
					Snapshot: snapRef("snap-1"),
					Name:     "before-upgrade",
					ChildSnapshotList: []types.VirtualMachineSnapshotTree{
						{Snapshot: snapRef("snap-2"), Name: "after-upgrade"},
					},
				},
			},
		},
		LayoutEx: &types.VirtualMachineFileLayoutEx{
			File: []types.VirtualMachineFileLayoutExFileInfo{
				{Key: 4, Name: "[ds1] vm/vm.vmdk"},
				{Key: 5, Name: "[ds1] vm/vm-000001.vmdk"},
			},
			Snapshot: []types.VirtualMachineFileLayoutExSnapshotLayout{
				{
					Key: snapRef("snap-1"),
					Disk: []types.VirtualMachineFileLayoutExDiskLayout{
						{Key: 2000, Chain: []types.VirtualMachineFileLayoutExDiskUnit{
							{FileKey: []int32{4}},
						}},
					},
				},
				{
					Key: snapRef("snap-2"),
					Disk: []types.VirtualMachineFileLayoutExDiskLayout{
						{Key: 2000, Chain: []types.VirtualMachineFileLayoutExDiskUnit{
							{FileKey: []int32{4}},
							{FileKey: []int32{5}},
						}},
					},
				},
			},
		},
	}

	tree, err := snapshotTree(vm, map[int32]int{2000: 0}, map[int32]int64{2000: 1 << 30})
	require.NoError(t, err)

	assert.Equal(t, "snap-2", tree.Current)
	require.Len(t, tree.Snapshots, 2)

	root := tree.Snapshots["snap-1"]
	assert.Empty(t, root.Parent)
	require.Len(t, root.Disks, 1)
	assert.Equal(t, api.DiskLocation{Datastore: "ds1", Path: "vm/vm.vmdk"}, root.Disks[0].Location)
	assert.False(t, root.Disks[0].Delta)
	assert.Equal(t, int64(1<<30), root.Disks[0].Capacity)

	child := tree.Snapshots["snap-2"]
	assert.Equal(t, "snap-1", child.Parent)
	require.Len(t, child.Disks, 1)
	assert.Equal(t, "vm/vm-000001.vmdk", child.Disks[0].Location.Path)
	assert.True(t, child.Disks[0].Delta)
}

func TestSnapshotTreeUnknownFileKey(t *testing.T) {
	current := snapRef("snap-1")
	vm := &mo.VirtualMachine{
		Snapshot: &types.VirtualMachineSnapshotInfo{
			CurrentSnapshot: &current,
			RootSnapshotList: []types.VirtualMachineSnapshotTree{
				{Snapshot: snapRef("snap-1"), Name: "bad"},
			},
		},
		LayoutEx: &types.VirtualMachineFileLayoutEx{
			Snapshot: []types.VirtualMachineFileLayoutExSnapshotLayout{
				{
					Key: snapRef("snap-1"),
					Disk: []types.VirtualMachineFileLayoutExDiskLayout{
						{Key: 2000, Chain: []types.VirtualMachineFileLayoutExDiskUnit{
							{FileKey: []int32{99}},
						}},
					},
				},
			},
		},
	}

	_, err := snapshotTree(vm, map[int32]int{2000: 0}, map[int32]int64{2000: 1})
	assert.Error(t, err)
}

func TestParseDatastorePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    api.DiskLocation
		wantErr bool
	}{
		{
			name: "regular path",
			in:   "[datastore1] web/web.vmdk",
			want: api.DiskLocation{Datastore: "datastore1", Path: "web/web.vmdk"},
		},
		{
			name:    "missing datastore",
			in:      "web/web.vmdk",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDatastorePath(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirmware(t *testing.T) {
	assert.Equal(t, api.FirmwareUefi, firmware("efi"))
	assert.Equal(t, api.FirmwareBios, firmware("bios"))
	assert.Equal(t, api.FirmwareBios, firmware(""))
}
