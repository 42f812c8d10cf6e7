package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/platform/platformtest"
)

func testMetadata() *api.SourceVmMetadata {
	return &api.SourceVmMetadata{
		ID:          "vm-42",
		Name:        "web-frontend",
		Firmware:    api.FirmwareBios,
		MemoryBytes: 4 * 1024 * 1024 * 1024,
		CpuCount:    2,
		PowerState:  api.PowerStateStopped,
		Adapters: []api.NetworkAdapter{
			{Label: "Network adapter 1", MacAddress: "00:50:56:aa:bb:cc"},
			{Label: "Network adapter 2", MacAddress: "00:50:56:dd:ee:ff"},
		},
	}
}

func TestCreateVmBlocksStartAndPreservesMacs(t *testing.T) {
	client := platformtest.New()
	p := New(client, "sr-1")
	rb := NewRollback()

	vm, err := p.CreateVm(context.Background(), testMetadata(), "net-1", rb)
	require.NoError(t, err)

	assert.Equal(t, "web-frontend (importing...)", client.Labels[vm])
	assert.Equal(t, StartBlockedReason, client.Blocked[vm])

	require.Len(t, client.Vifs, 2)
	assert.Equal(t, "00:50:56:aa:bb:cc", client.Vifs[0].MacAddress)
	assert.Equal(t, "00:50:56:dd:ee:ff", client.Vifs[1].MacAddress)
	assert.Equal(t, "net-1", client.Vifs[0].NetworkID)
	assert.NotEqual(t, client.Vifs[0].Device, client.Vifs[1].Device)
}

func TestCreateVmTooManyAdapters(t *testing.T) {
	client := platformtest.New()
	client.AllowedDevices = []string{"0"}
	p := New(client, "sr-1")
	rb := NewRollback()

	_, err := p.CreateVm(context.Background(), testMetadata(), "net-1", rb)
	require.Error(t, err)

	// the vm was created before the check, rollback must remove it
	rb.Run(context.Background())
	assert.Len(t, client.DestroyedVms, 1)
}

func TestCreateVdisSizesToNewestDescriptor(t *testing.T) {
	client := platformtest.New()
	p := New(client, "sr-1")
	rb := NewRollback()

	vm, err := p.CreateVm(context.Background(), testMetadata(), "net-1", rb)
	require.NoError(t, err)

	chains := map[int]api.DiskChain{
		0: {
			{Node: 0, Capacity: 10, Label: "old"},
			{Node: 0, Capacity: 20, Label: "current", Delta: true},
		},
	}
	vdis, err := p.CreateVdis(context.Background(), vm, chains, rb)
	require.NoError(t, err)
	require.Len(t, vdis, 1)
	assert.Equal(t, vm, client.Attached[vdis[0]])
}

func TestDiskDevice(t *testing.T) {
	tests := []struct {
		node int
		want string
	}{
		{0, "xvda"},
		{1, "xvdb"},
		{25, "xvdz"},
		{26, "xvdaa"},
		{27, "xvdab"},
		{51, "xvdaz"},
		{52, "xvdba"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, diskDevice(tt.node), "node %d", tt.node)
	}
}

func TestCreateVdisFailureRollsBackEverything(t *testing.T) {
	client := platformtest.New()
	client.FailCreateVdiOn = 2
	p := New(client, "sr-1")
	rb := NewRollback()

	vm, err := p.CreateVm(context.Background(), testMetadata(), "net-1", rb)
	require.NoError(t, err)

	chains := map[int]api.DiskChain{
		0: {{Node: 0, Capacity: 10, Label: "disk-0"}},
		1: {{Node: 1, Capacity: 10, Label: "disk-1"}},
		2: {{Node: 2, Capacity: 10, Label: "disk-2"}},
	}
	_, err = p.CreateVdis(context.Background(), vm, chains, rb)
	require.Error(t, err)

	rb.Run(context.Background())

	// both the vm and the disk created before the failure are destroyed
	require.Len(t, client.DestroyedVms, 1)
	assert.Equal(t, vm, client.DestroyedVms[0])
	require.Len(t, client.DestroyedVdis, 1)
	assert.Equal(t, client.CreatedVdis[0], client.DestroyedVdis[0])
}

func TestRollbackReverseOrderAndOnce(t *testing.T) {
	rb := NewRollback()
	var order []string
	rb.Add("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	rb.Add("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("rollback step failed")
	})
	rb.Add("third", func(context.Context) error {
		order = append(order, "third")
		return nil
	})

	rb.Run(context.Background())
	// a failing step does not stop the remaining ones
	assert.Equal(t, []string{"third", "second", "first"}, order)

	rb.Run(context.Background())
	assert.Len(t, order, 3)
}

func TestRollbackDiscard(t *testing.T) {
	rb := NewRollback()
	fired := false
	rb.Add("noop", func(context.Context) error {
		fired = true
		return nil
	})
	rb.Discard()
	rb.Run(context.Background())
	assert.False(t, fired)
}
