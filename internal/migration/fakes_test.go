package migration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/importer"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/internal/replication"
)

type fakeSource struct {
	mu            sync.Mutex
	meta          *api.SourceVmMetadata
	powerOffCalls []string
	failPowerOff  bool
}

func (s *fakeSource) ListVms(ctx context.Context) ([]api.VmSummary, error) {
	return nil, nil
}

func (s *fakeSource) GetTransferableMetadata(ctx context.Context, vmID string) (*api.SourceVmMetadata, error) {
	if s.meta == nil {
		return nil, fmt.Errorf("vm %s not found", vmID)
	}
	return s.meta, nil
}

func (s *fakeSource) PowerOff(ctx context.Context, vmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPowerOff {
		return fmt.Errorf("injected power off failure")
	}
	s.powerOffCalls = append(s.powerOffCalls, vmID)
	return nil
}

type fakeImage struct {
	content string
	closed  bool
}

func (i *fakeImage) Stream(ctx context.Context, format platform.Format) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(format) + ":" + i.content)), nil
}

func (i *fakeImage) Close() error {
	i.closed = true
	return nil
}

type fakeCodec struct{}

func (c *fakeCodec) OpenFull(ctx context.Context, desc api.DiskDescriptor, thin bool) (importer.Image, error) {
	return &fakeImage{content: desc.Label}, nil
}

func (c *fakeCodec) OpenDelta(ctx context.Context, desc api.DiskDescriptor, parent importer.Image) (importer.Image, error) {
	return &fakeImage{content: parent.(*fakeImage).content + "+" + desc.Label}, nil
}

type engineRun struct {
	spec  replication.Spec
	bytes int64
}

// fakeEngine transfers a full payload on a job's first run and only a small
// delta on re-runs of the same job id.
type fakeEngine struct {
	mu       sync.Mutex
	runs     []engineRun
	seen     map[string]bool
	fullSize int64
	delta    int64
	failOn   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{seen: map[string]bool{}, fullSize: 1 << 30, delta: 1 << 20}
}

func (e *fakeEngine) Run(ctx context.Context, spec replication.Spec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOn > 0 && len(e.runs)+1 == e.failOn {
		return fmt.Errorf("injected replication failure")
	}
	transferred := e.fullSize
	if e.seen[spec.ID] {
		transferred = e.delta
	}
	e.seen[spec.ID] = true
	e.runs = append(e.runs, engineRun{spec: spec, bytes: transferred})
	return nil
}

func runningVm(disks int, snapshots int) *api.SourceVmMetadata {
	meta := &api.SourceVmMetadata{
		ID:          "vm-7",
		Name:        "db-server",
		Firmware:    api.FirmwareUefi,
		MemoryBytes: 8 * 1024 * 1024 * 1024,
		CpuCount:    4,
		PowerState:  api.PowerStateRunning,
		Adapters:    []api.NetworkAdapter{{MacAddress: "00:50:56:01:02:03"}},
	}

	if snapshots > 0 {
		meta.Snapshots = &api.SnapshotTree{Snapshots: map[string]api.Snapshot{}}
		parent := ""
		for s := 0; s < snapshots; s++ {
			id := fmt.Sprintf("snap-%d", s)
			snap := api.Snapshot{ID: id, Parent: parent}
			for d := 0; d < disks; d++ {
				snap.Disks = append(snap.Disks, api.DiskDescriptor{
					Node:     d,
					Capacity: 1024,
					Label:    fmt.Sprintf("%s-disk%d", id, d),
					Delta:    s > 0,
				})
			}
			meta.Snapshots.Snapshots[id] = snap
			meta.Snapshots.Current = id
			parent = id
		}
	}

	for d := 0; d < disks; d++ {
		meta.Disks = append(meta.Disks, api.DiskDescriptor{
			Node:     d,
			Capacity: 1024,
			Label:    fmt.Sprintf("current-disk%d", d),
			Delta:    snapshots > 0,
		})
	}
	return meta
}

func stoppedVm(disks int, snapshots int) *api.SourceVmMetadata {
	meta := runningVm(disks, snapshots)
	meta.PowerState = api.PowerStateStopped
	return meta
}
