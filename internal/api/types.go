// Package api holds the transferable representation of a source VM: the
// metadata snapshot taken at inventory time and the derived per-disk chains
// the import engine consumes.
package api

type PowerState string

const (
	PowerStateRunning PowerState = "running"
	PowerStateStopped PowerState = "stopped"
)

type FirmwareType string

const (
	FirmwareBios FirmwareType = "bios"
	FirmwareUefi FirmwareType = "uefi"
)

// NetworkAdapter describes one source NIC. The MAC address is preserved on
// the destination interface.
type NetworkAdapter struct {
	Label      string `json:"label"`
	MacAddress string `json:"macAddress"`
}

// DiskLocation points at a disk file on the source side: the datastore
// (container) it lives in and the path relative to it.
type DiskLocation struct {
	Datastore string `json:"datastore"`
	Path      string `json:"path"`
}

// DiskDescriptor is one layer of one disk-node. A descriptor either carries a
// full image or a delta against its predecessor in the chain.
type DiskDescriptor struct {
	// Node is the logical disk slot this layer belongs to, independent of
	// which snapshot produced it.
	Node        int          `json:"node"`
	Capacity    int64        `json:"capacity"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Location    DiskLocation `json:"location"`
	Delta       bool         `json:"delta"`
}

// Snapshot is one node of the source snapshot tree. An empty Parent marks a
// root.
type Snapshot struct {
	ID     string           `json:"id"`
	Parent string           `json:"parent,omitempty"`
	Disks  []DiskDescriptor `json:"disks"`
}

// SnapshotTree is the source VM's snapshot set plus a pointer to the snapshot
// the current disk state descends from. Following parent links from Current
// must terminate at a root without revisiting an identifier.
type SnapshotTree struct {
	Current   string              `json:"current"`
	Snapshots map[string]Snapshot `json:"snapshots"`
}

// DiskChain is the ordered per-node sequence of layers, oldest ancestor
// first, current-state descriptor last. Built once per migration and not
// mutated afterwards.
type DiskChain []DiskDescriptor

// SourceVmMetadata is a read-only snapshot of a source VM at inventory time.
type SourceVmMetadata struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Firmware    FirmwareType     `json:"firmware"`
	MemoryBytes int64            `json:"memoryBytes"`
	CpuCount    int              `json:"cpuCount"`
	PowerState  PowerState       `json:"powerState"`
	Adapters    []NetworkAdapter `json:"adapters"`
	Disks       []DiskDescriptor `json:"disks"`
	// Snapshots is nil for a VM without snapshots.
	Snapshots *SnapshotTree `json:"snapshots,omitempty"`
}

// IsRunning reports whether the VM was powered on at inventory time.
func (m *SourceVmMetadata) IsRunning() bool {
	return m.PowerState == PowerStateRunning
}

// VmSummary is the short listing form returned by the inventory client.
type VmSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	PowerState PowerState `json:"powerState"`
}
