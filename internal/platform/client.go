// Package platform defines the destination control-plane boundary: creating
// and destroying VM and disk objects, wiring network interfaces, power and
// start-block management, and pushing disk content streams.
package platform

import (
	"context"
	"io"

	"github.com/kubev2v/migration-executor/internal/api"
)

// Format is the wire format of a disk content stream pushed to the
// destination.
type Format string

const (
	// FormatRaw is a full raw byte stream of the disk address space.
	FormatRaw Format = "raw"
	// FormatVhd is the incremental/differencing container format, used for
	// thin transfers and deltas against an already-written parent.
	FormatVhd Format = "vhd"
)

// VmRef and VdiRef are opaque handles to destination objects.
type (
	VmRef  string
	VdiRef string
)

// VmSpec describes the destination VM shell mirrored from the source.
type VmSpec struct {
	NameLabel       string
	NameDescription string
	MemoryBytes     int64
	CpuCount        int
	Firmware        api.FirmwareType
}

// VdiSpec describes one empty destination virtual disk.
type VdiSpec struct {
	NameLabel       string
	NameDescription string
	Size            int64
	StorageID       string
}

// VifSpec describes one destination network interface.
type VifSpec struct {
	NetworkID  string
	MacAddress string
	Device     string
}

// VmQuery selects destination VMs by tag set and start-block state. All
// listed tags must be present on a match.
type VmQuery struct {
	Tags         []string
	StartBlocked bool
}

// Client is the destination control plane. Every call suspends until the
// remote side responds; any failure is fatal to the current migration attempt
// and is never retried here.
type Client interface {
	CreateVm(ctx context.Context, spec VmSpec) (VmRef, error)
	DestroyVm(ctx context.Context, vm VmRef) error
	SetVmNameLabel(ctx context.Context, vm VmRef, label string) error

	// BlockStart blocks the VM's start and start-on operations with an
	// explanatory reason; UnblockStart clears both.
	BlockStart(ctx context.Context, vm VmRef, reason string) error
	UnblockStart(ctx context.Context, vm VmRef) error

	CreateVdi(ctx context.Context, spec VdiSpec) (VdiRef, error)
	DestroyVdi(ctx context.Context, vdi VdiRef) error
	AttachVdi(ctx context.Context, vm VmRef, vdi VdiRef, device string) error

	AllowedVifDevices(ctx context.Context, vm VmRef) ([]string, error)
	CreateVif(ctx context.Context, vm VmRef, spec VifSpec) error

	// ImportContent consumes a single-pass, non-restartable content stream
	// into an existing disk. The stream is read to completion or the call
	// fails.
	ImportContent(ctx context.Context, vdi VdiRef, content io.Reader, format Format) error

	Start(ctx context.Context, vm VmRef) error
	// Shutdown is a graceful guest shutdown; HardShutdown is the forced
	// fallback when graceful fails.
	Shutdown(ctx context.Context, vm VmRef) error
	HardShutdown(ctx context.Context, vm VmRef) error

	FindVms(ctx context.Context, q VmQuery) ([]VmRef, error)
}
