// Package platformtest provides an in-memory destination control plane for
// unit tests.
package platformtest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kubev2v/migration-executor/internal/platform"
)

// ImportRecord captures one content push into a destination disk.
type ImportRecord struct {
	Vdi     platform.VdiRef
	Format  platform.Format
	Content string
	// Seq orders all imports across goroutines; Started and Finished bound
	// the time the push was in flight.
	Seq      int
	Started  time.Time
	Finished time.Time
}

// Fake is an in-memory platform.Client recording every mutation. Configure
// the Fail* fields to inject failures.
type Fake struct {
	mu sync.Mutex

	nextRef int
	seq     int

	CreatedVms    []platform.VmRef
	DestroyedVms  []platform.VmRef
	CreatedVdis   []platform.VdiRef
	DestroyedVdis []platform.VdiRef
	Attached      map[platform.VdiRef]platform.VmRef
	Vifs          []platform.VifSpec
	Blocked       map[platform.VmRef]string
	Unblocked     []platform.VmRef
	Labels        map[platform.VmRef]string
	Imports       []ImportRecord
	Started       []platform.VmRef
	Shutdowns     []platform.VmRef
	HardShutdowns []platform.VmRef

	// FailCreateVdiOn fails the nth CreateVdi call (1-based).
	FailCreateVdiOn int
	createVdiCalls  int
	// FailImportTo fails pushes into one disk.
	FailImportTo platform.VdiRef
	// FailShutdown makes graceful shutdown fail, forcing the caller onto
	// HardShutdown.
	FailShutdown bool
	// Delays slows pushes into specific disks, letting tests observe the
	// ordering of concurrent imports.
	Delays map[platform.VdiRef]time.Duration
	// FindResults is returned by FindVms.
	FindResults []platform.VmRef

	// AllowedDevices defaults to 7 slots when empty.
	AllowedDevices []string
}

var _ platform.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Attached: map[platform.VdiRef]platform.VmRef{},
		Blocked:  map[platform.VmRef]string{},
		Labels:   map[platform.VmRef]string{},
	}
}

func (f *Fake) ref(kind string) string {
	f.nextRef++
	return fmt.Sprintf("%s-%d", kind, f.nextRef)
}

func (f *Fake) CreateVm(ctx context.Context, spec platform.VmSpec) (platform.VmRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm := platform.VmRef(f.ref("vm"))
	f.CreatedVms = append(f.CreatedVms, vm)
	f.Labels[vm] = spec.NameLabel
	return vm, nil
}

func (f *Fake) DestroyVm(ctx context.Context, vm platform.VmRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DestroyedVms = append(f.DestroyedVms, vm)
	return nil
}

func (f *Fake) SetVmNameLabel(ctx context.Context, vm platform.VmRef, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Labels[vm] = label
	return nil
}

func (f *Fake) BlockStart(ctx context.Context, vm platform.VmRef, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Blocked[vm] = reason
	return nil
}

func (f *Fake) UnblockStart(ctx context.Context, vm platform.VmRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Blocked, vm)
	f.Unblocked = append(f.Unblocked, vm)
	return nil
}

func (f *Fake) CreateVdi(ctx context.Context, spec platform.VdiSpec) (platform.VdiRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createVdiCalls++
	if f.FailCreateVdiOn > 0 && f.createVdiCalls == f.FailCreateVdiOn {
		return "", fmt.Errorf("injected create vdi failure")
	}
	vdi := platform.VdiRef(f.ref("vdi"))
	f.CreatedVdis = append(f.CreatedVdis, vdi)
	return vdi, nil
}

func (f *Fake) DestroyVdi(ctx context.Context, vdi platform.VdiRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DestroyedVdis = append(f.DestroyedVdis, vdi)
	return nil
}

func (f *Fake) AttachVdi(ctx context.Context, vm platform.VmRef, vdi platform.VdiRef, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attached[vdi] = vm
	return nil
}

func (f *Fake) AllowedVifDevices(ctx context.Context, vm platform.VmRef) ([]string, error) {
	if len(f.AllowedDevices) > 0 {
		return f.AllowedDevices, nil
	}
	return []string{"0", "1", "2", "3", "4", "5", "6"}, nil
}

func (f *Fake) CreateVif(ctx context.Context, vm platform.VmRef, spec platform.VifSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Vifs = append(f.Vifs, spec)
	return nil
}

func (f *Fake) ImportContent(ctx context.Context, vdi platform.VdiRef, content io.Reader, format platform.Format) error {
	started := time.Now()
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	if d := f.Delays[vdi]; d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailImportTo != "" && vdi == f.FailImportTo {
		return fmt.Errorf("injected import failure for %s", vdi)
	}
	f.seq++
	f.Imports = append(f.Imports, ImportRecord{
		Vdi:      vdi,
		Format:   format,
		Content:  string(data),
		Seq:      f.seq,
		Started:  started,
		Finished: time.Now(),
	})
	return nil
}

func (f *Fake) Start(ctx context.Context, vm platform.VmRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, vm)
	return nil
}

func (f *Fake) Shutdown(ctx context.Context, vm platform.VmRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailShutdown {
		return fmt.Errorf("injected shutdown failure")
	}
	f.Shutdowns = append(f.Shutdowns, vm)
	return nil
}

func (f *Fake) HardShutdown(ctx context.Context, vm platform.VmRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HardShutdowns = append(f.HardShutdowns, vm)
	return nil
}

func (f *Fake) FindVms(ctx context.Context, q platform.VmQuery) ([]platform.VmRef, error) {
	return f.FindResults, nil
}

// ImportsInto filters the recorded imports for one disk.
func (f *Fake) ImportsInto(vdi platform.VdiRef) []ImportRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ImportRecord
	for _, rec := range f.Imports {
		if rec.Vdi == vdi {
			out = append(out, rec)
		}
	}
	return out
}
