// Package migration sequences a whole migration attempt: inventory fetch,
// chain building, destination provisioning, disk import and finalization,
// with rollback of every destination object created by a failed attempt.
package migration

import (
	"context"
	"fmt"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/chain"
	"github.com/kubev2v/migration-executor/internal/importer"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/internal/provision"
	"github.com/kubev2v/migration-executor/internal/source"
	"github.com/kubev2v/migration-executor/pkg/metrics"
	"github.com/kubev2v/migration-executor/pkg/progress"
)

// Options steer one migration attempt.
type Options struct {
	// Warm keeps the source running during the bulk copy and stops it only
	// for the final deltas.
	Warm bool
	// StopSource allows powering the source off. A cold import of a running
	// source fails without it; a warm import skips the cutover phase.
	StopSource bool
	// NetworkID is the destination network every source adapter is mapped
	// onto.
	NetworkID string
}

// Migrator owns the destination objects it creates until the attempt either
// finalizes, transferring them to the caller, or fails and rolls them back.
type Migrator struct {
	source      source.Client
	platform    platform.Client
	provisioner *provision.Provisioner
	engine      *importer.Engine
	thin        bool
}

func NewMigrator(src source.Client, dst platform.Client, codec importer.Codec, storageID string, thin bool) *Migrator {
	return &Migrator{
		source:      src,
		platform:    dst,
		provisioner: provision.New(dst, storageID),
		engine:      importer.NewEngine(codec, dst),
		thin:        thin,
	}
}

func (o Options) mode() string {
	if o.Warm {
		return "warm"
	}
	return "cold"
}

// Migrate moves one VM end to end and returns the destination VM, unlocked
// and ready to start. On any failure after destination objects exist, every
// object created by this attempt is destroyed before the error is returned.
func (m *Migrator) Migrate(ctx context.Context, vmID string, opts Options) (platform.VmRef, error) {
	task := progress.New("migration")
	defer task.Done()

	vm, err := m.migrate(ctx, task, vmID, opts)
	if err != nil {
		metrics.IncreaseMigrationsTotal(opts.mode(), "failure")
		return "", err
	}
	metrics.IncreaseMigrationsTotal(opts.mode(), "success")
	return vm, nil
}

func (m *Migrator) migrate(ctx context.Context, task *progress.Task, vmID string, opts Options) (platform.VmRef, error) {
	meta, err := m.source.GetTransferableMetadata(ctx, vmID)
	if err != nil {
		return "", err
	}
	task.Infof("migrating %q: %d disks, %d adapters, power state %s", meta.Name, len(meta.Disks), len(meta.Adapters), meta.PowerState)

	// pure computation, runs before any destination mutation
	chains, err := chain.Build(meta.Disks, meta.Snapshots)
	if err != nil {
		return "", err
	}

	rb := provision.NewRollback()
	vm, err := m.provisionAndImport(ctx, task, meta, chains, opts, rb)
	if err != nil {
		rb.Run(ctx)
		return "", err
	}
	rb.Discard()
	return vm, nil
}

func (m *Migrator) provisionAndImport(ctx context.Context, task *progress.Task, meta *api.SourceVmMetadata,
	chains map[int]api.DiskChain, opts Options, rb *provision.Rollback) (platform.VmRef, error) {

	vm, err := m.provisioner.CreateVm(ctx, meta, opts.NetworkID, rb)
	if err != nil {
		return "", err
	}

	vdis, err := m.provisioner.CreateVdis(ctx, vm, chains, rb)
	if err != nil {
		return "", err
	}

	if opts.Warm {
		complete, err := m.warmImport(ctx, task, meta, chains, vdis, opts.StopSource)
		if err != nil {
			return "", err
		}
		if !complete {
			// the final deltas were never transferred: the vm keeps its
			// importing label and blocked start until a later attempt
			// finishes the cutover
			task.Infof("destination vm %s left locked, cutover pending", vm)
			return vm, nil
		}
	} else {
		if err := m.coldImport(ctx, task, meta, chains, vdis, opts.StopSource); err != nil {
			return "", err
		}
	}

	if err := m.finalize(ctx, vm, meta); err != nil {
		return "", err
	}
	return vm, nil
}

// finalize clears the importing label and unblocks start operations, handing
// ownership of the destination VM to the caller.
func (m *Migrator) finalize(ctx context.Context, vm platform.VmRef, meta *api.SourceVmMetadata) error {
	if err := m.platform.SetVmNameLabel(ctx, vm, meta.Name); err != nil {
		return fmt.Errorf("clearing importing label: %w", err)
	}
	if err := m.platform.UnblockStart(ctx, vm); err != nil {
		return fmt.Errorf("unblocking start operations: %w", err)
	}
	return nil
}
