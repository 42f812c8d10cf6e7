package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/internal/replication"
	"github.com/kubev2v/migration-executor/pkg/metrics"
	"github.com/kubev2v/migration-executor/pkg/progress"
)

// CutoverOptions steer a replication-cutover migration.
type CutoverOptions struct {
	// StorageID is the destination storage the replication job targets.
	StorageID string
	// Start powers the destination on once discovered and unblocked.
	Start bool
	// DestroySource removes the source VM, only ever after the destination
	// started successfully.
	DestroySource bool
}

// CutoverMigrator is the alternative warm path: it delegates data copy to an
// external one-shot replication engine, running the same job twice to get a
// full copy followed by a final delta, then locates the resulting VM by its
// job tags.
type CutoverMigrator struct {
	client platform.Client
	engine replication.Engine
}

func NewCutoverMigrator(client platform.Client, engine replication.Engine) *CutoverMigrator {
	return &CutoverMigrator{client: client, engine: engine}
}

// Run migrates sourceVM by replication cutover and returns the discovered
// destination VM. The source is stopped between the two replication passes;
// discovery failures leave it stopped but otherwise untouched.
func (c *CutoverMigrator) Run(ctx context.Context, sourceVm platform.VmRef, opts CutoverOptions) (platform.VmRef, error) {
	task := progress.New("replication-cutover")
	defer task.Done()

	target, err := c.run(ctx, task, sourceVm, opts)
	if err != nil {
		metrics.IncreaseMigrationsTotal("replication", "failure")
		return "", err
	}
	metrics.IncreaseMigrationsTotal("replication", "success")
	return target, nil
}

func (c *CutoverMigrator) run(ctx context.Context, task *progress.Task, sourceVm platform.VmRef, opts CutoverOptions) (platform.VmRef, error) {
	job := replication.NewJob(string(sourceVm), opts.StorageID)

	span := task.Sub("initial-copy")
	if err := c.engine.Run(ctx, job.Spec()); err != nil {
		span.Done()
		return "", fmt.Errorf("initial replication pass: %w", err)
	}
	span.Done()

	if err := c.stopSource(ctx, sourceVm); err != nil {
		return "", err
	}

	// same job id: the engine recognizes its retained state and transfers
	// only the changes since the first pass
	span = task.Sub("delta-copy")
	if err := c.engine.Run(ctx, job.Spec()); err != nil {
		span.Done()
		return "", fmt.Errorf("incremental replication pass: %w", err)
	}
	span.Done()

	target, err := c.discoverTarget(ctx, job)
	if err != nil {
		return "", err
	}
	task.Infof("replication produced destination vm %s", target)

	if err := c.client.UnblockStart(ctx, target); err != nil {
		return "", fmt.Errorf("unblocking destination start: %w", err)
	}

	if opts.Start {
		if err := c.client.Start(ctx, target); err != nil {
			return "", fmt.Errorf("starting destination vm: %w", err)
		}
		if opts.DestroySource {
			// only ever after the destination proved bootable
			if err := c.client.DestroyVm(ctx, sourceVm); err != nil {
				return "", fmt.Errorf("destroying source vm: %w", err)
			}
		}
	}

	return target, nil
}

// stopSource shuts the source down, falling back to a forced shutdown, and
// blocks its start operations so nothing dual-writes while the destination
// takes over.
func (c *CutoverMigrator) stopSource(ctx context.Context, vm platform.VmRef) error {
	if err := c.client.Shutdown(ctx, vm); err != nil {
		zap.S().Named("cutover").Warnf("graceful shutdown of %s failed, forcing: %v", vm, err)
		if err := c.client.HardShutdown(ctx, vm); err != nil {
			return fmt.Errorf("stopping source vm: %w", err)
		}
	}
	if err := c.client.BlockStart(ctx, vm, "migrated away, do not start"); err != nil {
		return fmt.Errorf("blocking source start: %w", err)
	}
	return nil
}

// discoverTarget locates the VM the replication job produced by matching the
// job's three tags plus the start-blocked marker the engine leaves on it.
// Exactly one candidate must match.
func (c *CutoverMigrator) discoverTarget(ctx context.Context, job replication.Job) (platform.VmRef, error) {
	candidates, err := c.client.FindVms(ctx, platform.VmQuery{
		Tags:         job.Tags(),
		StartBlocked: true,
	})
	if err != nil {
		return "", fmt.Errorf("locating replication target: %w", err)
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: job %s", ErrTargetNotFound, job.ID)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w: job %s matched %d vms", ErrAmbiguousTarget, job.ID, len(candidates))
	}
}
