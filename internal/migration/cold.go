package migration

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/importer"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/pkg/progress"
)

// coldImport stops the source when needed, then imports every disk-node's
// full chain concurrently. Node imports are joined at a barrier: the first
// failure propagates only after every node started in the wave has settled,
// in-flight siblings are never cancelled.
func (m *Migrator) coldImport(ctx context.Context, task *progress.Task, meta *api.SourceVmMetadata,
	chains map[int]api.DiskChain, vdis map[int]platform.VdiRef, stopSource bool) error {

	// every node must have its destination disk before the source is touched
	// or any worker starts
	for node := range chains {
		if _, ok := vdis[node]; !ok {
			return fmt.Errorf("%w: node %d", ErrMissingDestinationDisk, node)
		}
	}

	if meta.IsRunning() {
		if !stopSource {
			return ErrCannotImportRunningSource
		}
		if err := m.source.PowerOff(ctx, meta.ID); err != nil {
			return err
		}
	}

	span := task.Sub("cold-import")
	defer span.Done()

	var g errgroup.Group
	for node, nodeChain := range chains {
		vdi := vdis[node]
		g.Go(func() error {
			span.Infof("importing %d segments into node %d", len(nodeChain), node)
			_, err := m.engine.ImportChain(ctx, nodeChain, vdi, importer.Options{Thin: m.thin})
			if err != nil {
				return fmt.Errorf("node %d: %w", node, err)
			}
			return nil
		})
	}
	return g.Wait()
}
