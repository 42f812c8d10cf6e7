package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/importer"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/pkg/metrics"
	"github.com/kubev2v/migration-executor/pkg/progress"
)

// warmImport pre-copies everything except each chain's active segment while
// the source keeps running, then stops the source and copies only the final
// deltas. Phase 1 for every node completes before the source is powered off
// and any phase-2 write begins, which keeps the cutover window to the final
// deltas alone.
//
// The returned flag reports whether the destination disks hold the source's
// final state: false when stopping the source was not allowed, in which case
// the final deltas were never transferred and the destination must not be
// handed over.
func (m *Migrator) warmImport(ctx context.Context, task *progress.Task, meta *api.SourceVmMetadata,
	chains map[int]api.DiskChain, vdis map[int]platform.VdiRef, stopSource bool) (bool, error) {

	if !meta.IsRunning() {
		if err := m.coldImport(ctx, task, meta, chains, vdis, stopSource); err != nil {
			return false, err
		}
		return true, nil
	}

	// every node must have its destination disk before any worker starts
	for node := range chains {
		if _, ok := vdis[node]; !ok {
			return false, fmt.Errorf("%w: node %d", ErrMissingDestinationDisk, node)
		}
	}

	parents := map[int]importer.Image{}
	var parentsMu sync.Mutex
	defer func() {
		for _, img := range parents {
			_ = img.Close()
		}
	}()

	span := task.Sub("warm-precopy")
	phaseStart := time.Now()

	var g errgroup.Group
	for node, nodeChain := range chains {
		if len(nodeChain) < 2 {
			// nothing pre-copyable without a prior snapshot
			continue
		}
		vdi := vdis[node]
		g.Go(func() error {
			span.Infof("pre-copying %d of %d segments for node %d", len(nodeChain)-1, len(nodeChain), node)
			parent, err := m.engine.ImportChain(ctx, nodeChain[:len(nodeChain)-1], vdi, importer.Options{
				Thin:     m.thin,
				KeepOpen: true,
			})
			if err != nil {
				return fmt.Errorf("node %d: %w", node, err)
			}
			parentsMu.Lock()
			parents[node] = parent
			parentsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.Done()
		return false, err
	}
	span.Done()
	metrics.ObservePhaseDuration("warm-precopy", time.Since(phaseStart))

	if !stopSource {
		task.Warnf("source left running, its final disk state was not transferred")
		return false, nil
	}

	if err := m.source.PowerOff(ctx, meta.ID); err != nil {
		return false, err
	}

	span = task.Sub("warm-cutover")
	defer span.Done()
	phaseStart = time.Now()

	var cutover errgroup.Group
	for node, nodeChain := range chains {
		vdi := vdis[node]
		cutover.Go(func() error {
			span.Infof("importing final segment for node %d", node)
			_, err := m.engine.ImportChain(ctx, nodeChain[len(nodeChain)-1:], vdi, importer.Options{
				Thin:   m.thin,
				Parent: parents[node],
			})
			if err != nil {
				return fmt.Errorf("node %d: %w", node, err)
			}
			return nil
		})
	}
	if err := cutover.Wait(); err != nil {
		return false, err
	}
	metrics.ObservePhaseDuration("warm-cutover", time.Since(phaseStart))
	return true, nil
}
