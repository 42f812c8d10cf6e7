// Package chain turns a snapshot tree plus the current disk set into an
// ordered change chain per disk-node.
package chain

import (
	"errors"
	"fmt"

	"github.com/kubev2v/migration-executor/internal/api"
)

// MaxDiskCapacity is the hard per-disk size ceiling. The incremental
// container format used for thin transfers cannot address more than 2 TiB.
const MaxDiskCapacity = 2 * 1024 * 1024 * 1024 * 1024

var (
	// ErrDiskTooLarge is returned when any descriptor in a chain exceeds
	// MaxDiskCapacity. The check runs before any destination resource is
	// created.
	ErrDiskTooLarge = errors.New("disk exceeds maximum supported capacity")
	// ErrMalformedSnapshotTree is returned when parent links from the
	// current snapshot do not reach a root, either because a parent
	// reference dangles or because the links form a cycle.
	ErrMalformedSnapshotTree = errors.New("malformed snapshot tree")
)

// Build walks the snapshot tree from the current snapshot up to its root,
// collects each snapshot's disk layers oldest first, appends the current disk
// set as the newest element and groups the result by disk-node. tree may be
// nil for a VM without snapshots, in which case each node's chain holds only
// its current descriptor.
//
// Build has no side effects and the returned chains are not mutated by later
// stages.
func Build(disks []api.DiskDescriptor, tree *api.SnapshotTree) (map[int]api.DiskChain, error) {
	var layers [][]api.DiskDescriptor

	if tree != nil {
		visited := map[string]bool{}
		for id := tree.Current; id != ""; {
			if visited[id] {
				return nil, fmt.Errorf("%w: snapshot %q revisited while walking parent links", ErrMalformedSnapshotTree, id)
			}
			visited[id] = true
			snap, ok := tree.Snapshots[id]
			if !ok {
				return nil, fmt.Errorf("%w: snapshot %q not found", ErrMalformedSnapshotTree, id)
			}
			layers = append(layers, snap.Disks)
			id = snap.Parent
		}
		// walked newest to oldest, chains want oldest first
		for i, j := 0, len(layers)-1; i < j; i, j = i+1, j-1 {
			layers[i], layers[j] = layers[j], layers[i]
		}
	}
	layers = append(layers, disks)

	chains := map[int]api.DiskChain{}
	for _, layer := range layers {
		for _, desc := range layer {
			if desc.Capacity > MaxDiskCapacity {
				return nil, fmt.Errorf("%w: %q is %d bytes", ErrDiskTooLarge, desc.Label, desc.Capacity)
			}
			chains[desc.Node] = append(chains[desc.Node], desc)
		}
	}

	return chains, nil
}
