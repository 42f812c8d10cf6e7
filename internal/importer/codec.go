// Package importer materializes a disk-node's change chain into a content
// stream and pushes it into the destination disk, choosing the wire format
// from the transfer options.
package importer

import (
	"context"
	"io"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/platform"
)

// Image is the opened representation of one chain element. It stays open
// until Close so a later delta can be decoded against it; the warm path
// retains the last phase-1 image as the parent for the cutover delta.
type Image interface {
	// Stream produces a finite, single-pass, non-restartable byte stream of
	// the reconstructed content in the requested wire format.
	Stream(ctx context.Context, format platform.Format) (io.ReadCloser, error)
	Close() error
}

// Codec opens snapshot and delta disk images. Implementations parse the
// source's on-disk formats; this package only cares about the boundary.
type Codec interface {
	// OpenFull opens a full image as a random-access source. With thin set,
	// the implementation reads the image's allocation table so unallocated
	// regions are skipped when streaming.
	OpenFull(ctx context.Context, desc api.DiskDescriptor, thin bool) (Image, error)
	// OpenDelta opens a difference image decoded against the opened
	// representation of its immediate chain predecessor.
	OpenDelta(ctx context.Context, desc api.DiskDescriptor, parent Image) (Image, error)
}
