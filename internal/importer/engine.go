package importer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kubev2v/migration-executor/internal/api"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/pkg/metrics"
)

// ErrMissingParentImage is returned when a chain element is a delta but no
// opened predecessor is available to decode it against.
var ErrMissingParentImage = errors.New("delta disk has no parent image to decode against")

// Options steer one ImportChain call.
type Options struct {
	// Thin requests copying only allocated regions, which forces the
	// incremental container wire format.
	Thin bool
	// Parent is the opened representation retained from a prior call,
	// used to decode a leading delta element (warm cutover phase 2).
	Parent Image
	// KeepOpen leaves the final element's image open and returns it so a
	// later call can use it as Parent. The caller owns closing it.
	KeepOpen bool
}

type Engine struct {
	codec  Codec
	client platform.Client
}

func NewEngine(codec Codec, client platform.Client) *Engine {
	return &Engine{codec: codec, client: client}
}

// ImportChain materializes each element of chain in order, oldest first, and
// writes the reconstructed final state into vdi with a single push-style
// import. A full element opens fresh; a delta element decodes against the
// immediately preceding element's opened representation. The wire format is
// the incremental container when the transfer is thin or a parent was
// supplied, and the full raw address space otherwise.
//
// The returned image is nil unless opts.KeepOpen is set.
func (e *Engine) ImportChain(ctx context.Context, chain api.DiskChain, vdi platform.VdiRef, opts Options) (Image, error) {
	if len(chain) == 0 {
		return nil, errors.New("empty disk chain")
	}

	current := opts.Parent
	// images opened by this call; the final one may be handed back open
	var opened []Image
	closeOpened := func(keepLast bool) {
		for i, img := range opened {
			if keepLast && i == len(opened)-1 {
				continue
			}
			_ = img.Close()
		}
	}

	for _, desc := range chain {
		var (
			img Image
			err error
		)
		if desc.Delta {
			if current == nil {
				closeOpened(false)
				return nil, fmt.Errorf("%w: %s", ErrMissingParentImage, desc.Label)
			}
			img, err = e.codec.OpenDelta(ctx, desc, current)
		} else {
			img, err = e.codec.OpenFull(ctx, desc, opts.Thin)
		}
		if err != nil {
			closeOpened(false)
			return nil, fmt.Errorf("opening %s: %w", desc.Label, err)
		}
		opened = append(opened, img)
		current = img
	}

	format := platform.FormatRaw
	if opts.Thin || opts.Parent != nil {
		format = platform.FormatVhd
	}

	stream, err := current.Stream(ctx, format)
	if err != nil {
		closeOpened(false)
		return nil, fmt.Errorf("streaming %s: %w", chain[len(chain)-1].Label, err)
	}
	counting := &countingReader{r: stream}

	err = e.client.ImportContent(ctx, vdi, counting, format)
	_ = stream.Close()
	if err != nil {
		closeOpened(false)
		return nil, fmt.Errorf("importing into %s: %w", vdi, err)
	}

	metrics.AddDiskBytesWritten(string(format), counting.n)
	metrics.IncreaseDiskImportsTotal(string(format))
	zap.S().Named("importer").Infof("imported %d bytes into %s as %s", counting.n, vdi, format)

	if opts.KeepOpen {
		closeOpened(true)
		return current, nil
	}
	closeOpened(false)
	return nil, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
