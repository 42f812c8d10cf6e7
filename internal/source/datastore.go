package source

import (
	"context"
	"fmt"
	"io"

	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/vim25/soap"

	"github.com/kubev2v/migration-executor/internal/api"
)

// Open fetches a disk backing file from its datastore as a byte stream,
// satisfying the import engine's FileOpener.
func (c *VCenterClient) Open(ctx context.Context, loc api.DiskLocation) (io.ReadCloser, error) {
	finder := find.NewFinder(c.client.Client)

	dcs, err := finder.DatacenterList(ctx, "*")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", loc.Path, err)
	}
	for _, dc := range dcs {
		finder.SetDatacenter(dc)
		ds, err := finder.Datastore(ctx, loc.Datastore)
		if err != nil {
			continue
		}
		r, _, err := ds.Download(ctx, loc.Path, &soap.DefaultDownload)
		if err != nil {
			return nil, fmt.Errorf("opening [%s] %s: %w", loc.Datastore, loc.Path, err)
		}
		return r, nil
	}

	return nil, fmt.Errorf("datastore %q not found on source", loc.Datastore)
}
