package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kubev2v/migration-executor/internal/importer"
	"github.com/kubev2v/migration-executor/internal/migration"
)

type MigrateOptions struct {
	GlobalOptions

	Warm       bool
	StopSource bool
	Thin       bool
	Network    string
}

func DefaultMigrateOptions() *MigrateOptions {
	return &MigrateOptions{
		GlobalOptions: DefaultGlobalOptions(),
		StopSource:    true,
	}
}

func NewCmdMigrate() *cobra.Command {
	o := DefaultMigrateOptions()
	cmd := &cobra.Command{
		Use:   "migrate VM_ID",
		Short: "Migrate one VM from the source hypervisor to the destination platform.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *MigrateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Warm, "warm", o.Warm, "Pre-copy disks while the source keeps running, stop it only for the final deltas.")
	fs.BoolVar(&o.StopSource, "stop-source", o.StopSource, "Allow powering the source VM off.")
	fs.BoolVar(&o.Thin, "thin", o.Thin, "Copy only allocated regions (needs a format-aware codec).")
	fs.StringVar(&o.Network, "network", o.Network, "Destination network for the VM's interfaces (defaults to the configured one).")
}

func (o *MigrateOptions) Run(ctx context.Context, vmID string) error {
	src, err := o.connectSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close(ctx)

	dst, err := o.destinationClient()
	if err != nil {
		return err
	}

	network := o.Network
	if network == "" {
		network = o.config.Destination.NetworkID
	}

	migrator := migration.NewMigrator(src, dst, importer.NewRawCodec(src), o.config.Destination.StorageID, o.Thin)
	vm, err := migrator.Migrate(ctx, vmID, migration.Options{
		Warm:       o.Warm,
		StopSource: o.StopSource,
		NetworkID:  network,
	})
	if err != nil {
		return err
	}

	fmt.Printf("migrated %s to destination vm %s\n", vmID, vm)
	return nil
}
