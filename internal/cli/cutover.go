package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kubev2v/migration-executor/internal/migration"
	"github.com/kubev2v/migration-executor/internal/platform"
	"github.com/kubev2v/migration-executor/internal/replication"
)

type CutoverOptions struct {
	GlobalOptions

	Start         bool
	DestroySource bool
}

func DefaultCutoverOptions() *CutoverOptions {
	return &CutoverOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Start:         true,
	}
}

func NewCmdCutover() *cobra.Command {
	o := DefaultCutoverOptions()
	cmd := &cobra.Command{
		Use:   "cutover VM_ID",
		Short: "Migrate one VM warm through the replication engine: full copy live, delta copy after shutdown.",
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

func (o *CutoverOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Start, "start", o.Start, "Power the destination VM on once discovered.")
	fs.BoolVar(&o.DestroySource, "destroy-source", o.DestroySource, "Destroy the source VM, only after the destination started.")
}

func (o *CutoverOptions) Validate() error {
	if err := o.GlobalOptions.Validate(); err != nil {
		return err
	}
	if o.config.Replication.Endpoint == "" {
		return fmt.Errorf("replication endpoint must be set for a cutover migration")
	}
	if o.DestroySource && !o.Start {
		return fmt.Errorf("--destroy-source needs --start, the source is only destroyed after the destination booted")
	}
	return nil
}

func (o *CutoverOptions) Run(ctx context.Context, vmID string) error {
	dst, err := o.destinationClient()
	if err != nil {
		return err
	}

	engine := replication.NewHttpEngine(o.config.Replication.Endpoint, o.config.Replication.Token, o.config.Replication.PollInterval)
	migrator := migration.NewCutoverMigrator(dst, engine)

	vm, err := migrator.Run(ctx, platform.VmRef(vmID), migration.CutoverOptions{
		StorageID:     o.config.Destination.StorageID,
		Start:         o.Start,
		DestroySource: o.DestroySource,
	})
	if err != nil {
		return err
	}

	fmt.Printf("cutover complete, destination vm %s\n", vm)
	return nil
}
