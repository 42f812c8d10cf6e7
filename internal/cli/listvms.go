package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ListVmsOptions struct {
	GlobalOptions
}

func DefaultListVmsOptions() *ListVmsOptions {
	return &ListVmsOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdListVms() *cobra.Command {
	o := DefaultListVmsOptions()
	cmd := &cobra.Command{
		Use:   "list-vms",
		Short: "List the VMs visible on the source endpoint.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ListVmsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *ListVmsOptions) Run(ctx context.Context) error {
	src, err := o.connectSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close(ctx)

	vms, err := src.ListVms(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tPOWER")
	for _, vm := range vms {
		fmt.Fprintf(w, "%s\t%s\t%s\n", vm.ID, vm.Name, vm.PowerState)
	}
	return nil
}
