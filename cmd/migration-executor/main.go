package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kubev2v/migration-executor/internal/cli"
)

func main() {
	command := NewMigrationExecutorCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewMigrationExecutorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migration-executor [flags] [options]",
		Short: "migration-executor moves VMs from a source hypervisor onto the destination platform.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdListVms())
	cmd.AddCommand(cli.NewCmdMigrate())
	cmd.AddCommand(cli.NewCmdCutover())

	return cmd
}
