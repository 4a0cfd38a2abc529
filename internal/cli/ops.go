package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

var opSummaries = map[temporal.Op]string{
	temporal.OpAddDuration:        "time-like + duration, same unit or a coarser duration",
	temporal.OpSubtractDuration:   "time-like - duration, same unit or a coarser duration",
	temporal.OpAddInterval:        "timestamp + calendar interval (months, days, nanoseconds)",
	temporal.OpSubtractTimestamps: "time-like - time-like of the same kind and unit, as a duration",
}

func newOpsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the supported operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, op := range temporal.Ops() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", op, opSummaries[op]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", Name, Version)
			return err
		},
	}
}
