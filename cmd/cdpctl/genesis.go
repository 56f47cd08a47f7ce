package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdpproxy/core/genesis"
)

func newGenesisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Inspect genesis files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Parse and validate a genesis YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := genesis.LoadSpec(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "genesis time:  %s\n", spec.GenesisTimestamp().UTC().Format("2006-01-02T15:04:05Z"))
			fmt.Fprintf(out, "debt token:    %s (%s)\n", spec.DebtToken.Symbol, spec.DebtToken.Address)
			fmt.Fprintf(out, "collateral:    %d\n", len(spec.Collateral))
			fmt.Fprintf(out, "aggregators:   %d\n", len(spec.Dexes))
			fmt.Fprintf(out, "funded:        %d\n", len(spec.Alloc))
			if w := spec.Window(); w > 0 {
				fmt.Fprintf(out, "window:        %s\n", w)
			}
			return nil
		},
	})
	return cmd
}
