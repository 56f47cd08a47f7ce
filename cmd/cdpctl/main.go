package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultEndpoint = "http://127.0.0.1:8547"
	tokenEnv        = "CDP_GATEWAY_TOKEN"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var endpoint string
	root := &cobra.Command{
		Use:           "cdpctl",
		Short:         "Operate a cdpd node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&endpoint, "endpoint", defaultEndpoint, "gateway base URL")
	client := func() *gatewayClient {
		return newGatewayClient(endpoint, os.Getenv(tokenEnv))
	}

	root.AddCommand(newGenesisCmd(), newTxCmd(client), newEventsCmd(client))
	root.AddCommand(newQueryCmds(client)...)
	return root
}
