package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func vaultArg(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid vault id %q", raw)
	}
	return id, nil
}

func newQueryCmds(client func() *gatewayClient) []*cobra.Command {
	fetch := func(cmd *cobra.Command, path string) error {
		var out json.RawMessage
		if err := client().get(cmd.Context(), path, &out); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
	byVault := func(use, short, prefix string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <vault-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := vaultArg(args[0])
				if err != nil {
					return err
				}
				return fetch(cmd, fmt.Sprintf("/v1/%s/%d", prefix, id))
			},
		}
	}

	account := &cobra.Command{
		Use:   "account <owner>",
		Short: "Show the smart account of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg("owner", args[0])
			if err != nil {
				return err
			}
			return fetch(cmd, "/v1/accounts/"+owner.Hex())
		},
	}

	var to string
	amounts := &cobra.Command{
		Use:   "amounts <vault-id>",
		Short: "Preview the amounts of an automated rebalance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := vaultArg(args[0])
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/automation/%d/amounts", id)
			if to != "" {
				dest, err := parseAddressArg("destination collateral", to)
				if err != nil {
					return err
				}
				path += "?" + url.Values{"to": {dest.Hex()}}.Encode()
			}
			return fetch(cmd, path)
		},
	}
	amounts.Flags().StringVar(&to, "to", "", "destination collateral, defaults to the configured one")

	return []*cobra.Command{
		account,
		byVault("vault", "Show a vault and its collateral ratio", "vaults"),
		byVault("automation", "Show the automation settings of a vault", "automation"),
		byVault("management", "Show the management settings of a vault", "management"),
		amounts,
	}
}
