package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"cdpproxy/core/vm"
	"cdpproxy/native/proxy"
)

type submitBody struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Gas   uint64 `json:"gas,omitempty"`
	Data  string `json:"data,omitempty"`
}

type txFlags struct {
	from  string
	value string
	gas   uint64
}

func (f *txFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "sender address")
	cmd.Flags().StringVar(&f.value, "value", "", "native value in base units")
	cmd.Flags().Uint64Var(&f.gas, "gas", 0, "gas forwarded to the call, zero for unlimited")
	_ = cmd.MarkFlagRequired("from")
}

func (f *txFlags) body(to common.Address, data []byte) (submitBody, error) {
	if !common.IsHexAddress(f.from) {
		return submitBody{}, fmt.Errorf("invalid sender %q", f.from)
	}
	if f.value != "" {
		if v, ok := new(big.Int).SetString(f.value, 10); !ok || v.Sign() < 0 {
			return submitBody{}, fmt.Errorf("invalid value %q", f.value)
		}
	}
	body := submitBody{From: common.HexToAddress(f.from).Hex(), To: to.Hex(), Value: f.value, Gas: f.gas}
	if len(data) > 0 {
		body.Data = hexutil.Encode(data)
	}
	return body, nil
}

func parseAddressArg(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func newTxCmd(client func() *gatewayClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Submit transactions through the gateway",
	}

	send := func(cmd *cobra.Command, body submitBody) error {
		var receipt map[string]interface{}
		if err := client().post(cmd.Context(), "/v1/tx", body, &receipt); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), receipt)
	}

	var raw txFlags
	var to, data string
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a raw call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := parseAddressArg("target", to)
			if err != nil {
				return err
			}
			payload, err := hexutil.Decode(data)
			if data != "" && err != nil {
				return fmt.Errorf("invalid calldata: %w", err)
			}
			body, err := raw.body(target, payload)
			if err != nil {
				return err
			}
			return send(cmd, body)
		},
	}
	raw.bind(submit)
	submit.Flags().StringVar(&to, "to", "", "target address")
	submit.Flags().StringVar(&data, "data", "", "0x prefixed calldata")
	_ = submit.MarkFlagRequired("to")

	var deploy txFlags
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the sender's smart account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := deploy.body(proxy.RegistryAddress, vm.MustEncodeCall(proxy.SelDeploy, struct{}{}))
			if err != nil {
				return err
			}
			return send(cmd, body)
		},
	}
	deploy.bind(deployCmd)

	var exec txFlags
	var account, module, moduleData string
	execute := &cobra.Command{
		Use:   "execute",
		Short: "Run module calldata in the context of a smart account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			acct, err := parseAddressArg("account", account)
			if err != nil {
				return err
			}
			target, err := parseAddressArg("module", module)
			if err != nil {
				return err
			}
			inner, err := hexutil.Decode(moduleData)
			if err != nil {
				return fmt.Errorf("invalid module calldata: %w", err)
			}
			payload := vm.MustEncodeCall(proxy.SelExecute, proxy.ExecuteArgs{Target: target, Data: inner})
			body, err := exec.body(acct, payload)
			if err != nil {
				return err
			}
			return send(cmd, body)
		},
	}
	exec.bind(execute)
	execute.Flags().StringVar(&account, "account", "", "smart account address")
	execute.Flags().StringVar(&module, "module", "", "action module address")
	execute.Flags().StringVar(&moduleData, "data", "", "0x prefixed module calldata")
	_ = execute.MarkFlagRequired("account")
	_ = execute.MarkFlagRequired("module")
	_ = execute.MarkFlagRequired("data")

	cmd.AddCommand(submit, deployCmd, execute)
	return cmd
}
