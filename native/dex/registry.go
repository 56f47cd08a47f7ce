package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

// RegistryAddress is where the aggregator registry lives.
var RegistryAddress = vm.ModuleAddress("dex.registry")

// Aggregator pairs the router that executes swap payloads with the spender
// that pulls the input tokens.
type Aggregator struct {
	Router  common.Address
	Spender common.Address
}

// Registry maps aggregator indexes to router and spender addresses.
type Registry struct {
	st    *state.Manager
	admin common.Address
}

// NewRegistry builds a registry administered by admin.
func NewRegistry(st *state.Manager, admin common.Address) *Registry {
	return &Registry{st: st, admin: admin}
}

func dexKey(index uint64) []byte {
	return state.Key("dex/aggregator", common.BigToHash(new(big.Int).SetUint64(index)).Bytes())
}

// SetDex registers or replaces aggregator index.
func (r *Registry) SetDex(caller common.Address, index uint64, router, spender common.Address) error {
	if caller != r.admin {
		return &nativecommon.NotOwnerError{Owner: r.admin, Caller: caller}
	}
	if err := nativecommon.RequireNonZero(router, spender); err != nil {
		return err
	}
	return r.st.KVPut(dexKey(index), Aggregator{Router: router, Spender: spender})
}

// GetDex returns the router and spender for index. Unknown indexes yield zero
// addresses, leaving the caller to reject them.
func (r *Registry) GetDex(index uint64) (common.Address, common.Address, error) {
	var agg Aggregator
	if _, err := r.st.KVGet(dexKey(index), &agg); err != nil {
		return common.Address{}, common.Address{}, err
	}
	return agg.Router, agg.Spender, nil
}
