package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Message describes one invocation inside the environment.
type Message struct {
	// Caller is the immediate sender of the call.
	Caller common.Address
	// To is the address whose code runs.
	To common.Address
	// Context is the address whose balances and storage the code acts on. It
	// differs from To only for delegated runs.
	Context common.Address
	Value   *big.Int
	Gas     uint64
}

// Self returns the address the running code acts as.
func (m Message) Self() common.Address {
	if m.Context != (common.Address{}) {
		return m.Context
	}
	return m.To
}

// CallValue returns the attached native value, never nil.
func (m Message) CallValue() *big.Int {
	if m.Value == nil {
		return new(big.Int)
	}
	return m.Value
}

// Selector is the 4-byte function tag that prefixes calldata.
type Selector [4]byte

// SelectorOf hashes a function signature into its selector.
func SelectorOf(signature string) Selector {
	var sel Selector
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// SelectorFromData extracts the selector of calldata. Calldata shorter than
// four bytes yields the zero selector.
func SelectorFromData(data []byte) Selector {
	var sel Selector
	if len(data) >= 4 {
		copy(sel[:], data[:4])
	}
	return sel
}

// Hex renders the selector as 0x-prefixed hex.
func (s Selector) Hex() string {
	return hexutil.Encode(s[:])
}

// DeriveAddress returns the deterministic address of the nonce-th contract
// created by deployer.
func DeriveAddress(deployer common.Address, nonce uint64) common.Address {
	return ethcrypto.CreateAddress(deployer, nonce)
}

// ModuleAddress returns the well-known address of a built-in module.
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("cdpproxy/module/" + name))[12:])
}
