package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

var ErrShortCalldata = errors.New("vm: calldata shorter than selector")

// EncodeCall builds calldata as the selector followed by the RLP encoding of
// args. A nil args value encodes as an empty list.
func EncodeCall(sel Selector, args interface{}) ([]byte, error) {
	if args == nil {
		args = []interface{}{}
	}
	payload, err := rlp.EncodeToBytes(args)
	if err != nil {
		return nil, fmt.Errorf("vm: encode call %s: %w", sel.Hex(), err)
	}
	out := make([]byte, 0, 4+len(payload))
	out = append(out, sel[:]...)
	return append(out, payload...), nil
}

// MustEncodeCall is EncodeCall for arguments known to be encodable.
func MustEncodeCall(sel Selector, args interface{}) []byte {
	data, err := EncodeCall(sel, args)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeArgs decodes the arguments that follow the selector into out.
func DecodeArgs(input []byte, out interface{}) error {
	if len(input) < 4 {
		return ErrShortCalldata
	}
	if err := rlp.DecodeBytes(input[4:], out); err != nil {
		return fmt.Errorf("vm: decode args for %s: %w", SelectorFromData(input).Hex(), err)
	}
	return nil
}
