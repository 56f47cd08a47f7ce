package oracle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

const KindFeed vm.Kind = "oracle.feed"

var (
	SelSetPrice = vm.SelectorOf("setPrice(address,uint256)")
	SelPrice    = vm.SelectorOf("price(address)")
)

type SetPriceArgs struct {
	Asset common.Address
	Price *big.Int
}

type PriceArgs struct {
	Asset common.Address
}

// Call dispatches price updates and reads.
func (f *Feed) Call(msg vm.Message, input []byte) ([]byte, error) {
	switch vm.SelectorFromData(input) {
	case SelSetPrice:
		var args SetPriceArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, f.SetPrice(msg.Caller, args.Asset, args.Price)
	case SelPrice:
		var args PriceArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		price, err := f.Price(args.Asset)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(price)
	default:
		return nil, vm.ErrUnknownMethod
	}
}
