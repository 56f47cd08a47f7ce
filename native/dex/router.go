package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/events"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

// KindRouter is the reference oracle-priced router.
const KindRouter vm.Kind = "dex.router"

// RouterAddress is the default router location.
var RouterAddress = vm.ModuleAddress("dex.router")

var SelSwap = vm.SelectorOf("swap(address,address,uint256,uint256)")

var (
	ErrSlippage       = errors.New("dex: output below minimum")
	ErrSameAsset      = errors.New("dex: cannot swap an asset for itself")
	ErrEmptySwapInput = errors.New("dex: swap amount must be positive")
)

// Order is the payload of a swap call.
type Order struct {
	FromAsset    common.Address
	ToAsset      common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
}

// EncodeSwap builds the calldata a caller hands to the aggregator.
func EncodeSwap(order Order) ([]byte, error) {
	if order.MinAmountOut == nil {
		order.MinAmountOut = new(big.Int)
	}
	return vm.EncodeCall(SelSwap, order)
}

// Ledger moves tokens for the router.
type Ledger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
}

// Pricer converts between token amounts and USD value.
type Pricer interface {
	ConvertFrom(asset common.Address, amount *big.Int) (*big.Int, error)
	ConvertTo(asset common.Address, value *big.Int) (*big.Int, error)
}

// Router fills orders at oracle prices minus a fee, paying out of the
// liquidity held at its own address. It acts as its own spender.
type Router struct {
	ledger  Ledger
	prices  Pricer
	feeBps  uint64
	emitter events.Emitter
}

func NewRouter(ledger Ledger, prices Pricer, feeBps uint64, emitter events.Emitter) *Router {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Router{ledger: ledger, prices: prices, feeBps: feeBps, emitter: emitter}
}

// Quote returns the output of swapping amountIn of from into to.
func (r *Router) Quote(from, to common.Address, amountIn *big.Int) (*big.Int, error) {
	value, err := r.prices.ConvertFrom(from, amountIn)
	if err != nil {
		return nil, err
	}
	value.Sub(value, nativecommon.PercentMul(value, r.feeBps))
	return r.prices.ConvertTo(to, value)
}

// Call executes a swap for msg.Caller.
func (r *Router) Call(msg vm.Message, input []byte) ([]byte, error) {
	if vm.SelectorFromData(input) != SelSwap {
		return nil, vm.ErrUnknownMethod
	}
	var order Order
	if err := vm.DecodeArgs(input, &order); err != nil {
		return nil, err
	}
	if order.FromAsset == order.ToAsset {
		return nil, ErrSameAsset
	}
	if order.AmountIn == nil || order.AmountIn.Sign() <= 0 {
		return nil, ErrEmptySwapInput
	}
	router := msg.Self()
	out, err := r.Quote(order.FromAsset, order.ToAsset, order.AmountIn)
	if err != nil {
		return nil, err
	}
	if order.MinAmountOut != nil && out.Cmp(order.MinAmountOut) < 0 {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrSlippage, out, order.MinAmountOut)
	}
	if err := r.ledger.TransferFrom(order.FromAsset, router, msg.Caller, router, order.AmountIn); err != nil {
		return nil, err
	}
	if err := r.ledger.Transfer(order.ToAsset, router, msg.Caller, out); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.SwapExecuted{
		Router:    router,
		Trader:    msg.Caller,
		FromAsset: order.FromAsset,
		ToAsset:   order.ToAsset,
		AmountIn:  new(big.Int).Set(order.AmountIn),
		AmountOut: new(big.Int).Set(out),
	})
	return rlp.EncodeToBytes(out)
}
