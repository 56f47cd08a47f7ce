package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
	"cdpproxy/storage"
)

type stubDecimals map[common.Address]uint8

func (s stubDecimals) Decimals(asset common.Address) (uint8, error) {
	dec, ok := s[asset]
	if !ok {
		return 0, errors.New("unknown asset")
	}
	return dec, nil
}

var (
	admin = common.HexToAddress("0x0000000000000000000000000000000000000001")
	weth  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

func TestConvertRespectsDecimals(t *testing.T) {
	env := vm.NewEnv(state.NewManager(storage.NewMemDB()), nil)
	feed := NewFeed(env, admin, stubDecimals{weth: 18, usdc: 6})

	wad := big.NewInt(1_000_000_000_000_000_000)
	if err := feed.SetPrice(admin, weth, new(big.Int).Mul(big.NewInt(2000), wad)); err != nil {
		t.Fatalf("set weth price: %v", err)
	}
	if err := feed.SetPrice(admin, usdc, wad); err != nil {
		t.Fatalf("set usdc price: %v", err)
	}

	value, err := feed.ConvertFrom(weth, new(big.Int).Mul(big.NewInt(3), wad))
	if err != nil {
		t.Fatalf("convertFrom: %v", err)
	}
	if want := new(big.Int).Mul(big.NewInt(6000), wad); value.Cmp(want) != 0 {
		t.Fatalf("value = %s, want %s", value, want)
	}

	amount, err := feed.ConvertTo(usdc, value)
	if err != nil {
		t.Fatalf("convertTo: %v", err)
	}
	if want := big.NewInt(6_000_000_000); amount.Cmp(want) != 0 {
		t.Fatalf("usdc amount = %s, want %s", amount, want)
	}
}

func TestSetPriceRestrictedToAdmin(t *testing.T) {
	env := vm.NewEnv(state.NewManager(storage.NewMemDB()), nil)
	feed := NewFeed(env, admin, stubDecimals{weth: 18})
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")
	if err := feed.SetPrice(other, weth, big.NewInt(1)); !errors.Is(err, nativecommon.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := feed.SetPrice(admin, weth, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := feed.ConvertFrom(weth, big.NewInt(1)); !errors.Is(err, ErrPriceNotSet) {
		t.Fatalf("expected ErrPriceNotSet, got %v", err)
	}
}
