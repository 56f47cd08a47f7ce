// Package coretest builds a fully wired node over an in-memory database so
// module tests can drive it with real transactions.
package coretest

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core"
	"cdpproxy/core/genesis"
	"cdpproxy/core/vm"
	"cdpproxy/native/actions"
	"cdpproxy/native/bank"
	"cdpproxy/native/dex"
	"cdpproxy/native/flashloan"
	"cdpproxy/native/oracle"
	"cdpproxy/native/proxy"
	"cdpproxy/native/vaults"
	"cdpproxy/storage"
)

var (
	Admin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	Owner    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	Keeper   = common.HexToAddress("0x0000000000000000000000000000000000000cee")
	Manager  = common.HexToAddress("0x0000000000000000000000000000000000000f0e")
	Stranger = common.HexToAddress("0x0000000000000000000000000000000000000bad")

	PAR  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	WETH = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	USDC = common.HexToAddress("0x0000000000000000000000000000000000000c02")
)

// GenesisTime is the initial clock of every fixture.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	PremiumBps   = 9
	USDCDecimals = 6
)

// Units returns n whole tokens with the given decimals.
func Units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

// Ether returns n whole 18-decimal tokens.
func Ether(n int64) *big.Int { return Units(n, 18) }

// Percent returns n percent as an 18-decimal fraction.
func Percent(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e16))
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Spec returns the genesis used by fixtures: PAR as the debt token, WETH
// (also the wrapped native coin) and 6-decimal USDC as collateral, funded
// flashloan pool and router, and one listed manager.
func Spec() *genesis.Spec {
	liquidity := map[string]string{
		"WETH": Ether(10_000).String(),
		"USDC": Units(10_000_000, USDCDecimals).String(),
		"PAR":  Ether(10_000_000).String(),
	}
	spec := &genesis.Spec{
		GenesisTime:         GenesisTime.Format(time.RFC3339),
		Admin:               Admin.Hex(),
		DebtToken:           genesis.TokenSpec{Address: PAR.Hex(), Symbol: "PAR", Decimals: 18},
		FlashloanPremiumBps: PremiumBps,
		OperationWindow:     "24h",
		WrappedNative:       "WETH",
		Collateral: []genesis.CollateralSpec{
			{
				TokenSpec:          genesis.TokenSpec{Address: WETH.Hex(), Symbol: "WETH", Decimals: 18},
				Price:              Ether(2_000).String(),
				MinCollateralRatio: Percent(130).String(),
			},
			{
				TokenSpec:          genesis.TokenSpec{Address: USDC.Hex(), Symbol: "USDC", Decimals: USDCDecimals},
				Price:              Ether(1).String(),
				MinCollateralRatio: Percent(110).String(),
			},
		},
		Alloc: map[string]map[string]string{
			Owner.Hex(): {
				"ETH":  Ether(1_000).String(),
				"WETH": Ether(1_000).String(),
				"USDC": Units(1_000_000, USDCDecimals).String(),
			},
			Stranger.Hex(): {
				"ETH":  Ether(10).String(),
				"WETH": Ether(100).String(),
			},
			flashloan.Address.Hex(): liquidity,
			dex.RouterAddress.Hex():  liquidity,
		},
		Dexes:    []genesis.DexSpec{{Index: 0}},
		Roles:    map[string][]string{"MANAGER_ROLE": {Admin.Hex()}},
		Managers: []string{Manager.Hex()},
	}
	if err := spec.Validate(); err != nil {
		panic("coretest: invalid genesis: " + err.Error())
	}
	return spec
}

// Fixture is a node plus helpers that fail the test on unexpected errors.
type Fixture struct {
	t     testing.TB
	Node  *core.Node
	World *core.World
	Clock *Clock
}

// New starts a node on a fresh in-memory database.
func New(t testing.TB, opts ...core.Option) *Fixture {
	t.Helper()
	clock := &Clock{now: GenesisTime}
	opts = append([]core.Option{core.WithClock(clock.Now)}, opts...)
	node, err := core.NewNode(storage.NewMemDB(), Spec(), opts...)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(node.Close)
	return &Fixture{t: t, Node: node, World: node.World(), Clock: clock}
}

// Submit sends one transaction.
func (f *Fixture) Submit(from, to common.Address, value *big.Int, data []byte) (*core.Receipt, error) {
	return f.Node.Submit(context.Background(), core.Tx{From: from, To: to, Value: value, Data: data})
}

// MustSubmit is Submit failing the test on error.
func (f *Fixture) MustSubmit(from, to common.Address, value *big.Int, data []byte) *core.Receipt {
	f.t.Helper()
	receipt, err := f.Submit(from, to, value, data)
	if err != nil {
		f.t.Fatalf("submit %s from %s to %s: %v", vm.SelectorFromData(data).Hex(), from.Hex(), to.Hex(), err)
	}
	return receipt
}

// Deploy creates owner's smart account.
func (f *Fixture) Deploy(owner common.Address) common.Address {
	f.t.Helper()
	receipt := f.MustSubmit(owner, proxy.RegistryAddress, nil, vm.MustEncodeCall(proxy.SelDeploy, struct{}{}))
	return common.BytesToAddress(receipt.Output)
}

// ExecuteData builds account calldata delegating data to target.
func ExecuteData(target common.Address, data []byte) []byte {
	return vm.MustEncodeCall(proxy.SelExecute, proxy.ExecuteArgs{Target: target, Data: data})
}

// Execute runs data on target through account as caller.
func (f *Fixture) Execute(caller, account, target common.Address, value *big.Int, data []byte) (*core.Receipt, error) {
	return f.Submit(caller, account, value, ExecuteData(target, data))
}

// Approve sets owner's allowance of asset for spender.
func (f *Fixture) Approve(owner, asset, spender common.Address, amount *big.Int) {
	f.t.Helper()
	f.MustSubmit(owner, bank.Address, nil, vm.MustEncodeCall(bank.SelApprove, bank.ApproveArgs{Asset: asset, Spender: spender, Amount: amount}))
}

// Permit lets caller run selector of target through owner's account.
func (f *Fixture) Permit(owner, account, caller, target common.Address, sel vm.Selector) {
	f.t.Helper()
	ps, err := f.World.Proxies.ProxyState(account)
	if err != nil {
		f.t.Fatalf("proxy state: %v", err)
	}
	f.MustSubmit(owner, ps.Guard, nil, vm.MustEncodeCall(proxy.SelSetPermission, proxy.SetPermissionArgs{
		Caller:   caller,
		Target:   target,
		Selector: sel,
		Allowed:  true,
	}))
}

// SetPrice updates the oracle price of asset.
func (f *Fixture) SetPrice(asset common.Address, price *big.Int) {
	f.t.Helper()
	f.MustSubmit(Admin, oracle.Address, nil, vm.MustEncodeCall(oracle.SelSetPrice, oracle.SetPriceArgs{Asset: asset, Price: price}))
}

// Balance returns holder's balance of asset.
func (f *Fixture) Balance(asset, holder common.Address) *big.Int {
	f.t.Helper()
	balance, err := f.World.Bank.BalanceOf(asset, holder)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return balance
}

// Vault returns a copy of the vault.
func (f *Fixture) Vault(id uint64) *vaults.Vault {
	f.t.Helper()
	v, err := f.World.Vaults.Vault(id)
	if err != nil {
		f.t.Fatalf("vault %d: %v", id, err)
	}
	return v
}

// Ratio returns the collateral ratio of the vault.
func (f *Fixture) Ratio(id uint64) *big.Int {
	f.t.Helper()
	ratio, err := f.World.Vaults.VaultRatio(id)
	if err != nil {
		f.t.Fatalf("vault %d ratio: %v", id, err)
	}
	return ratio
}

// OpenVault deploys owner's account and deposits and borrows through the
// vault actions module, returning the account and the vault id.
func (f *Fixture) OpenVault(owner, collateral common.Address, deposit, borrow *big.Int) (common.Address, uint64) {
	f.t.Helper()
	account, err := f.World.Proxies.CurrentAccount(owner)
	if err != nil {
		f.t.Fatalf("current account: %v", err)
	}
	if account == (common.Address{}) {
		account = f.Deploy(owner)
	}
	f.Approve(owner, collateral, account, deposit)
	data := vm.MustEncodeCall(actions.SelDepositAndBorrow, actions.DepositAndBorrowArgs{
		Collateral:    collateral,
		DepositAmount: deposit,
		BorrowAmount:  borrow,
	})
	receipt, err := f.Execute(owner, account, f.World.Vault.Address(), nil, data)
	if err != nil {
		f.t.Fatalf("deposit and borrow: %v", err)
	}
	var id uint64
	if err := rlp.DecodeBytes(receipt.Output, &id); err != nil {
		f.t.Fatalf("decode vault id: %v", err)
	}
	return account, id
}

// SwapData routes an order through the reference router at index 0.
func SwapData(from, to common.Address, amountIn *big.Int) actions.SwapData {
	payload, err := dex.EncodeSwap(dex.Order{FromAsset: from, ToAsset: to, AmountIn: amountIn})
	if err != nil {
		panic(err)
	}
	return actions.SwapData{DexIndex: 0, DexTxData: payload}
}
