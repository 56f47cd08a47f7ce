package actions_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"cdpproxy/core/coretest"
	"cdpproxy/core/vm"
	"cdpproxy/native/actions"
	"cdpproxy/native/bank"
	nativecommon "cdpproxy/native/common"
	"cdpproxy/native/flashloan"
	"cdpproxy/native/proxy"
)

var (
	owner  = coretest.Owner
	weth   = coretest.WETH
	usdc   = coretest.USDC
	par    = coretest.PAR
	ether  = coretest.Ether
	zero   = new(big.Int)
	noCall = []byte(nil)
)

func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}

// requireEmpty checks that a module kept nothing of the assets it touched.
func requireEmpty(t *testing.T, f *coretest.Fixture, module common.Address, assets ...common.Address) {
	t.Helper()
	for _, asset := range assets {
		if got := f.Balance(asset, module); got.Sign() != 0 {
			t.Fatalf("module %s holds %s of %s", module.Hex(), got, asset.Hex())
		}
	}
}

func TestDepositAndBorrowThroughAccount(t *testing.T) {
	f := coretest.New(t)
	parBefore := f.Balance(par, owner)

	account, id := f.OpenVault(owner, weth, ether(10), ether(1_000))

	v := f.Vault(id)
	require.Equal(t, account, v.Owner)
	require.Equal(t, weth, v.CollateralType)
	require.Zero(t, v.Collateral.Cmp(ether(10)))
	require.Zero(t, v.Debt.Cmp(ether(1_000)))
	require.Zero(t, new(big.Int).Sub(f.Balance(par, owner), parBefore).Cmp(ether(1_000)))
	require.Zero(t, f.Balance(weth, account).Sign())
	require.Zero(t, f.Balance(par, account).Sign())

	// A second deposit lands in the same vault.
	f.Approve(owner, weth, account, ether(5))
	receipt, err := f.Execute(owner, account, f.World.Vault.Address(), nil,
		vm.MustEncodeCall(actions.SelDeposit, actions.DepositArgs{Collateral: weth, Amount: ether(5)}))
	require.NoError(t, err)
	var again uint64
	require.NoError(t, rlp.DecodeBytes(receipt.Output, &again))
	require.Equal(t, id, again)
	require.Zero(t, f.Vault(id).Collateral.Cmp(ether(15)))
}

func TestBorrowAndWithdraw(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(1_000))
	module := f.World.Vault.Address()

	_, err := f.Execute(owner, account, module, nil,
		vm.MustEncodeCall(actions.SelBorrow, actions.VaultAmountArgs{VaultID: id, Amount: ether(500)}))
	require.NoError(t, err)
	require.Zero(t, f.Vault(id).Debt.Cmp(ether(1_500)))

	wethBefore := f.Balance(weth, owner)
	_, err = f.Execute(owner, account, module, nil,
		vm.MustEncodeCall(actions.SelWithdraw, actions.VaultAmountArgs{VaultID: id, Amount: ether(4)}))
	require.NoError(t, err)
	require.Zero(t, new(big.Int).Sub(f.Balance(weth, owner), wethBefore).Cmp(ether(4)))
	require.Zero(t, f.Vault(id).Collateral.Cmp(ether(6)))

	// 1 WETH at 2000 cannot back 1500 PAR.
	_, err = f.Execute(owner, account, module, nil,
		vm.MustEncodeCall(actions.SelWithdraw, actions.VaultAmountArgs{VaultID: id, Amount: ether(5)}))
	require.Error(t, err)
	require.Zero(t, f.Vault(id).Collateral.Cmp(ether(6)), "failed withdraw must not change the vault")
}

func TestNativeDepositAndWithdraw(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	module := f.World.Vault.Address()
	nativeBefore := f.Balance(bank.NativeAsset, owner)

	receipt, err := f.Execute(owner, account, module, ether(5),
		vm.MustEncodeCall(actions.SelDepositETHAndBorrow, actions.BorrowAmountArgs{BorrowAmount: ether(100)}))
	require.NoError(t, err)
	var id uint64
	require.NoError(t, rlp.DecodeBytes(receipt.Output, &id))
	require.Equal(t, weth, f.Vault(id).CollateralType)
	require.Zero(t, f.Vault(id).Collateral.Cmp(ether(5)))

	_, err = f.Execute(owner, account, module, nil,
		vm.MustEncodeCall(actions.SelWithdrawETH, actions.VaultAmountArgs{VaultID: id, Amount: ether(2)}))
	require.NoError(t, err)
	spent := new(big.Int).Sub(nativeBefore, f.Balance(bank.NativeAsset, owner))
	require.Zero(t, spent.Cmp(ether(3)))
	require.Zero(t, f.Balance(bank.NativeAsset, account).Sign())

	_, err = f.Execute(owner, account, module, nil, vm.MustEncodeCall(actions.SelDepositETH, struct{}{}))
	require.ErrorIs(t, err, actions.ErrNoValue)
}

func TestExecuteRequiresOwnerOrPermission(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(1_000))
	borrow := vm.MustEncodeCall(actions.SelBorrow, actions.VaultAmountArgs{VaultID: id, Amount: ether(1)})
	module := f.World.Vault.Address()

	_, err := f.Execute(coretest.Stranger, account, module, nil, borrow)
	var denied *proxy.ExecutionNotAuthorizedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, actions.SelBorrow, denied.Selector)

	f.Permit(owner, account, coretest.Stranger, module, actions.SelBorrow)
	_, err = f.Execute(coretest.Stranger, account, module, nil, borrow)
	require.NoError(t, err)
	// Borrowed PAR goes to whoever called the account.
	require.Zero(t, f.Balance(par, coretest.Stranger).Cmp(ether(1)))

	_, err = f.Execute(owner, account, account, nil, borrow)
	require.ErrorIs(t, err, proxy.ErrTargetInvalid)
}

func TestLeverage(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	leverage := f.World.Leverage.Address()
	f.Permit(owner, account, leverage, leverage, actions.SelLeverageOperation)
	f.Approve(owner, weth, account, ether(10))

	// 10 WETH deposited plus 5 flashloaned; 10,100 PAR sold back for 5.05 WETH.
	args := actions.LeverageArgs{
		DepositAmount: ether(10),
		SwapAmount:    ether(10_100),
		Flashloan:     actions.FlashloanData{Asset: weth, Amount: ether(5)},
		Swap:          coretest.SwapData(par, weth, ether(10_100)),
	}
	_, err := f.Execute(owner, account, leverage, nil, vm.MustEncodeCall(actions.SelExecuteAction, args))
	require.NoError(t, err)

	id, err := f.World.Vaults.VaultID(weth, account)
	require.NoError(t, err)
	v := f.Vault(id)
	premium := f.World.Pool.Premium(ether(5))
	surplus := new(big.Int).Sub(milli(5_050), new(big.Int).Add(ether(5), premium))
	require.Zero(t, v.Collateral.Cmp(new(big.Int).Add(ether(15), surplus)), "collateral %s", v.Collateral)
	require.Zero(t, v.Debt.Cmp(ether(10_100)))

	requireEmpty(t, f, leverage, weth, par)
	requireEmpty(t, f, account, weth, par)
}

func TestLeverageFailsWhenSwapCannotRepay(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	leverage := f.World.Leverage.Address()
	f.Permit(owner, account, leverage, leverage, actions.SelLeverageOperation)
	f.Approve(owner, weth, account, ether(10))
	wethBefore := f.Balance(weth, owner)

	args := actions.LeverageArgs{
		DepositAmount: ether(10),
		SwapAmount:    ether(9_000),
		Flashloan:     actions.FlashloanData{Asset: weth, Amount: ether(5)},
		Swap:          coretest.SwapData(par, weth, ether(9_000)),
	}
	_, err := f.Execute(owner, account, leverage, nil, vm.MustEncodeCall(actions.SelExecuteAction, args))
	require.ErrorIs(t, err, actions.ErrCannotRepayFlashloan)
	require.Zero(t, f.Balance(weth, owner).Cmp(wethBefore))
	id, err := f.World.Vaults.VaultID(weth, account)
	require.NoError(t, err)
	require.Zero(t, id)
}

func TestLeverageWithoutPermissionReverts(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	f.Approve(owner, weth, account, ether(10))
	args := actions.LeverageArgs{
		DepositAmount: ether(10),
		SwapAmount:    ether(10_100),
		Flashloan:     actions.FlashloanData{Asset: weth, Amount: ether(5)},
		Swap:          coretest.SwapData(par, weth, ether(10_100)),
	}
	_, err := f.Execute(owner, account, f.World.Leverage.Address(), nil, vm.MustEncodeCall(actions.SelExecuteAction, args))
	require.ErrorIs(t, err, proxy.ErrExecutionNotAuthorized)
}

func TestRebalanceIntoSecondCollateral(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(10_000))
	rebalance := f.World.Rebalance.Address()
	f.Permit(owner, account, rebalance, rebalance, actions.SelRebalanceOperation)

	args := actions.RebalanceArgs{
		Flashloan: actions.FlashloanData{Asset: weth, Amount: ether(1)},
		Rebalance: actions.RebalanceData{ToCollateral: usdc, VaultID: id, MintAmount: ether(1_500)},
		Swap:      coretest.SwapData(weth, usdc, ether(1)),
	}
	_, err := f.Execute(owner, account, rebalance, nil, vm.MustEncodeCall(actions.SelExecuteAction, args))
	require.NoError(t, err)

	source := f.Vault(id)
	owed := new(big.Int).Add(ether(1), f.World.Pool.Premium(ether(1)))
	require.Zero(t, source.Collateral.Cmp(new(big.Int).Sub(ether(10), owed)))
	require.Zero(t, source.Debt.Cmp(ether(8_500)))

	destID, err := f.World.Vaults.VaultID(usdc, account)
	require.NoError(t, err)
	dest := f.Vault(destID)
	require.Zero(t, dest.Collateral.Cmp(coretest.Units(2_000, coretest.USDCDecimals)))
	require.Zero(t, dest.Debt.Cmp(ether(1_500)))

	requireEmpty(t, f, rebalance, weth, usdc, par)
	requireEmpty(t, f, account, weth, usdc, par)
}

func TestEmptyVault(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(5_000))
	empty := f.World.Empty.Address()
	f.Permit(owner, account, empty, empty, actions.SelEmptyVaultOperation)

	// 2.6 WETH buys 5,200 PAR, enough for the 5,000 PAR loan and premium.
	sold := milli(2_600)
	args := actions.EmptyVaultArgs{
		VaultID:   id,
		Flashloan: actions.FlashloanData{Asset: par, Amount: ether(5_000)},
		Swap:      coretest.SwapData(weth, par, sold),
	}
	_, err := f.Execute(owner, account, empty, nil, vm.MustEncodeCall(actions.SelExecuteAction, args))
	require.NoError(t, err)

	v := f.Vault(id)
	require.Zero(t, v.Debt.Sign())
	require.Zero(t, v.Collateral.Sign())
	require.Zero(t, f.Balance(weth, account).Cmp(new(big.Int).Sub(ether(10), sold)))
	owed := new(big.Int).Add(ether(5_000), f.World.Pool.Premium(ether(5_000)))
	require.Zero(t, f.Balance(par, account).Cmp(new(big.Int).Sub(ether(5_200), owed)))
	requireEmpty(t, f, empty, weth, par)
}

func TestSwapRejectsUnknownAggregator(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	f.MustSubmit(owner, bank.Address, nil, vm.MustEncodeCall(bank.SelTransfer, bank.TransferArgs{Asset: weth, To: account, Amount: ether(1)}))

	swap := coretest.SwapData(weth, usdc, ether(1))
	swap.DexIndex = 7
	_, err := f.Execute(owner, account, f.World.Swap.Address(), nil,
		vm.MustEncodeCall(actions.SelSwap, actions.SwapArgs{Token: weth, Amount: ether(1), Swap: swap}))
	require.ErrorIs(t, err, actions.ErrInvalidAggregator)

	swap.DexIndex = 0
	_, err = f.Execute(owner, account, f.World.Swap.Address(), nil,
		vm.MustEncodeCall(actions.SelSwap, actions.SwapArgs{Token: weth, Amount: ether(1), Swap: swap}))
	require.NoError(t, err)
	require.Zero(t, f.Balance(weth, account).Sign())
	require.Zero(t, f.Balance(usdc, account).Cmp(coretest.Units(2_000, coretest.USDCDecimals)))
}

func TestCallbackAuthorization(t *testing.T) {
	f := coretest.New(t)
	account := f.Deploy(owner)
	leverage := f.World.Leverage
	params, err := rlp.EncodeToBytes(struct {
		Owner      common.Address
		SwapAmount *big.Int
		Swap       actions.SwapData
	}{Owner: owner, SwapAmount: ether(1), Swap: coretest.SwapData(par, weth, ether(1))})
	require.NoError(t, err)
	assets := []common.Address{weth}
	amounts := []*big.Int{ether(1)}
	premiums := []*big.Int{zero}

	_, err = leverage.ExecuteOperation(vm.Message{Caller: coretest.Stranger, To: leverage.Address()}, assets, amounts, premiums, account, params)
	var notPool *actions.CallerNotLendingPoolError
	require.ErrorAs(t, err, &notPool)
	require.Equal(t, coretest.Stranger, notPool.Caller)
	require.Equal(t, flashloan.Address, notPool.Pool)

	_, err = leverage.ExecuteOperation(vm.Message{Caller: flashloan.Address, To: leverage.Address()}, assets, amounts, premiums, coretest.Stranger, params)
	var notInitiator *actions.InitiatorNotAuthorizedError
	require.ErrorAs(t, err, &notInitiator)
	require.Equal(t, coretest.Stranger, notInitiator.Initiator)
	require.Equal(t, account, notInitiator.Expected)

	// A loan requested through the real pool by someone else is refused too,
	// and the pool keeps its liquidity.
	poolBefore := f.Balance(weth, flashloan.Address)
	err = f.World.Env.Apply(func() error {
		return f.World.Pool.FlashLoan(coretest.Stranger, leverage.Address(), assets, amounts, []uint8{0}, coretest.Stranger, params, 0)
	})
	require.ErrorIs(t, err, actions.ErrInitiatorNotAuthorized)
	require.Zero(t, f.Balance(weth, flashloan.Address).Cmp(poolBefore))
}

func TestPauseGatesEveryEntryPoint(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(1_000))
	leverage := f.World.Leverage.Address()
	f.Permit(owner, account, leverage, leverage, actions.SelLeverageOperation)

	_, err := f.Submit(coretest.Stranger, leverage, nil, vm.MustEncodeCall(actions.SelPause, struct{}{}))
	require.ErrorIs(t, err, nativecommon.ErrNotOwner)

	f.MustSubmit(coretest.Admin, leverage, nil, vm.MustEncodeCall(actions.SelPause, struct{}{}))
	require.True(t, f.World.Leverage.Paused())

	f.Approve(owner, weth, account, ether(1))
	args := actions.LeverageArgs{
		DepositAmount: ether(1),
		SwapAmount:    ether(2_100),
		Flashloan:     actions.FlashloanData{Asset: weth, Amount: ether(1)},
		Swap:          coretest.SwapData(par, weth, ether(2_100)),
	}
	data := vm.MustEncodeCall(actions.SelExecuteAction, args)
	_, err = f.Execute(owner, account, leverage, nil, data)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	_, err = f.World.Leverage.ExecuteOperation(vm.Message{Caller: flashloan.Address}, []common.Address{weth}, []*big.Int{ether(1)}, []*big.Int{zero}, account, noCall)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	// Other modules keep working.
	_, err = f.Execute(owner, account, f.World.Vault.Address(), nil,
		vm.MustEncodeCall(actions.SelBorrow, actions.VaultAmountArgs{VaultID: id, Amount: ether(1)}))
	require.NoError(t, err)

	f.MustSubmit(coretest.Admin, leverage, nil, vm.MustEncodeCall(actions.SelUnpause, struct{}{}))
	_, err = f.Execute(owner, account, leverage, nil, data)
	require.NoError(t, err)
}

func TestMulticallAndWithdrawETH(t *testing.T) {
	f := coretest.New(t)
	account, _ := f.OpenVault(owner, weth, ether(10), ether(1_000))
	proxyOps := f.World.ProxyOps.Address()
	f.MustSubmit(owner, bank.Address, nil, vm.MustEncodeCall(bank.SelTransfer, bank.TransferArgs{Asset: par, To: account, Amount: ether(300)}))

	transfer := vm.MustEncodeCall(bank.SelTransfer, bank.TransferArgs{Asset: par, To: coretest.Keeper, Amount: ether(100)})
	_, err := f.Execute(owner, account, proxyOps, nil, vm.MustEncodeCall(actions.SelMulticall, actions.MulticallArgs{
		Targets: []common.Address{bank.Address, bank.Address},
		Data:    [][]byte{transfer, transfer},
	}))
	require.NoError(t, err)
	require.Zero(t, f.Balance(par, coretest.Keeper).Cmp(ether(200)))
	require.Zero(t, f.Balance(par, account).Cmp(ether(100)))

	// The second transfer overdraws, so the first is undone with it.
	overdraw := vm.MustEncodeCall(bank.SelTransfer, bank.TransferArgs{Asset: par, To: coretest.Keeper, Amount: ether(150)})
	_, err = f.Execute(owner, account, proxyOps, nil, vm.MustEncodeCall(actions.SelMulticall, actions.MulticallArgs{
		Targets: []common.Address{bank.Address, bank.Address},
		Data:    [][]byte{transfer, overdraw},
	}))
	var mc *actions.MulticallError
	require.ErrorAs(t, err, &mc)
	require.Equal(t, 1, mc.Index)
	require.Zero(t, f.Balance(par, account).Cmp(ether(100)))

	_, err = f.Execute(owner, account, proxyOps, nil, vm.MustEncodeCall(actions.SelMulticall, actions.MulticallArgs{
		Targets: []common.Address{bank.Address},
	}))
	require.ErrorIs(t, err, actions.ErrMulticallLength)

	nativeBefore := f.Balance(bank.NativeAsset, owner)
	_, err = f.Execute(owner, account, proxyOps, ether(3), vm.MustEncodeCall(actions.SelWithdrawAllETH, struct{}{}))
	require.NoError(t, err)
	require.Zero(t, f.Balance(bank.NativeAsset, account).Sign())
	require.Zero(t, f.Balance(bank.NativeAsset, owner).Cmp(nativeBefore))
}

func TestModulesRefuseZeroCollaborators(t *testing.T) {
	f := coretest.New(t)
	deps := f.World.Vault.Deps
	deps.Owner = common.Address{}
	_, err := actions.NewVaultActions(common.HexToAddress("0x01"), deps)
	require.ErrorIs(t, err, nativecommon.ErrCannotSetToAddressZero)

	deps = f.World.Vault.Deps
	deps.Pool = nil
	_, err = actions.NewLeverage(common.HexToAddress("0x02"), deps)
	require.True(t, err != nil && !errors.Is(err, nativecommon.ErrCannotSetToAddressZero))
}

func TestOperationEncodingReportsErrors(t *testing.T) {
	swap := coretest.SwapData(par, weth, ether(1))
	op, err := actions.EncodeLeverageOperation(actions.LeverageOperationArgs{
		Token: weth, SwapAmount: ether(1), RepayAmount: ether(2), Swap: swap,
	})
	if err != nil {
		t.Fatalf("encode leverage operation: %v", err)
	}
	if vm.SelectorFromData(op) != actions.SelLeverageOperation {
		t.Fatalf("unexpected selector %s", vm.SelectorFromData(op).Hex())
	}
	if _, err := actions.EncodeLeverageOperation(actions.LeverageOperationArgs{
		Token: weth, SwapAmount: big.NewInt(-1), RepayAmount: ether(2), Swap: swap,
	}); err == nil {
		t.Fatalf("expected an error for a negative swap amount")
	}

	op, err = actions.EncodeEmptyVaultOperation(actions.EmptyVaultOperationArgs{
		Collateral: weth, VaultID: 1, RepayAmount: ether(3), Swap: swap,
	})
	if err != nil {
		t.Fatalf("encode empty vault operation: %v", err)
	}
	if vm.SelectorFromData(op) != actions.SelEmptyVaultOperation {
		t.Fatalf("unexpected selector %s", vm.SelectorFromData(op).Hex())
	}
	if _, err := actions.EncodeEmptyVaultOperation(actions.EmptyVaultOperationArgs{
		Collateral: weth, VaultID: 1, RepayAmount: big.NewInt(-3), Swap: swap,
	}); err == nil {
		t.Fatalf("expected an error for a negative repayment")
	}
}
