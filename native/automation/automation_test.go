package automation_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"cdpproxy/core"
	"cdpproxy/core/coretest"
	"cdpproxy/core/events"
	"cdpproxy/core/vm"
	"cdpproxy/native/actions"
	"cdpproxy/native/automation"
	nativecommon "cdpproxy/native/common"
	"cdpproxy/native/flashloan"
)

var (
	owner   = coretest.Owner
	keeper  = coretest.Keeper
	weth    = coretest.WETH
	usdc    = coretest.USDC
	par     = coretest.PAR
	ether   = coretest.Ether
	percent = coretest.Percent
)

func centi(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e16))
}

func autoConfig() automation.AutomatedVault {
	return automation.AutomatedVault{
		IsAutomated:      true,
		ToCollateral:     usdc,
		AllowedVariation: percent(1),
		TargetRatio:      percent(270),
		TriggerRatio:     percent(260),
		McrBuffer:        percent(10),
		FixedFee:         centi(1),
		VarFee:           new(big.Int),
	}
}

func setAutomation(f *coretest.Fixture, caller common.Address, id uint64, cfg automation.AutomatedVault) error {
	_, err := f.Submit(caller, f.World.Automated.Address(), nil,
		vm.MustEncodeCall(automation.SelSetAutomation, automation.SetAutomationArgs{VaultID: id, Config: cfg}))
	return err
}

func autoRebalance(f *coretest.Fixture, caller common.Address, id uint64, swap actions.SwapData) (*core.Receipt, error) {
	return f.Submit(caller, f.World.Automated.Address(), nil,
		vm.MustEncodeCall(automation.SelAutoRebalance, automation.AutoRebalanceArgs{VaultID: id, Swap: swap}))
}

// keeperSwap previews the rebalance and routes exactly the flashloaned
// collateral into the destination collateral.
func keeperSwap(t *testing.T, f *coretest.Fixture, id uint64) (automation.Amounts, actions.SwapData) {
	t.Helper()
	amounts, err := f.World.Automated.Amounts(id, usdc)
	require.NoError(t, err)
	return amounts, coretest.SwapData(weth, usdc, amounts.RebalanceAmount)
}

// automatedVault opens 50 WETH against 5 PAR and enables automation.
func automatedVault(t *testing.T, f *coretest.Fixture) (common.Address, uint64) {
	t.Helper()
	account, id := f.OpenVault(owner, weth, ether(50), ether(5))
	f.Permit(owner, account, f.World.Automated.Address(), f.World.Rebalance.Address(), actions.SelRebalanceOperation)
	require.NoError(t, setAutomation(f, owner, id, autoConfig()))
	return account, id
}

func findEvent(receipt *core.Receipt, kind string) bool {
	for _, ev := range receipt.Events {
		if ev.Type == kind {
			return true
		}
	}
	return false
}

func TestSetAutomationChecksOwnerAndConfig(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(1_000))

	var notOwner *automation.CallerNotVaultOwnerError
	err := setAutomation(f, coretest.Stranger, id, autoConfig())
	require.ErrorAs(t, err, &notOwner)
	require.Equal(t, coretest.Stranger, notOwner.Caller)
	require.Equal(t, account, notOwner.VaultOwner)

	strangerAccount := f.Deploy(coretest.Stranger)
	err = setAutomation(f, coretest.Stranger, id, autoConfig())
	require.ErrorAs(t, err, &notOwner)
	require.Equal(t, strangerAccount, notOwner.Caller)

	var missing *automation.VaultNotInitializedError
	require.ErrorAs(t, setAutomation(f, owner, 99, autoConfig()), &missing)
	require.Equal(t, uint64(99), missing.VaultID)

	cfg := autoConfig()
	cfg.VarFee = new(big.Int).Add(automation.MaxVarFee, big.NewInt(1))
	require.ErrorIs(t, setAutomation(f, owner, id, cfg), automation.ErrVariableFeeTooHigh)

	cfg = autoConfig()
	cfg.VarFee = new(big.Int).Set(automation.MaxVarFee)
	require.NoError(t, setAutomation(f, owner, id, cfg))

	cfg = autoConfig()
	cfg.ToCollateral = common.Address{}
	require.ErrorIs(t, setAutomation(f, owner, id, cfg), nativecommon.ErrCannotSetToAddressZero)

	require.NoError(t, setAutomation(f, owner, id, autoConfig()))
	stored, err := f.World.Automated.Automation(id)
	require.NoError(t, err)
	require.True(t, stored.IsAutomated)
	require.Zero(t, stored.TargetRatio.Cmp(percent(270)))

	// The account itself may configure its vault too, through multicall.
	disable := autoConfig()
	disable.IsAutomated = false
	call := vm.MustEncodeCall(automation.SelSetAutomation, automation.SetAutomationArgs{VaultID: id, Config: disable})
	_, err = f.Execute(owner, account, f.World.ProxyOps.Address(), nil, vm.MustEncodeCall(actions.SelMulticall, actions.MulticallArgs{
		Targets: []common.Address{f.World.Automated.Address()},
		Data:    [][]byte{call},
	}))
	require.NoError(t, err)
	stored, err = f.World.Automated.Automation(id)
	require.NoError(t, err)
	require.False(t, stored.IsAutomated)

	_, err = autoRebalance(f, keeper, id, coretest.SwapData(weth, usdc, ether(1)))
	require.ErrorIs(t, err, automation.ErrVaultNotAutomated)
}

func TestAutomatedRebalanceScenario(t *testing.T) {
	f := coretest.New(t)
	account, id := automatedVault(t, f)

	_, err := autoRebalance(f, keeper, id, coretest.SwapData(weth, usdc, ether(1)))
	var notReached *automation.VaultTriggerRatioNotReachedError
	require.ErrorAs(t, err, &notReached)
	require.Zero(t, notReached.Trigger.Cmp(percent(260)))

	// 50 WETH at 0.25 backs 5 PAR at 250%.
	f.SetPrice(weth, centi(25))
	require.Zero(t, f.Ratio(id).Cmp(percent(250)))

	amounts, swap := keeperSwap(t, f, id)
	require.Positive(t, amounts.RebalanceAmount.Sign())
	require.Zero(t, amounts.Fee.Cmp(centi(1)))

	receipt, err := autoRebalance(f, keeper, id, swap)
	require.NoError(t, err)
	require.True(t, findEvent(receipt, events.TypeAutomationRebalanced))
	require.True(t, findEvent(receipt, events.TypeFlashLoanExecuted))

	ratio := f.Ratio(id)
	require.GreaterOrEqual(t, ratio.Cmp(percent(270)), 0, "source ratio %s", ratio)
	require.LessOrEqual(t, ratio.Cmp(percent(271)), 0, "source ratio %s", ratio)

	destID, err := f.World.Vaults.VaultID(usdc, account)
	require.NoError(t, err)
	require.NotZero(t, destID)
	dest := f.Vault(destID)
	require.Zero(t, dest.Debt.Cmp(amounts.MintAmount))
	destRatio := f.Ratio(destID)
	require.GreaterOrEqual(t, destRatio.Cmp(percent(119)), 0, "destination ratio %s", destRatio)

	require.Zero(t, f.Balance(par, keeper).Cmp(amounts.Fee))
	module := f.World.Automated.Address()
	for _, asset := range []common.Address{weth, usdc, par} {
		require.Zero(t, f.Balance(asset, module).Sign(), "module keeps %s", asset.Hex())
		require.Zero(t, f.Balance(asset, f.World.Rebalance.Address()).Sign())
	}

	tracked, err := f.World.Automated.OperationTracker(id)
	require.NoError(t, err)
	require.Equal(t, uint64(f.Clock.Now().Unix()), tracked)

	out, err := f.Submit(keeper, module, nil, vm.MustEncodeCall(automation.SelOperationTracker, automation.VaultArgs{VaultID: id}))
	require.NoError(t, err)
	var viaCall uint64
	require.NoError(t, rlp.DecodeBytes(out.Output, &viaCall))
	require.Equal(t, tracked, viaCall)
}

func TestAutomatedRebalanceWindow(t *testing.T) {
	f := coretest.New(t)
	_, id := automatedVault(t, f)
	f.SetPrice(weth, centi(25))
	_, swap := keeperSwap(t, f, id)
	_, err := autoRebalance(f, keeper, id, swap)
	require.NoError(t, err)

	f.SetPrice(weth, centi(23))
	_, swap = keeperSwap(t, f, id)
	_, err = autoRebalance(f, keeper, id, swap)
	require.ErrorIs(t, err, nativecommon.ErrMaxOperationsReached)

	f.Clock.Advance(23 * time.Hour)
	_, err = autoRebalance(f, keeper, id, swap)
	require.ErrorIs(t, err, nativecommon.ErrMaxOperationsReached)

	f.Clock.Advance(time.Hour)
	_, err = autoRebalance(f, keeper, id, swap)
	require.NoError(t, err)
	require.GreaterOrEqual(t, f.Ratio(id).Cmp(percent(270)), 0)
}

func TestAutomatedRebalanceRejectsBadSwap(t *testing.T) {
	f := coretest.New(t)
	_, id := automatedVault(t, f)
	f.SetPrice(weth, centi(25))
	amounts, _ := keeperSwap(t, f, id)

	// Selling only half the loan delivers too little value.
	half := new(big.Int).Quo(amounts.RebalanceAmount, big.NewInt(2))
	_, err := autoRebalance(f, keeper, id, coretest.SwapData(weth, usdc, half))
	require.Error(t, err)

	tracked, err := f.World.Automated.OperationTracker(id)
	require.NoError(t, err)
	require.Zero(t, tracked, "a failed rebalance must not consume the window")
	require.Zero(t, f.Balance(par, keeper).Sign())
}

func TestAutomationPause(t *testing.T) {
	f := coretest.New(t)
	_, id := automatedVault(t, f)
	f.SetPrice(weth, centi(25))
	module := f.World.Automated.Address()

	f.MustSubmit(coretest.Admin, module, nil, vm.MustEncodeCall(actions.SelPause, struct{}{}))
	require.ErrorIs(t, setAutomation(f, owner, id, autoConfig()), nativecommon.ErrModulePaused)
	_, swap := keeperSwap(t, f, id)
	_, err := autoRebalance(f, keeper, id, swap)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, err = f.World.Automated.ExecuteOperation(vm.Message{Caller: flashloan.Address}, []common.Address{weth}, []*big.Int{ether(1)}, []*big.Int{new(big.Int)}, module, nil)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	f.MustSubmit(coretest.Admin, module, nil, vm.MustEncodeCall(actions.SelUnpause, struct{}{}))
	_, err = autoRebalance(f, keeper, id, swap)
	require.NoError(t, err)
}

func TestAutomationCallbackAuthorization(t *testing.T) {
	f := coretest.New(t)
	module := f.World.Automated
	assets := []common.Address{weth}
	amounts := []*big.Int{ether(1)}
	premiums := []*big.Int{new(big.Int)}

	_, err := module.ExecuteOperation(vm.Message{Caller: keeper}, assets, amounts, premiums, module.Address(), nil)
	require.ErrorIs(t, err, actions.ErrCallerNotLendingPool)

	var notInitiator *actions.InitiatorNotAuthorizedError
	_, err = module.ExecuteOperation(vm.Message{Caller: flashloan.Address}, assets, amounts, premiums, keeper, nil)
	require.ErrorAs(t, err, &notInitiator)
	require.Equal(t, module.Address(), notInitiator.Expected)
}

const kindHostile vm.Kind = "test.hostile_router"

// hostileRouter re-enters the automation module while it is being used as
// an aggregator.
type hostileRouter struct {
	env      *vm.Env
	target   common.Address
	vaultID  uint64
	innerErr error
}

func (h *hostileRouter) Call(msg vm.Message, input []byte) ([]byte, error) {
	reenter := vm.MustEncodeCall(automation.SelAutoRebalance, automation.AutoRebalanceArgs{VaultID: h.vaultID})
	_, h.innerErr = h.env.Call(vm.Message{Caller: msg.Self(), To: h.target, Gas: msg.Gas}, reenter)
	if h.innerErr != nil {
		return nil, h.innerErr
	}
	return nil, errors.New("hostile router: re-entry was not rejected")
}

func TestAutomatedRebalanceRejectsReentry(t *testing.T) {
	f := coretest.New(t)
	_, id := automatedVault(t, f)
	f.SetPrice(weth, centi(25))

	hostileAt := vm.ModuleAddress("test.hostile")
	hostile := &hostileRouter{env: f.World.Env, target: f.World.Automated.Address(), vaultID: id}
	require.NoError(t, f.World.Env.Transact(func() error {
		f.World.Env.Bind(kindHostile, hostile)
		if err := f.World.Env.Install(hostileAt, kindHostile); err != nil {
			return err
		}
		return f.World.Dexes.SetDex(coretest.Admin, 1, hostileAt, hostileAt)
	}))

	amounts, _ := keeperSwap(t, f, id)
	swap := coretest.SwapData(weth, usdc, amounts.RebalanceAmount)
	swap.DexIndex = 1
	_, err := autoRebalance(f, keeper, id, swap)
	require.ErrorIs(t, err, nativecommon.ErrReentrantCall)
	require.ErrorIs(t, hostile.innerErr, nativecommon.ErrReentrantCall)

	// The guard is released and nothing was recorded.
	tracked, err := f.World.Automated.OperationTracker(id)
	require.NoError(t, err)
	require.Zero(t, tracked)
	swap.DexIndex = 0
	_, err = autoRebalance(f, keeper, id, swap)
	require.NoError(t, err)
}

func managedConfig(manager common.Address) automation.ManagedVault {
	return automation.ManagedVault{
		IsManaged:        true,
		Manager:          manager,
		AllowedVariation: percent(1),
		MinRatio:         percent(200),
		FixedFee:         ether(1),
		VarFee:           new(big.Int),
		McrBuffer:        percent(10),
	}
}

func setManagement(f *coretest.Fixture, caller common.Address, id uint64, cfg automation.ManagedVault) error {
	_, err := f.Submit(caller, f.World.Managed.Address(), nil,
		vm.MustEncodeCall(automation.SelSetManagement, automation.SetManagementArgs{VaultID: id, Config: cfg}))
	return err
}

func managedRebalance(f *coretest.Fixture, caller common.Address, fl actions.FlashloanData, rb actions.RebalanceData) error {
	swap := coretest.SwapData(fl.Asset, rb.ToCollateral, fl.Amount)
	_, err := f.Submit(caller, f.World.Managed.Address(), nil, vm.MustEncodeCall(automation.SelManagedRebalance, automation.ManagedRebalanceArgs{
		Flashloan: fl,
		Rebalance: rb,
		Swap:      swap,
	}))
	return err
}

func TestSetManager(t *testing.T) {
	f := coretest.New(t)
	module := f.World.Managed.Address()
	listKeeper := vm.MustEncodeCall(automation.SelSetManager, automation.SetManagerArgs{Manager: keeper, Listed: true})

	_, err := f.Submit(coretest.Stranger, module, nil, listKeeper)
	require.ErrorIs(t, err, automation.ErrCallerNotProtocolManager)

	require.True(t, f.World.Managed.IsManager(coretest.Manager))
	require.False(t, f.World.Managed.IsManager(keeper))
	receipt := f.MustSubmit(coretest.Admin, module, nil, listKeeper)
	require.True(t, f.World.Managed.IsManager(keeper))
	require.True(t, findEvent(receipt, events.TypeManagerSet))

	_, err = f.Submit(coretest.Admin, module, nil, vm.MustEncodeCall(automation.SelSetManager, automation.SetManagerArgs{Listed: true}))
	require.ErrorIs(t, err, nativecommon.ErrCannotSetToAddressZero)
}

func TestManagedRebalance(t *testing.T) {
	f := coretest.New(t)
	account, id := f.OpenVault(owner, weth, ether(10), ether(10_000))
	f.Permit(owner, account, f.World.Managed.Address(), f.World.Rebalance.Address(), actions.SelRebalanceOperation)

	require.ErrorIs(t, setManagement(f, owner, id, managedConfig(keeper)), automation.ErrManagerNotListed)
	require.NoError(t, setManagement(f, owner, id, managedConfig(coretest.Manager)))

	fl := actions.FlashloanData{Asset: weth, Amount: ether(1)}
	rb := actions.RebalanceData{ToCollateral: usdc, VaultID: id, MintAmount: ether(1_500)}

	require.ErrorIs(t, managedRebalance(f, keeper, fl, rb), automation.ErrCallerNotSelectedManager)
	require.ErrorIs(t, managedRebalance(f, coretest.Manager, actions.FlashloanData{Asset: usdc, Amount: ether(1)}, rb), automation.ErrFlashloanAssetMismatch)
	tooMuch := rb
	tooMuch.MintAmount = ether(10_001)
	require.ErrorIs(t, managedRebalance(f, coretest.Manager, fl, tooMuch), automation.ErrMintAmountGreaterThanVaultDebt)
	zeroMint := rb
	zeroMint.MintAmount = new(big.Int)
	require.ErrorIs(t, managedRebalance(f, coretest.Manager, fl, zeroMint), automation.ErrRebalanceAmountCannotBeZero)

	// 2,000 USDC against 1,800 PAR misses the 110% + 10% floor.
	thin := rb
	thin.MintAmount = ether(1_800)
	var low *automation.FinalVaultRatioTooLowError
	require.ErrorAs(t, managedRebalance(f, coretest.Manager, fl, thin), &low)
	require.Zero(t, low.Floor.Cmp(percent(120)))

	require.NoError(t, managedRebalance(f, coretest.Manager, fl, rb))
	require.Zero(t, f.Balance(par, coretest.Manager).Cmp(ether(1)))
	source := f.Vault(id)
	require.Zero(t, source.Debt.Cmp(ether(8_501)))
	destID, err := f.World.Vaults.VaultID(usdc, account)
	require.NoError(t, err)
	require.Zero(t, f.Vault(destID).Debt.Cmp(ether(1_500)))
	for _, asset := range []common.Address{weth, usdc, par} {
		require.Zero(t, f.Balance(asset, f.World.Managed.Address()).Sign())
	}

	require.ErrorIs(t, managedRebalance(f, coretest.Manager, fl, rb), nativecommon.ErrMaxOperationsReached)

	f.Clock.Advance(24 * time.Hour)
	f.MustSubmit(coretest.Admin, f.World.Managed.Address(), nil,
		vm.MustEncodeCall(automation.SelSetManager, automation.SetManagerArgs{Manager: coretest.Manager, Listed: false}))
	require.ErrorIs(t, managedRebalance(f, coretest.Manager, fl, rb), automation.ErrManagerNotListed)
}
