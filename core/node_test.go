package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core"
	"cdpproxy/core/coretest"
	"cdpproxy/core/events"
	"cdpproxy/core/types"
	"cdpproxy/core/vm"
	"cdpproxy/native/bank"
	"cdpproxy/native/proxy"
	"cdpproxy/storage"
)

func transferData(asset, to common.Address, amount int64) []byte {
	return vm.MustEncodeCall(bank.SelTransfer, bank.TransferArgs{Asset: asset, To: to, Amount: coretest.Ether(amount)})
}

func TestNodeAppliesGenesisOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	node, err := core.NewNode(db, coretest.Spec())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	balance, err := node.World().Bank.BalanceOf(coretest.WETH, coretest.Owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(coretest.Ether(1_000)) != 0 {
		t.Fatalf("expected genesis allocation, got %s", balance)
	}

	receipt, err := node.Submit(context.Background(), core.Tx{
		From: coretest.Owner,
		To:   bank.Address,
		Data: transferData(coretest.WETH, coretest.Keeper, 400),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", receipt.Sequence)
	}
	node.Close()

	if _, err := node.Submit(context.Background(), core.Tx{From: coretest.Owner, To: bank.Address}); !errors.Is(err, core.ErrNodeClosed) {
		t.Fatalf("expected ErrNodeClosed, got %v", err)
	}

	db, err = storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	reopened, err := core.NewNode(db, coretest.Spec())
	if err != nil {
		t.Fatalf("reopen node: %v", err)
	}
	defer reopened.Close()

	balance, err = reopened.World().Bank.BalanceOf(coretest.WETH, coretest.Owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(coretest.Ether(600)) != 0 {
		t.Fatalf("genesis allocations applied twice: balance %s", balance)
	}
	seq, err := reopened.Sequence()
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected persisted sequence 1, got %d", seq)
	}
}

func TestNodeRequiresGenesisAndTarget(t *testing.T) {
	if _, err := core.NewNode(storage.NewMemDB(), nil); !errors.Is(err, core.ErrNilGenesis) {
		t.Fatalf("expected ErrNilGenesis, got %v", err)
	}

	f := coretest.New(t)
	if _, err := f.Node.Submit(context.Background(), core.Tx{From: coretest.Owner}); !errors.Is(err, core.ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
}

func TestSubmitIsAtomic(t *testing.T) {
	f := coretest.New(t)
	ethBefore := f.Balance(bank.NativeAsset, coretest.Owner)

	// The value moves before the call, which fails on an address without
	// code. Neither effect may survive.
	_, err := f.Submit(coretest.Owner, coretest.Keeper, coretest.Ether(1), nil)
	if !errors.Is(err, vm.ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
	if f.Balance(bank.NativeAsset, coretest.Owner).Cmp(ethBefore) != 0 || f.Balance(bank.NativeAsset, coretest.Keeper).Sign() != 0 {
		t.Fatalf("value transfer survived a failed call")
	}

	_, err = f.Submit(coretest.Keeper, bank.Address, nil, transferData(coretest.WETH, coretest.Owner, 1))
	if !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	seq, err := f.Node.Sequence()
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if seq != 0 {
		t.Fatalf("reverted transactions advanced the sequence to %d", seq)
	}

	receipt := f.MustSubmit(coretest.Owner, bank.Address, nil, transferData(coretest.WETH, coretest.Keeper, 2))
	if receipt.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", receipt.Sequence)
	}
	if f.Balance(coretest.WETH, coretest.Keeper).Cmp(coretest.Ether(2)) != 0 {
		t.Fatalf("transfer not applied")
	}
}

func TestListenersSeeCommittedEventsOnly(t *testing.T) {
	var seen []*types.Event
	f := coretest.New(t, core.WithListener(func(ev *types.Event) {
		seen = append(seen, ev)
	}))
	seen = nil

	account := f.Deploy(coretest.Owner)
	if len(seen) != 1 {
		t.Fatalf("expected one event, got %d", len(seen))
	}
	if ev := seen[0]; ev.Type != events.TypeProxyDeployed || ev.Height != 1 || !ev.Time.Equal(coretest.GenesisTime) {
		t.Fatalf("unexpected event %+v", ev)
	}

	// A second deploy for the same owner is refused and emits nothing.
	_, err := f.Submit(coretest.Owner, proxy.RegistryAddress, nil, vm.MustEncodeCall(proxy.SelDeploy, struct{}{}))
	var exists *proxy.AlreadyOwnerError
	if !errors.As(err, &exists) {
		t.Fatalf("expected AlreadyOwnerError, got %v", err)
	}
	if exists.Account != account {
		t.Fatalf("error names %s, want %s", exists.Account.Hex(), account.Hex())
	}
	if len(seen) != 1 {
		t.Fatalf("refused deploy emitted events: %d", len(seen))
	}

	current, err := f.World.Proxies.CurrentAccount(coretest.Owner)
	if err != nil {
		t.Fatalf("current account: %v", err)
	}
	if current != account {
		t.Fatalf("current account %s, want %s", current.Hex(), account.Hex())
	}
}

func TestViewDiscardsWrites(t *testing.T) {
	f := coretest.New(t)
	err := f.Node.View(func(w *core.World) error {
		if err := w.Bank.Transfer(coretest.WETH, coretest.Owner, coretest.Keeper, coretest.Ether(5)); err != nil {
			return err
		}
		return errors.New("stop")
	})
	if err == nil || err.Error() != "stop" {
		t.Fatalf("expected view error, got %v", err)
	}
	if f.Balance(coretest.WETH, coretest.Keeper).Sign() != 0 {
		t.Fatalf("view write survived")
	}
}

func TestViewDropsEvents(t *testing.T) {
	var seen []*types.Event
	f := coretest.New(t, core.WithListener(func(ev *types.Event) {
		seen = append(seen, ev)
	}))
	seen = nil

	err := f.Node.View(func(w *core.World) error {
		_, err := w.Proxies.Deploy(coretest.Stranger)
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if account, _ := f.World.Proxies.CurrentAccount(coretest.Stranger); account != (common.Address{}) {
		t.Fatalf("view deployed an account: %s", account.Hex())
	}

	f.MustSubmit(coretest.Owner, bank.Address, nil, transferData(coretest.WETH, coretest.Keeper, 1))
	for _, ev := range seen {
		if ev.Type == events.TypeProxyDeployed {
			t.Fatalf("event emitted inside a view was delivered with a later transaction")
		}
	}
}
