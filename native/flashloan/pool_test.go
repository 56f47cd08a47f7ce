package flashloan

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	"cdpproxy/native/bank"
	"cdpproxy/storage"
)

var (
	token      = common.HexToAddress("0x0000000000000000000000000000000000000f02")
	receiverAt = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	initiator  = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

const kindReceiver vm.Kind = "test.receiver"

type stubReceiver struct {
	ledger    *bank.Ledger
	approve   bool
	result    bool
	seenMsg   vm.Message
	initiator common.Address
	premiums  []*big.Int
	params    []byte
}

func (s *stubReceiver) ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	s.seenMsg = msg
	s.initiator = initiator
	s.premiums = premiums
	s.params = params
	if s.approve {
		owed := new(big.Int).Add(amounts[0], premiums[0])
		if err := s.ledger.Approve(assets[0], msg.Self(), msg.Caller, owed); err != nil {
			return false, err
		}
	}
	return s.result, nil
}

func newPoolFixture(t *testing.T, premiumBps uint64) (*vm.Env, *bank.Ledger, *Pool, *stubReceiver) {
	t.Helper()
	env := vm.NewEnv(state.NewManager(storage.NewMemDB()), nil)
	ledger := bank.NewLedger(env)
	if err := ledger.RegisterAsset(bank.Asset{Address: token, Symbol: "WETH", Decimals: 18}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ledger.Credit(token, Address, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("credit pool: %v", err)
	}
	recv := &stubReceiver{ledger: ledger, approve: true, result: true}
	env.Bind(kindReceiver, recv)
	if err := env.Install(receiverAt, kindReceiver); err != nil {
		t.Fatalf("install receiver: %v", err)
	}
	return env, ledger, NewPool(Address, env, ledger, premiumBps), recv
}

func TestFlashLoanRoundTripCollectsPremium(t *testing.T) {
	_, ledger, pool, recv := newPoolFixture(t, 9)
	if err := ledger.Credit(token, receiverAt, big.NewInt(100)); err != nil {
		t.Fatalf("credit receiver: %v", err)
	}
	amount := big.NewInt(100_000)
	err := pool.FlashLoan(initiator, receiverAt, []common.Address{token}, []*big.Int{amount}, []uint8{0}, receiverAt, []byte("ctx"), 0)
	if err != nil {
		t.Fatalf("flashloan: %v", err)
	}
	if recv.seenMsg.Caller != Address || recv.initiator != initiator {
		t.Fatalf("callback saw caller %s initiator %s", recv.seenMsg.Caller.Hex(), recv.initiator.Hex())
	}
	if string(recv.params) != "ctx" {
		t.Fatalf("params not forwarded: %q", recv.params)
	}
	if recv.premiums[0].Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("premium = %s, want 90", recv.premiums[0])
	}
	bal, _ := ledger.BalanceOf(token, Address)
	if bal.Cmp(big.NewInt(1_000_090)) != 0 {
		t.Fatalf("pool balance = %s, want 1000090", bal)
	}
}

func TestFlashLoanFailsWhenReceiverCannotRepay(t *testing.T) {
	env, _, pool, _ := newPoolFixture(t, 9)
	err := env.Apply(func() error {
		return pool.FlashLoan(initiator, receiverAt, []common.Address{token}, []*big.Int{big.NewInt(100_000)}, []uint8{0}, receiverAt, nil, 0)
	})
	if !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected opaque insufficient balance failure, got %v", err)
	}
}

func TestFlashLoanRejectsFalseReturnAndBadModes(t *testing.T) {
	_, _, pool, recv := newPoolFixture(t, 0)
	recv.result = false
	err := pool.FlashLoan(initiator, receiverAt, []common.Address{token}, []*big.Int{big.NewInt(10)}, []uint8{0}, receiverAt, nil, 0)
	if !errors.Is(err, ErrInvalidReturn) {
		t.Fatalf("expected ErrInvalidReturn, got %v", err)
	}
	err = pool.FlashLoan(initiator, receiverAt, []common.Address{token}, []*big.Int{big.NewInt(10)}, []uint8{2}, receiverAt, nil, 0)
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	err = pool.FlashLoan(initiator, receiverAt, []common.Address{token}, []*big.Int{big.NewInt(10)}, nil, receiverAt, nil, 0)
	if !errors.Is(err, ErrInconsistentParams) {
		t.Fatalf("expected ErrInconsistentParams, got %v", err)
	}
}
