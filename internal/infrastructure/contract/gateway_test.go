package contract_test

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/contract"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x5571d4b93eB7469BaA0d41dCFf4A42944b830A33")
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	verifier     = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	taskABI = mustParseABI()
)

func TestReads(t *testing.T) {
	chain := newFakeChain()
	chain.addTask(task(0, 100, 5, 1, true))
	chain.addTask(task(1, 0, 3, 3, false))
	chain.balances[alice] = big.NewInt(42)

	gw, err := contract.NewGateway(chain, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := gw.NextTaskID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	got, err := gw.Task(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got.ID)
	require.Equal(t, owner, got.Creator)
	require.True(t, got.IsNative())
	require.Equal(t, int64(100), got.RemainingReward.Int64())
	require.Equal(t, uint64(5), got.MaxParticipants)
	require.Equal(t, uint64(1), got.ParticipantsPaid)
	require.True(t, got.IsActive)

	got, err = gw.Task(ctx, 1)
	require.NoError(t, err)
	require.True(t, got.IsTerminal())

	balance, err := gw.NativeBalance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(42), balance.Int64())

	balance, err = gw.NativeBalance(ctx, verifier)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	gotOwner, err := gw.Owner(ctx)
	require.NoError(t, err)
	require.Equal(t, owner, gotOwner)

	gotVerifier, err := gw.Verifier(ctx)
	require.NoError(t, err)
	require.Equal(t, verifier, gotVerifier)

	fee, err := gw.PlatformFeeBps(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2500), fee)
}

func TestReadFailures(t *testing.T) {
	t.Run("rpc error", func(t *testing.T) {
		chain := newFakeChain()
		chain.failMethod = "nextTaskId"
		gw, err := contract.NewGateway(chain, contractAddr)
		require.NoError(t, err)

		_, err = gw.NextTaskID(context.Background())
		require.ErrorIs(t, err, domain.ErrRead)
	})

	t.Run("inconsistent task", func(t *testing.T) {
		chain := newFakeChain()
		chain.addTask(task(0, 100, 2, 3, true))
		gw, err := contract.NewGateway(chain, contractAddr)
		require.NoError(t, err)

		_, err = gw.Task(context.Background(), 0)
		require.ErrorIs(t, err, domain.ErrRead)
		require.ErrorContains(t, err, "exceeds max participants")
	})

	t.Run("truncated response", func(t *testing.T) {
		chain := newFakeChain()
		chain.truncate = true
		gw, err := contract.NewGateway(chain, contractAddr)
		require.NoError(t, err)

		_, err = gw.Owner(context.Background())
		require.ErrorIs(t, err, domain.ErrRead)
	})
}

func TestWrites(t *testing.T) {
	gw, err := contract.NewGateway(newFakeChain(), contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	wallet := &recordingWallet{}
	writer := gw.Bind(wallet, owner)
	require.Equal(t, owner, writer.Account())

	_, err = writer.CreateTaskNative(ctx, 10, big.NewInt(5000))
	require.NoError(t, err)
	_, err = writer.AllocateReward(ctx, 3, alice, big.NewInt(50))
	require.NoError(t, err)
	_, err = writer.WithdrawNative(ctx)
	require.NoError(t, err)

	require.Len(t, wallet.requests, 3)
	for _, req := range wallet.requests {
		require.Equal(t, owner, req.From)
		require.Equal(t, contractAddr, req.To)
	}

	create := wallet.requests[0]
	require.Equal(t, int64(5000), create.Value.Int64())
	method, args := decodeCall(t, create.Data)
	require.Equal(t, "createTaskNative", method)
	require.Equal(t, int64(10), args[0].(*big.Int).Int64())

	allocate := wallet.requests[1]
	require.Nil(t, allocate.Value)
	method, args = decodeCall(t, allocate.Data)
	require.Equal(t, "allocateReward", method)
	require.Equal(t, int64(3), args[0].(*big.Int).Int64())
	require.Equal(t, alice, args[1].(common.Address))
	require.Equal(t, int64(50), args[2].(*big.Int).Int64())

	method, _ = decodeCall(t, wallet.requests[2].Data)
	require.Equal(t, "withdrawNative", method)

	wallet.err = fmt.Errorf("eth_sendTransaction: %w", domain.ErrUserRejected)
	_, err = writer.WithdrawNative(ctx)
	require.ErrorIs(t, err, domain.ErrUserRejected)
}

func TestTxStatus(t *testing.T) {
	chain := newFakeChain()
	gw, err := contract.NewGateway(chain, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pending := chain.addTx(t, key, nil)
	included := chain.addTx(t, key, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)})
	reverted := chain.addTx(t, key, &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(11)})

	status, receipt, err := gw.TxStatus(ctx, common.HexToHash("0x1234"))
	require.NoError(t, err)
	require.Equal(t, domain.ChainTxUnknown, status)
	require.Nil(t, receipt)

	status, _, err = gw.TxStatus(ctx, pending)
	require.NoError(t, err)
	require.Equal(t, domain.ChainTxPending, status)

	status, receipt, err = gw.TxStatus(ctx, included)
	require.NoError(t, err)
	require.Equal(t, domain.ChainTxIncluded, status)
	require.True(t, receipt.Succeeded)
	require.Equal(t, uint64(10), receipt.BlockNumber)

	status, receipt, err = gw.TxStatus(ctx, reverted)
	require.NoError(t, err)
	require.Equal(t, domain.ChainTxIncluded, status)
	require.False(t, receipt.Succeeded)

	reason, err := gw.RevertReason(ctx, reverted)
	require.NoError(t, err)
	require.Equal(t, "Amount exceeds remaining reward", reason)
	require.Equal(t, big.NewInt(11), chain.replayedAt)

	chain.receiptErr = fmt.Errorf("connection refused")
	_, _, err = gw.TxStatus(ctx, included)
	require.ErrorIs(t, err, domain.ErrRead)
}

func TestWatchEventsPolling(t *testing.T) {
	chain := newFakeChain()
	chain.head = 100
	clock := clockwork.NewFakeClock()

	gw, err := contract.NewGateway(
		chain, contractAddr,
		contract.WithEventPollInterval(time.Second), contract.WithClock(clock),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan domain.ChainEvent, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.WatchEvents(ctx, sink)
	}()

	clock.BlockUntil(1)
	chain.emit(taskCreatedLog(t, 101, 7, owner, 10, 500))
	chain.emit(rewardAllocatedLog(t, 102, 7, alice, 50))
	chain.emit(rewardAllocatedLog(t, 90, 1, alice, 1))
	chain.setHead(102)
	clock.Advance(time.Second)

	created := <-sink
	require.Equal(t, domain.EventTaskCreated, created.Kind)
	require.Equal(t, uint64(7), created.TaskID)
	require.Equal(t, owner, created.Account)
	require.Equal(t, int64(500), created.Amount.Int64())

	allocated := <-sink
	require.Equal(t, domain.EventRewardAllocated, allocated.Kind)
	require.Equal(t, uint64(7), allocated.TaskID)
	require.Equal(t, alice, allocated.Account)
	require.Equal(t, int64(50), allocated.Amount.Int64())

	clock.BlockUntil(1)
	require.Empty(t, sink)
	require.Equal(t, [][2]uint64{{101, 102}}, chain.filterRanges())

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWatchEventsSubscription(t *testing.T) {
	chain := newFakeChain()
	gw, err := contract.NewGateway(chain, contractAddr, contract.WithSubscriptions(true))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan domain.ChainEvent, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.WatchEvents(ctx, sink)
	}()

	logs := <-chain.subscribed
	logs <- types.Log{Address: contractAddr, Topics: []common.Hash{common.HexToHash("0xdead")}}
	logs <- rewardAllocatedLog(t, 5, 2, alice, 50)

	ev := <-sink
	require.Equal(t, domain.EventRewardAllocated, ev.Kind)
	require.Equal(t, uint64(2), ev.TaskID)

	chain.subErr <- fmt.Errorf("websocket closed")
	err = <-errCh
	require.ErrorContains(t, err, "log subscription failed")
}

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(contract.TaskContractABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

func decodeCall(t *testing.T, data []byte) (string, []any) {
	t.Helper()
	method, err := taskABI.MethodById(data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return method.Name, args
}

func task(id, remaining, maxParticipants, paid uint64, active bool) domain.Task {
	return domain.Task{
		ID:               id,
		Creator:          owner,
		Token:            domain.NativeToken,
		RemainingReward:  new(big.Int).SetUint64(remaining),
		MaxParticipants:  maxParticipants,
		ParticipantsPaid: paid,
		IsActive:         active,
	}
}

func taskCreatedLog(
	t *testing.T, block, taskID uint64, creator common.Address, maxParticipants, total int64,
) types.Log {
	ev := taskABI.Events["TaskCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(maxParticipants), big.NewInt(total))
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{ev.ID, common.BigToHash(new(big.Int).SetUint64(taskID)), common.BytesToHash(creator.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func rewardAllocatedLog(
	t *testing.T, block, taskID uint64, user common.Address, amount int64,
) types.Log {
	ev := taskABI.Events["RewardAllocated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(amount))
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{ev.ID, common.BigToHash(new(big.Int).SetUint64(taskID)), common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

type recordingWallet struct {
	requests []ports.TxRequest
	err      error
}

func (w *recordingWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	return nil, nil
}
func (w *recordingWallet) ChainID(context.Context) (uint64, error)        { return 8453, nil }
func (w *recordingWallet) SwitchChain(context.Context, uint64) error      { return nil }
func (w *recordingWallet) AddChain(context.Context, domain.Network) error { return nil }
func (w *recordingWallet) Close()                                         {}
func (w *recordingWallet) Subscribe(context.Context) (<-chan domain.WalletEvent, error) {
	return nil, nil
}

func (w *recordingWallet) SendTransaction(_ context.Context, req ports.TxRequest) (common.Hash, error) {
	if w.err != nil {
		return common.Hash{}, w.err
	}
	w.requests = append(w.requests, req)
	return crypto.Keccak256Hash(req.Data), nil
}

type revertError struct {
	data string
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

type fakeChain struct {
	lock sync.Mutex

	tasks      []domain.Task
	balances   map[common.Address]*big.Int
	failMethod string
	truncate   bool

	txs        map[common.Hash]*types.Transaction
	receipts   map[common.Hash]*types.Receipt
	receiptErr error
	replayedAt *big.Int

	head       uint64
	logs       []types.Log
	ranges     [][2]uint64
	subscribed chan chan<- types.Log
	subErr     chan error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:   make(map[common.Address]*big.Int),
		txs:        make(map[common.Hash]*types.Transaction),
		receipts:   make(map[common.Hash]*types.Receipt),
		subscribed: make(chan chan<- types.Log, 1),
		subErr:     make(chan error, 1),
	}
}

func (c *fakeChain) addTask(task domain.Task) {
	c.tasks = append(c.tasks, task)
}

func (c *fakeChain) addTx(t *testing.T, key *ecdsa.PrivateKey, receipt *types.Receipt) common.Hash {
	t.Helper()
	data, err := taskABI.Pack("allocateReward", big.NewInt(0), alice, big.NewInt(1))
	require.NoError(t, err)

	to := contractAddr
	nonce := uint64(len(c.txs))
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       100_000,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(8453)), key)
	require.NoError(t, err)

	c.txs[signed.Hash()] = signed
	if receipt != nil {
		c.receipts[signed.Hash()] = receipt
	}
	return signed.Hash()
}

func (c *fakeChain) emit(l types.Log) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.logs = append(c.logs, l)
}

func (c *fakeChain) setHead(head uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.head = head
}

func (c *fakeChain) filterRanges() [][2]uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ranges
}

func (c *fakeChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (c *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	method, err := taskABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name == c.failMethod {
		return nil, fmt.Errorf("rpc unavailable")
	}
	if c.truncate {
		return []byte{0x01}, nil
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "nextTaskId":
		return method.Outputs.Pack(big.NewInt(int64(len(c.tasks))))
	case "tasks":
		t := c.tasks[args[0].(*big.Int).Uint64()]
		return method.Outputs.Pack(
			t.Creator, t.Token, t.RemainingReward,
			new(big.Int).SetUint64(t.MaxParticipants),
			new(big.Int).SetUint64(t.ParticipantsPaid),
			t.IsActive,
		)
	case "nativeBalances":
		balance, ok := c.balances[args[0].(common.Address)]
		if !ok {
			balance = new(big.Int)
		}
		return method.Outputs.Pack(balance)
	case "owner":
		return method.Outputs.Pack(owner)
	case "verifierWallet":
		return method.Outputs.Pack(verifier)
	case "platformFeeBps":
		return method.Outputs.Pack(big.NewInt(2500))
	case "allocateReward":
		c.replayedAt = block
		reason, err := abi.Arguments{{Type: mustType("string")}}.Pack("Amount exceeds remaining reward")
		if err != nil {
			return nil, err
		}
		payload := append(crypto.Keccak256([]byte("Error(string)"))[:4], reason...)
		return nil, revertError{data: hexutil.Encode(payload)}
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (c *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := c.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := c.receipts[hash]
	return tx, !mined, nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.head, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	c.ranges = append(c.ranges, [2]uint64{from, to})

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *fakeChain) SubscribeFilterLogs(
	_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log,
) (ethereum.Subscription, error) {
	c.subscribed <- ch
	return event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case err := <-c.subErr:
			return err
		case <-quit:
			return nil
		}
	}), nil
}

func mustType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
