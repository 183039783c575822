package application_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var errRPC = errors.New("rpc unavailable")

// fakeChain is an in-memory task contract. Writes stay pending until
// confirmed, unless autoConfirm is set.
type fakeChain struct {
	mu sync.Mutex

	tasks    []domain.Task
	balances map[common.Address]*big.Int
	owner    common.Address
	verifier common.Address
	feeBps   uint64

	readErr     error
	taskErrs    map[uint64]error
	feeErr      error
	sendErr     error
	autoConfirm bool

	// nextIDHook runs after the counter was read, outside the lock.
	nextIDHook func(call int, next uint64)
	readHook   func()

	nextIDCalls int
	taskCalls   int
	watchCalls  int
	writes      []string

	// watchErrs ends the running event watch with the sent error.
	watchErrs chan error

	hashes   int
	status   map[common.Hash]domain.ChainTxStatus
	receipts map[common.Hash]*domain.Receipt
	reasons  map[common.Hash]string
	effects  map[common.Hash]func()
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[common.Address]*big.Int),
		status:   make(map[common.Hash]domain.ChainTxStatus),
		receipts: make(map[common.Hash]*domain.Receipt),
		reasons:  make(map[common.Hash]string),
		effects:  make(map[common.Hash]func()),

		watchErrs: make(chan error),
	}
}

func (c *fakeChain) addTask(creator common.Address, reward int64, maxParticipants uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uint64(len(c.tasks))
	c.tasks = append(c.tasks, domain.Task{
		ID:              id,
		Creator:         creator,
		RemainingReward: big.NewInt(reward),
		MaxParticipants: maxParticipants,
		IsActive:        true,
	})
	return id
}

func (c *fakeChain) setTask(task domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task.ID] = task
}

func (c *fakeChain) setBalance(account common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = big.NewInt(amount)
}

func (c *fakeChain) setReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// setTaskErr fails reads of a single task id while the counter keeps working.
func (c *fakeChain) setTaskErr(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taskErrs == nil {
		c.taskErrs = make(map[uint64]error)
	}
	if err == nil {
		delete(c.taskErrs, id)
		return
	}
	c.taskErrs[id] = err
}

func (c *fakeChain) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeChain) counterReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextIDCalls
}

func (c *fakeChain) taskReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskCalls
}

func (c *fakeChain) NextTaskID(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	c.nextIDCalls++
	call, next := c.nextIDCalls, uint64(len(c.tasks))
	err, hook, readHook := c.readErr, c.nextIDHook, c.readHook
	c.mu.Unlock()

	if readHook != nil {
		readHook()
	}
	if hook != nil {
		hook(call, next)
	}
	if err != nil {
		return 0, domain.NewReadError("next task id", err)
	}
	return next, nil
}

func (c *fakeChain) Task(ctx context.Context, id uint64) (*domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskCalls++
	if c.readErr != nil {
		return nil, domain.NewReadError(fmt.Sprintf("task %d", id), c.readErr)
	}
	if err := c.taskErrs[id]; err != nil {
		return nil, domain.NewReadError(fmt.Sprintf("task %d", id), err)
	}
	if id >= uint64(len(c.tasks)) {
		return nil, domain.NewReadError(fmt.Sprintf("task %d", id), fmt.Errorf("out of range"))
	}
	task := c.tasks[id].Clone()
	return &task, nil
}

func (c *fakeChain) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	err, readHook := c.readErr, c.readHook
	balance, ok := c.balances[account]
	c.mu.Unlock()

	if readHook != nil {
		readHook()
	}
	if err != nil {
		return nil, domain.NewReadError("balance", err)
	}
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

func (c *fakeChain) Owner(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	err, readHook := c.readErr, c.readHook
	owner := c.owner
	c.mu.Unlock()

	if readHook != nil {
		readHook()
	}
	if err != nil {
		return common.Address{}, domain.NewReadError("owner", err)
	}
	return owner, nil
}

func (c *fakeChain) Verifier(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return common.Address{}, domain.NewReadError("verifier", c.readErr)
	}
	return c.verifier, nil
}

func (c *fakeChain) PlatformFeeBps(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feeErr != nil {
		return 0, domain.NewReadError("platform fee", c.feeErr)
	}
	return c.feeBps, nil
}

func (c *fakeChain) TxStatus(
	ctx context.Context, hash common.Hash,
) (domain.ChainTxStatus, *domain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.status[hash]
	if status != domain.ChainTxIncluded {
		return status, nil, nil
	}
	receipt := *c.receipts[hash]
	return status, &receipt, nil
}

func (c *fakeChain) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasons[hash], nil
}

func (c *fakeChain) WatchEvents(ctx context.Context, sink chan<- domain.ChainEvent) error {
	c.mu.Lock()
	c.watchCalls++
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.watchErrs:
		return err
	}
}

func (c *fakeChain) watchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchCalls
}

func (c *fakeChain) Bind(wallet ports.WalletProvider, account common.Address) ports.ContractWriter {
	return &fakeWriter{chain: c, account: account}
}

// submit must be called with the lock held.
func (c *fakeChain) submit(kind string, effect func()) (common.Hash, error) {
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	c.writes = append(c.writes, kind)
	c.hashes++
	hash := common.BigToHash(big.NewInt(int64(c.hashes)))
	c.status[hash] = domain.ChainTxPending
	c.effects[hash] = effect
	if c.autoConfirm {
		c.includeLocked(hash, true, "")
	}
	return hash, nil
}

func (c *fakeChain) lastHash() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.BigToHash(big.NewInt(int64(c.hashes)))
}

// include mines hash. A successful receipt applies the write's effect.
func (c *fakeChain) include(hash common.Hash, succeeded bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.includeLocked(hash, succeeded, reason)
}

func (c *fakeChain) includeLocked(hash common.Hash, succeeded bool, reason string) {
	c.status[hash] = domain.ChainTxIncluded
	c.receipts[hash] = &domain.Receipt{Hash: hash, Succeeded: succeeded, BlockNumber: 100}
	c.reasons[hash] = reason
	if effect := c.effects[hash]; succeeded && effect != nil {
		effect()
	}
	delete(c.effects, hash)
}

func (c *fakeChain) forget(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[hash] = domain.ChainTxUnknown
}

type fakeWriter struct {
	chain   *fakeChain
	account common.Address
}

func (w *fakeWriter) Account() common.Address { return w.account }

func (w *fakeWriter) CreateTaskNative(
	ctx context.Context, maxParticipants uint64, value *big.Int,
) (common.Hash, error) {
	c := w.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	creator := w.account
	reward := new(big.Int).Set(value)
	return c.submit("createTaskNative", func() {
		c.tasks = append(c.tasks, domain.Task{
			ID:              uint64(len(c.tasks)),
			Creator:         creator,
			RemainingReward: reward,
			MaxParticipants: maxParticipants,
			IsActive:        true,
		})
	})
}

func (w *fakeWriter) AllocateReward(
	ctx context.Context, taskID uint64, user common.Address, amount *big.Int,
) (common.Hash, error) {
	c := w.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	value := new(big.Int).Set(amount)
	return c.submit("allocateReward", func() {
		task := &c.tasks[taskID]
		task.RemainingReward = new(big.Int).Sub(task.RemainingReward, value)
		task.ParticipantsPaid++
		balance, ok := c.balances[user]
		if !ok {
			balance = new(big.Int)
		}
		c.balances[user] = new(big.Int).Add(balance, value)
	})
}

func (w *fakeWriter) WithdrawNative(ctx context.Context) (common.Hash, error) {
	c := w.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	account := w.account
	return c.submit("withdrawNative", func() {
		c.balances[account] = new(big.Int)
	})
}

// fakeWallet knows the chains in known and starts on chainID.
type fakeWallet struct {
	mu sync.Mutex

	accounts   []common.Address
	requestErr error
	chainID    uint64
	known      map[uint64]bool
	switchErr  error
	addErr     error
	calls      []string
	events     chan domain.WalletEvent
}

func newFakeWallet(chainID uint64, accounts ...common.Address) *fakeWallet {
	return &fakeWallet{
		accounts: accounts,
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true, testChainID: true},
		events:   make(chan domain.WalletEvent, 8),
	}
}

func (w *fakeWallet) callLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

func (w *fakeWallet) setChain(chainID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
}

func (w *fakeWallet) setAccounts(accounts ...common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
}

func (w *fakeWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "requestAccounts")
	if w.requestErr != nil {
		return nil, w.requestErr
	}
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *fakeWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "switchChain")
	if w.switchErr != nil {
		return w.switchErr
	}
	if !w.known[chainID] {
		return domain.ErrUnrecognizedChain
	}
	w.chainID = chainID
	return nil
}

func (w *fakeWallet) AddChain(ctx context.Context, network domain.Network) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "addChain")
	if w.addErr != nil {
		return w.addErr
	}
	w.known[network.ChainID] = true
	return nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, req ports.TxRequest) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("not used")
}

func (w *fakeWallet) Subscribe(ctx context.Context) (<-chan domain.WalletEvent, error) {
	return w.events, nil
}

func (w *fakeWallet) Close() {}

type fakePriceFeed struct {
	price decimal.Decimal
	err   error
}

func (f fakePriceFeed) NativeUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

type fakeVerifier struct {
	requests chan uint64
}

func (f *fakeVerifier) RequestVerification(
	ctx context.Context, taskID uint64, account common.Address,
) error {
	f.requests <- taskID
	return nil
}
