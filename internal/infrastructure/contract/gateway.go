package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const defaultEventPollInterval = 5 * time.Second

// Backend is the read-only ledger connection the gateway is built from.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	ethereum.LogFilterer
	ethereum.TransactionReader
	BlockNumber(ctx context.Context) (uint64, error)
}

type Option func(*gateway)

// WithSubscriptions makes WatchEvents use log subscriptions instead of
// polling. Only websocket endpoints support them.
func WithSubscriptions(enabled bool) Option {
	return func(g *gateway) {
		g.subscribe = enabled
	}
}

func WithEventPollInterval(interval time.Duration) Option {
	return func(g *gateway) {
		if interval > 0 {
			g.pollInterval = interval
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(g *gateway) {
		g.clock = clock
	}
}

type gateway struct {
	address  common.Address
	abi      abi.ABI
	backend  Backend
	contract *bind.BoundContract

	subscribe    bool
	pollInterval time.Duration
	clock        clockwork.Clock
}

// Dial connects to the ledger RPC at url and binds the contract at address.
func Dial(
	ctx context.Context, url string, address common.Address, opts ...Option,
) (ports.ContractGateway, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial ledger rpc %s: %w", url, err)
	}
	gw, err := NewGateway(client, address, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return gw, client.Close, nil
}

func NewGateway(
	backend Backend, address common.Address, opts ...Option,
) (ports.ContractGateway, error) {
	parsed, err := abi.JSON(strings.NewReader(TaskContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	g := &gateway{
		address:      address,
		abi:          parsed,
		backend:      backend,
		contract:     bind.NewBoundContract(address, parsed, backend, nil, backend),
		pollInterval: defaultEventPollInterval,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *gateway) NextTaskID(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, methodNextTaskID)
	if err != nil {
		return 0, err
	}
	n, err := uint64Output(out, 0)
	if err != nil {
		return 0, domain.NewReadError("next task id", err)
	}
	return n, nil
}

func (g *gateway) Task(ctx context.Context, id uint64) (*domain.Task, error) {
	op := fmt.Sprintf("task %d", id)

	out, err := g.call(ctx, methodTasks, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	task, err := decodeTask(id, out)
	if err != nil {
		return nil, domain.NewReadError(op, err)
	}
	return task, nil
}

func (g *gateway) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := g.call(ctx, methodNativeBalances, account)
	if err != nil {
		return nil, err
	}
	balance, err := bigOutput(out, 0)
	if err != nil {
		return nil, domain.NewReadError("balance", err)
	}
	return balance, nil
}

func (g *gateway) Owner(ctx context.Context) (common.Address, error) {
	return g.addressRead(ctx, methodOwner)
}

func (g *gateway) Verifier(ctx context.Context) (common.Address, error) {
	return g.addressRead(ctx, methodVerifier)
}

func (g *gateway) PlatformFeeBps(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, methodPlatformFee)
	if err != nil {
		return 0, err
	}
	fee, err := uint64Output(out, 0)
	if err != nil {
		return 0, domain.NewReadError("platform fee", err)
	}
	return fee, nil
}

func (g *gateway) Bind(wallet ports.WalletProvider, account common.Address) ports.ContractWriter {
	return &writer{gateway: g, wallet: wallet, account: account}
}

func (g *gateway) TxStatus(
	ctx context.Context, hash common.Hash,
) (domain.ChainTxStatus, *domain.Receipt, error) {
	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	if err == nil {
		return domain.ChainTxIncluded, &domain.Receipt{
			Hash:        hash,
			Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
			BlockNumber: receipt.BlockNumber.Uint64(),
		}, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return domain.ChainTxUnknown, nil, domain.NewReadError("receipt", err)
	}

	// Known to the node, either in the mempool or mined but not yet indexed.
	if _, _, err := g.backend.TransactionByHash(ctx, hash); err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return domain.ChainTxUnknown, nil, nil
		}
		return domain.ChainTxUnknown, nil, domain.NewReadError("transaction", err)
	}
	return domain.ChainTxPending, nil, nil
}

// RevertReason replays a reverted transaction at its inclusion block and
// decodes the Error(string) payload. It returns an empty reason when none
// can be recovered.
func (g *gateway) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	tx, _, err := g.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return "", domain.NewReadError("transaction", err)
	}
	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return "", domain.NewReadError("receipt", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("failed to recover sender: %w", err)
	}

	_, err = g.backend.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return "", nil
	}
	return revertReason(err), nil
}

func (g *gateway) addressRead(ctx context.Context, method string) (common.Address, error) {
	out, err := g.call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, domain.NewReadError(method, fmt.Errorf("empty response"))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, domain.NewReadError(
			method, fmt.Errorf("unexpected output type %T", out[0]),
		)
	}
	return addr, nil
}

func (g *gateway) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	metrics.RecordChainRead(method, err)
	if err != nil {
		return nil, domain.NewReadError(method, err)
	}
	return out, nil
}

type writer struct {
	gateway *gateway
	wallet  ports.WalletProvider
	account common.Address
}

func (w *writer) Account() common.Address {
	return w.account
}

func (w *writer) CreateTaskNative(
	ctx context.Context, maxParticipants uint64, value *big.Int,
) (common.Hash, error) {
	return w.send(ctx, value, methodCreateTaskNative, new(big.Int).SetUint64(maxParticipants))
}

func (w *writer) AllocateReward(
	ctx context.Context, taskID uint64, user common.Address, amount *big.Int,
) (common.Hash, error) {
	return w.send(ctx, nil, methodAllocateReward, new(big.Int).SetUint64(taskID), user, amount)
}

func (w *writer) WithdrawNative(ctx context.Context) (common.Hash, error) {
	return w.send(ctx, nil, methodWithdrawNative)
}

func (w *writer) send(
	ctx context.Context, value *big.Int, method string, args ...any,
) (common.Hash, error) {
	data, err := w.gateway.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	hash, err := w.wallet.SendTransaction(ctx, ports.TxRequest{
		From:  w.account,
		To:    w.gateway.address,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, err
	}

	log.WithFields(log.Fields{
		"method": method,
		"tx":     hash.Hex(),
	}).Debug("transaction accepted by wallet")
	return hash, nil
}

func decodeTask(id uint64, out []any) (*domain.Task, error) {
	if len(out) != 6 {
		return nil, fmt.Errorf("expected 6 outputs, got %d", len(out))
	}
	creator, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected creator type %T", out[0])
	}
	token, ok := out[1].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected token type %T", out[1])
	}
	remaining, err := bigOutput(out, 2)
	if err != nil {
		return nil, err
	}
	maxParticipants, err := uint64Output(out, 3)
	if err != nil {
		return nil, err
	}
	participantsPaid, err := uint64Output(out, 4)
	if err != nil {
		return nil, err
	}
	isActive, ok := out[5].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected isActive type %T", out[5])
	}
	if participantsPaid > maxParticipants {
		return nil, fmt.Errorf(
			"participants paid %d exceeds max participants %d", participantsPaid, maxParticipants,
		)
	}

	return &domain.Task{
		ID:               id,
		Creator:          creator,
		Token:            token,
		RemainingReward:  remaining,
		MaxParticipants:  maxParticipants,
		ParticipantsPaid: participantsPaid,
		IsActive:         isActive,
	}, nil
}

func bigOutput(out []any, i int) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("missing output %d", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("unexpected output type %T", out[i])
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative output %s", v)
	}
	return v, nil
}

func uint64Output(out []any, i int) (uint64, error) {
	v, err := bigOutput(out, i)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("output %s overflows uint64", v)
	}
	return v.Uint64(), nil
}

func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return strings.TrimPrefix(err.Error(), "execution reverted: ")
}

func blockNumber(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
