package local

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// Backend is the subset of an ethclient.Client the wallet signs and
// broadcasts through.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

type Dialer func(ctx context.Context, url string) (Backend, error)

type Option func(*wallet)

// WithDialer replaces the function used to reach a network's RPC endpoint.
func WithDialer(dial Dialer) Option {
	return func(w *wallet) {
		w.dial = dial
	}
}

// wallet is an in-process key holder. It knows the networks it was built
// with plus any registered through AddChain, and is initially on the first.
type wallet struct {
	key     *ecdsa.PrivateKey
	account common.Address
	dial    Dialer

	lock     sync.Mutex
	networks map[uint64]domain.Network
	backends map[uint64]Backend
	current  uint64
	subs     map[chan domain.WalletEvent]struct{}
	closed   bool
}

func NewWallet(
	key *ecdsa.PrivateKey, network domain.Network, opts ...Option,
) ports.WalletProvider {
	w := &wallet{
		key:      key,
		account:  crypto.PubkeyToAddress(key.PublicKey),
		dial:     dialEthclient,
		networks: map[uint64]domain.Network{network.ChainID: network},
		backends: make(map[uint64]Backend),
		current:  network.ChainID,
		subs:     make(map[chan domain.WalletEvent]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *wallet) RequestAccounts(_ context.Context) ([]common.Address, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil, fmt.Errorf("wallet closed")
	}
	return []common.Address{w.account}, nil
}

func (w *wallet) ChainID(_ context.Context) (uint64, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.current, nil
}

func (w *wallet) SwitchChain(_ context.Context, chainID uint64) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if _, ok := w.networks[chainID]; !ok {
		return fmt.Errorf("chain %d: %w", chainID, domain.ErrUnrecognizedChain)
	}
	if w.current == chainID {
		return nil
	}
	w.current = chainID
	w.notify(domain.WalletEvent{Kind: domain.WalletChainChanged, ChainID: chainID})
	return nil
}

// AddChain registers a network after checking its RPC endpoint actually serves
// the advertised chain id.
func (w *wallet) AddChain(ctx context.Context, network domain.Network) error {
	if len(network.RPCURLs) == 0 {
		return fmt.Errorf("network %d has no rpc endpoint", network.ChainID)
	}

	backend, err := w.dial(ctx, network.RPCURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", network.RPCURLs[0], err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to get chain id of %s: %w", network.RPCURLs[0], err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != network.ChainID {
		backend.Close()
		return fmt.Errorf(
			"rpc endpoint serves chain %s, expected %d", chainID, network.ChainID,
		)
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if old, ok := w.backends[network.ChainID]; ok {
		old.Close()
	}
	w.networks[network.ChainID] = network
	w.backends[network.ChainID] = backend

	log.WithField("chain_id", network.ChainID).Debug("registered network in local wallet")
	return nil
}

func (w *wallet) SendTransaction(ctx context.Context, req ports.TxRequest) (common.Hash, error) {
	if req.From != w.account {
		return common.Hash{}, fmt.Errorf("unknown account %s", req.From.Hex())
	}

	backend, chainID, err := w.currentBackend(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To

	nonce, err := backend.PendingNonceAt(ctx, w.account)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas tip: %w", err)
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.account,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return signed.Hash(), nil
}

func (w *wallet) Subscribe(ctx context.Context) (<-chan domain.WalletEvent, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil, fmt.Errorf("wallet closed")
	}

	ch := make(chan domain.WalletEvent, 8)
	w.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		w.lock.Lock()
		defer w.lock.Unlock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (w *wallet) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for _, backend := range w.backends {
		backend.Close()
	}
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
}

func (w *wallet) currentBackend(ctx context.Context) (Backend, uint64, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil, 0, fmt.Errorf("wallet closed")
	}
	chainID := w.current
	if backend, ok := w.backends[chainID]; ok {
		return backend, chainID, nil
	}
	network := w.networks[chainID]
	if len(network.RPCURLs) == 0 {
		return nil, 0, fmt.Errorf("network %d has no rpc endpoint", chainID)
	}
	backend, err := w.dial(ctx, network.RPCURLs[0])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to dial %s: %w", network.RPCURLs[0], err)
	}
	w.backends[chainID] = backend
	return backend, chainID, nil
}

// notify must be called with the lock held. Slow subscribers miss events
// rather than blocking the wallet.
func (w *wallet) notify(event domain.WalletEvent) {
	for ch := range w.subs {
		select {
		case ch <- event:
		default:
			log.Warnf("dropping %s wallet event for slow subscriber", event.Kind)
		}
	}
}

func dialEthclient(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}
