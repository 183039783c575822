package rpcwallet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"
)

// Provider error codes defined by EIP-1193 and EIP-3085.
const (
	codeUserRejected      = 4001
	codeUnrecognizedChain = 4902
)

const defaultPollInterval = 2 * time.Second

type Option func(*wallet)

// WithPollInterval sets how often eth_accounts and eth_chainId are polled to
// detect account and network changes.
func WithPollInterval(interval time.Duration) Option {
	return func(w *wallet) {
		w.pollInterval = interval
	}
}

// wallet talks to a remote EIP-1193 style wallet over JSON-RPC.
type wallet struct {
	client       *rpc.Client
	pollInterval time.Duration

	lock   sync.Mutex
	cancel []context.CancelFunc
}

func NewWallet(url string, opts ...Option) (ports.WalletProvider, error) {
	client, err := rpc.DialContext(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet at %s: %w", url, err)
	}
	return NewWalletFromClient(client, opts...), nil
}

func NewWalletFromClient(client *rpc.Client, opts ...Option) ports.WalletProvider {
	w := &wallet{
		client:       client,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *wallet) ChainID(ctx context.Context) (uint64, error) {
	var chainID hexutil.Uint64
	if err := w.call(ctx, &chainID, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(chainID), nil
}

func (w *wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	return w.call(ctx, nil, "wallet_switchEthereumChain", switchChainParams{
		ChainID: hexutil.Uint64(chainID),
	})
}

func (w *wallet) AddChain(ctx context.Context, network domain.Network) error {
	return w.call(ctx, nil, "wallet_addEthereumChain", addChainParams{
		ChainID:   hexutil.Uint64(network.ChainID),
		ChainName: network.Name,
		NativeCurrency: nativeCurrency{
			Name:     network.Currency.Name,
			Symbol:   network.Currency.Symbol,
			Decimals: network.Currency.Decimals,
		},
		RPCURLs:           network.RPCURLs,
		BlockExplorerURLs: network.ExplorerURLs,
	})
}

func (w *wallet) SendTransaction(ctx context.Context, req ports.TxRequest) (common.Hash, error) {
	params := sendTxParams{
		From: req.From,
		To:   req.To,
		Data: req.Data,
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		params.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := w.call(ctx, &hash, "eth_sendTransaction", params); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Subscribe polls the wallet for account and network changes. Remote wallets
// reached over HTTP cannot push EIP-1193 notifications.
func (w *wallet) Subscribe(ctx context.Context) (<-chan domain.WalletEvent, error) {
	accounts, err := w.accounts(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := w.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.lock.Lock()
	w.cancel = append(w.cancel, cancel)
	w.lock.Unlock()

	ch := make(chan domain.WalletEvent, 8)
	go w.poll(ctx, ch, accounts, chainID)
	return ch, nil
}

func (w *wallet) Close() {
	w.lock.Lock()
	for _, cancel := range w.cancel {
		cancel()
	}
	w.cancel = nil
	w.lock.Unlock()

	w.client.Close()
}

func (w *wallet) poll(
	ctx context.Context, ch chan<- domain.WalletEvent,
	accounts []common.Address, chainID uint64,
) {
	defer close(ch)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		latestChainID, err := w.ChainID(ctx)
		if err != nil {
			log.WithError(err).Debug("failed to poll wallet chain id")
			continue
		}
		if latestChainID != chainID {
			chainID = latestChainID
			if !send(ctx, ch, domain.WalletEvent{
				Kind: domain.WalletChainChanged, ChainID: chainID,
			}) {
				return
			}
		}

		latestAccounts, err := w.accounts(ctx)
		if err != nil {
			log.WithError(err).Debug("failed to poll wallet accounts")
			continue
		}
		if !slices.Equal(latestAccounts, accounts) {
			accounts = latestAccounts
			if !send(ctx, ch, domain.WalletEvent{
				Kind: domain.WalletAccountsChanged, Accounts: accounts, ChainID: chainID,
			}) {
				return
			}
		}
	}
}

func (w *wallet) accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *wallet) call(ctx context.Context, result any, method string, args ...any) error {
	if err := w.client.CallContext(ctx, result, method, args...); err != nil {
		return mapProviderError(method, err)
	}
	return nil
}

func send(ctx context.Context, ch chan<- domain.WalletEvent, event domain.WalletEvent) bool {
	select {
	case ch <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func mapProviderError(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return fmt.Errorf("%s: %w", method, domain.ErrUserRejected)
		case codeUnrecognizedChain:
			return fmt.Errorf("%s: %w", method, domain.ErrUnrecognizedChain)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}
