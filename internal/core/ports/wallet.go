package ports

import (
	"context"
	"math/big"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is a signing request handed to the wallet. The wallet fills in
// nonce, gas and fees.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// WalletProvider is the capability set of an injected wallet.
//
// RequestAccounts returns domain.ErrUserRejected when the user declines access.
// SwitchChain returns domain.ErrUnrecognizedChain when the provider does not
// know the chain, in which case AddChain may register it.
// SendTransaction returns domain.ErrUserRejected when the user declines to
// sign; a returned hash means the request was accepted and broadcast.
type WalletProvider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, network domain.Network) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	Subscribe(ctx context.Context) (<-chan domain.WalletEvent, error)
	Close()
}
