package ports

import (
	"context"
	"math/big"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ContractReader is the query half of the contract gateway. It needs no
// account. Every failure is a *domain.ReadError.
type ContractReader interface {
	NextTaskID(ctx context.Context) (uint64, error)
	Task(ctx context.Context, id uint64) (*domain.Task, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
	Verifier(ctx context.Context) (common.Address, error)
	PlatformFeeBps(ctx context.Context) (uint64, error)
}

// ContractWriter is the command half of the contract gateway. Methods return
// as soon as the wallet accepted the signing request; they never wait for
// confirmation.
type ContractWriter interface {
	CreateTaskNative(ctx context.Context, maxParticipants uint64, value *big.Int) (common.Hash, error)
	AllocateReward(ctx context.Context, taskID uint64, user common.Address, amount *big.Int) (common.Hash, error)
	WithdrawNative(ctx context.Context) (common.Hash, error)
	Account() common.Address
}

// ReceiptSource reports the inclusion state of submitted transactions.
type ReceiptSource interface {
	TxStatus(ctx context.Context, hash common.Hash) (domain.ChainTxStatus, *domain.Receipt, error)
	RevertReason(ctx context.Context, hash common.Hash) (string, error)
}

// ChainWatcher delivers contract notifications until ctx is done or the
// underlying subscription fails.
type ChainWatcher interface {
	WatchEvents(ctx context.Context, sink chan<- domain.ChainEvent) error
}

// ContractGateway binds a contract to a read-only connection.
type ContractGateway interface {
	ContractReader
	ReceiptSource
	ChainWatcher
	// Bind returns a signing writer that sends through the given wallet on
	// behalf of account.
	Bind(wallet WalletProvider, account common.Address) ContractWriter
}
