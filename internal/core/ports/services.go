package ports

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceFeed is a best-effort USD price lookup for the native currency.
type PriceFeed interface {
	NativeUSDPrice(ctx context.Context) (decimal.Decimal, error)
}

// VerificationBackend receives completion claims. It has no effect on chain
// or mirror state.
type VerificationBackend interface {
	RequestVerification(ctx context.Context, taskID uint64, account common.Address) error
}

type SchedulerService interface {
	Start()
	Stop()
	ScheduleEvery(interval time.Duration, fn func()) error
}

type RepoManager interface {
	Transactions() domain.TransactionRepository
	Close()
}
