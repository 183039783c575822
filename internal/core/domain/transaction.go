package domain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxKind int

const (
	TxKindCreateTask TxKind = iota
	TxKindAllocateReward
	TxKindWithdraw
)

func (k TxKind) String() string {
	switch k {
	case TxKindCreateTask:
		return "create-task"
	case TxKindAllocateReward:
		return "allocate-reward"
	case TxKindWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

func TxKindFromString(s string) (TxKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create-task":
		return TxKindCreateTask, nil
	case "allocate-reward":
		return TxKindAllocateReward, nil
	case "withdraw":
		return TxKindWithdraw, nil
	default:
		return 0, fmt.Errorf("invalid tx kind: %s", s)
	}
}

type TxState int

const (
	TxStateIdle TxState = iota
	TxStateSubmitted
	TxStateConfirmed
	TxStateFailed
)

func (s TxState) String() string {
	switch s {
	case TxStateIdle:
		return "idle"
	case TxStateSubmitted:
		return "submitted"
	case TxStateConfirmed:
		return "confirmed"
	case TxStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s TxState) IsSettled() bool {
	return s == TxStateConfirmed || s == TxStateFailed
}

// PendingTransaction is the journal record of one state-changing call. It is
// removed once settled and reflected in the mirror.
type PendingTransaction struct {
	ID          string
	Kind        TxKind
	State       TxState
	Hash        common.Hash
	ChainID     uint64
	From        common.Address
	TaskID      uint64
	Recipient   common.Address
	Amount      *big.Int
	SubmittedAt time.Time
	SettledAt   time.Time
	FailReason  string
}

// TxUpdate is emitted on every lifecycle transition of a transaction.
type TxUpdate struct {
	TxID  string
	Kind  TxKind
	State TxState
	Hash  common.Hash
	Err   error
	At    time.Time
}

// Receipt is the settled chain outcome of a transaction.
type Receipt struct {
	Hash        common.Hash
	Succeeded   bool
	BlockNumber uint64
}

type ChainTxStatus int

const (
	// ChainTxUnknown means the node knows neither the tx nor a receipt.
	ChainTxUnknown ChainTxStatus = iota
	ChainTxPending
	ChainTxIncluded
)

type TransactionRepository interface {
	Add(ctx context.Context, tx PendingTransaction) error
	Update(ctx context.Context, tx PendingTransaction) error
	Get(ctx context.Context, id string) (*PendingTransaction, error)
	GetUnsettled(ctx context.Context, from common.Address) ([]PendingTransaction, error)
	GetAll(ctx context.Context) ([]PendingTransaction, error)
	Delete(ctx context.Context, id string) error
	Close()
}
