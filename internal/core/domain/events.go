package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ChainEventKind int

const (
	EventTaskCreated ChainEventKind = iota
	EventRewardAllocated
)

func (k ChainEventKind) String() string {
	if k == EventTaskCreated {
		return "TaskCreated"
	}
	return "RewardAllocated"
}

// ChainEvent is a contract notification. Delivery is neither ordered nor
// exactly-once, so consumers only use it as a refresh trigger.
type ChainEvent struct {
	Kind        ChainEventKind
	TaskID      uint64
	Account     common.Address // creator for TaskCreated, recipient for RewardAllocated
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

type WalletEventKind int

const (
	WalletAccountsChanged WalletEventKind = iota
	WalletChainChanged
)

func (k WalletEventKind) String() string {
	if k == WalletAccountsChanged {
		return "accountsChanged"
	}
	return "chainChanged"
}

type WalletEvent struct {
	Kind     WalletEventKind
	Accounts []common.Address
	ChainID  uint64
}
