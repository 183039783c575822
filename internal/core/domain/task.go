package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the reward token identifier used for tasks funded in the
// chain native currency.
var NativeToken = common.Address{}

// Task mirrors one record of the contract task table. Amounts are in the
// token smallest unit.
type Task struct {
	ID               uint64
	Creator          common.Address
	Token            common.Address
	RemainingReward  *big.Int
	MaxParticipants  uint64
	ParticipantsPaid uint64
	IsActive         bool
}

// IsTerminal reports whether the task can no longer pay anyone.
func (t Task) IsTerminal() bool {
	return !t.IsActive && t.remaining().Sign() == 0
}

// Visible reports whether the task belongs to the default listing.
func (t Task) Visible() bool {
	return !t.IsTerminal()
}

func (t Task) IsNative() bool {
	return t.Token == NativeToken
}

// IsFull reports whether every participant slot has been paid.
func (t Task) IsFull() bool {
	return t.ParticipantsPaid >= t.MaxParticipants
}

func (t Task) SlotsLeft() uint64 {
	if t.IsFull() {
		return 0
	}
	return t.MaxParticipants - t.ParticipantsPaid
}

func (t Task) Equal(o Task) bool {
	return t.ID == o.ID &&
		t.Creator == o.Creator &&
		t.Token == o.Token &&
		t.remaining().Cmp(o.remaining()) == 0 &&
		t.MaxParticipants == o.MaxParticipants &&
		t.ParticipantsPaid == o.ParticipantsPaid &&
		t.IsActive == o.IsActive
}

// Clone returns a deep copy so snapshots never share mutable amounts.
func (t Task) Clone() Task {
	c := t
	c.RemainingReward = new(big.Int).Set(t.remaining())
	return c
}

func (t Task) remaining() *big.Int {
	if t.RemainingReward == nil {
		return new(big.Int)
	}
	return t.RemainingReward
}

// EqualTasks compares two task lists element by element.
func EqualTasks(a, b []Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
