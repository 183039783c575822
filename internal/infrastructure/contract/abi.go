package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TaskContractABI is the subset of the task contract the client talks to.
const TaskContractABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"verifierWallet","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"platformFeeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nextTaskId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nativeBalances","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tasks","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
		{"name":"creator","type":"address"},
		{"name":"token","type":"address"},
		{"name":"remainingReward","type":"uint256"},
		{"name":"maxParticipants","type":"uint256"},
		{"name":"participantsPaid","type":"uint256"},
		{"name":"isActive","type":"bool"}
	]},
	{"type":"function","name":"createTaskNative","stateMutability":"payable","inputs":[{"name":"maxParticipants","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"allocateReward","stateMutability":"nonpayable","inputs":[
		{"name":"taskId","type":"uint256"},
		{"name":"user","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"withdrawNative","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"TaskCreated","anonymous":false,"inputs":[
		{"name":"taskId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"maxParticipants","type":"uint256","indexed":false},
		{"name":"totalReward","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"RewardAllocated","anonymous":false,"inputs":[
		{"name":"taskId","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}
	]}
]`

const (
	methodOwner            = "owner"
	methodVerifier         = "verifierWallet"
	methodPlatformFee      = "platformFeeBps"
	methodNextTaskID       = "nextTaskId"
	methodNativeBalances   = "nativeBalances"
	methodTasks            = "tasks"
	methodCreateTaskNative = "createTaskNative"
	methodAllocateReward   = "allocateReward"
	methodWithdrawNative   = "withdrawNative"

	eventTaskCreated     = "TaskCreated"
	eventRewardAllocated = "RewardAllocated"
)

type taskCreatedLog struct {
	TaskId          *big.Int
	Creator         common.Address
	MaxParticipants *big.Int
	TotalReward     *big.Int
}

type rewardAllocatedLog struct {
	TaskId *big.Int
	User   common.Address
	Amount *big.Int
}
