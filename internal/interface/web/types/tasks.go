package types

type Task struct {
	ID               uint64 `json:"id"`
	Creator          string `json:"creator"`
	Token            string `json:"token"`
	Native           bool   `json:"native"`
	RemainingReward  string `json:"remainingReward"`  // smallest unit
	Remaining        string `json:"remaining"`        // display scale
	RemainingUSD     string `json:"remainingUsd"`
	MaxParticipants  uint64 `json:"maxParticipants"`
	ParticipantsPaid uint64 `json:"participantsPaid"`
	SlotsLeft        uint64 `json:"slotsLeft"`
	IsActive         bool   `json:"isActive"`

	// Off-chain descriptive metadata, derived from the id
	Type      string `json:"type"`
	HowToEarn string `json:"howToEarn"`
}

type TaskList struct {
	Tasks     []Task `json:"tasks"`
	NextID    uint64 `json:"nextId"`
	Loaded    bool   `json:"loaded"`
	Stale     bool   `json:"stale"`
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type CreateTaskRequest struct {
	MaxParticipants uint64 `json:"maxParticipants"`
	// Amount in the smallest unit. Either Amount or AmountNative is required.
	Amount       string `json:"amount"`
	AmountNative string `json:"amountNative"`
}

type AllocateRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type VerifyResponse struct {
	TaskID  uint64 `json:"taskId"`
	Account string `json:"account"`
	Message string `json:"message"`
}
