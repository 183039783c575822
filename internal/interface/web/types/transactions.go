package types

type Transaction struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"` // "submitted", "confirmed" or "failed"
	Hash        string `json:"hash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	ChainID     uint64 `json:"chainId"`
	From        string `json:"from"`
	TaskID      uint64 `json:"taskId,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Amount      string `json:"amount,omitempty"`
	SubmittedAt string `json:"submittedAt,omitempty"`
	SettledAt   string `json:"settledAt,omitempty"`
	FailReason  string `json:"failReason,omitempty"`
}

// TransactionResult is returned by command endpoints. Error is set when the
// transaction was submitted but its outcome is failed or unknown.
type TransactionResult struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Error       string       `json:"error,omitempty"`
	Code        string       `json:"code,omitempty"`
}

// TransactionEvent is one lifecycle transition pushed on the event stream.
type TransactionEvent struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Hash        string `json:"hash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
	At          string `json:"at"`
}
