package types

type Session struct {
	Connected   bool     `json:"connected"`
	Account     string   `json:"account,omitempty"`
	ShortName   string   `json:"shortName,omitempty"`
	ChainID     uint64   `json:"chainId,omitempty"`
	Network     string   `json:"network"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	FeeBps      uint64   `json:"feeBps"`
	Balance     *Balance `json:"balance,omitempty"`
	ConnectedAt string   `json:"connectedAt,omitempty"`
	LastError   string   `json:"lastError,omitempty"`
}

type Balance struct {
	Amount  string `json:"amount,omitempty"` // smallest unit, empty when unknown
	Display string `json:"display,omitempty"`
	USD     string `json:"usd,omitempty"`
	Stale   bool   `json:"stale"`
	Error   string `json:"error,omitempty"`
}

type Price struct {
	USD    string `json:"usd"`
	Source string `json:"source"` // "live" or "fallback"
}

type Quote struct {
	RewardUSD    string `json:"rewardUsd"`
	FeeUSD       string `json:"feeUsd"`
	TotalUSD     string `json:"totalUsd"`
	FeeBps       uint64 `json:"feeBps"`
	Amount       string `json:"amount"`
	AmountNative string `json:"amountNative"`
	Price        Price  `json:"price"`
}

type Worker struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"lastError,omitempty"`
	Stalled   bool   `json:"stalled"`
}

type Health struct {
	Ready   bool     `json:"ready"`
	Version string   `json:"version"`
	Workers []Worker `json:"workers"`
}

type Error struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
