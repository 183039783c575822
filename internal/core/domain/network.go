package domain

import (
	"fmt"
	"math/big"
)

type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Network is the descriptor handed to a wallet provider when the required
// network has to be registered.
type Network struct {
	ChainID      uint64
	Name         string
	Currency     NativeCurrency
	RPCURLs      []string
	ExplorerURLs []string
}

// ChainIDHex is the 0x-prefixed form wallet RPCs expect.
func (n Network) ChainIDHex() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

func (n Network) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(n.ChainID)
}
