package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress lower-cases a hex address so that checksummed and plain
// spellings of the same account compare equal.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func IsValidAddress(addr string) bool {
	return common.IsHexAddress(strings.TrimSpace(addr))
}

// ParseAddress accepts any casing of a 0x-prefixed 20-byte hex address.
func ParseAddress(addr string) (common.Address, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return common.Address{}, fmt.Errorf("address %q must be 0x-prefixed", addr)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("address %q is not a valid account address", addr)
	}
	return common.HexToAddress(addr), nil
}

// SameAddress reports whether two hex addresses name the same account,
// regardless of letter case or 0x prefix. Invalid addresses never match.
func SameAddress(a, b string) bool {
	if !IsValidAddress(a) || !IsValidAddress(b) {
		return false
	}
	return common.HexToAddress(strings.TrimSpace(a)) == common.HexToAddress(strings.TrimSpace(b))
}

func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
