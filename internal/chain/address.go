package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"wallet-score/internal/domain"
)

var errBadChecksum = errors.New("checksum mismatch")

// ValidateAddress checks an EVM address and returns its EIP-55 form.
// All-lower and all-upper hex is accepted; mixed case must match the checksum.
func ValidateAddress(address string) (string, error) {
	a := strings.TrimSpace(address)
	if !strings.HasPrefix(a, "0x") && !strings.HasPrefix(a, "0X") {
		return "", domain.InvalidAddress(address, nil)
	}
	if !common.IsHexAddress(a) {
		return "", domain.InvalidAddress(address, nil)
	}

	checksummed := common.HexToAddress(a).Hex()
	body := a[2:]
	if hasMixedCase(body) && body != checksummed[2:] {
		return "", domain.InvalidAddress(address, errBadChecksum)
	}
	return checksummed, nil
}

// IsName reports whether v looks like a name-service name rather than a hex address.
func IsName(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(strings.ToLower(v), "0x") {
		return false
	}
	labels := strings.Split(v, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	return true
}

func hasMixedCase(v string) bool {
	return strings.ToLower(v) != v && strings.ToUpper(v) != v
}
