package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainquery/internal/apperror"
)

// txHashLength is the hex-string length of a 32-byte hash with 0x prefix.
const txHashLength = 66

// ParseTxHash validates a user-supplied transaction hash. It fails before any
// network call is made.
func ParseTxHash(s string) (common.Hash, error) {
	if len(s) != txHashLength || !strings.HasPrefix(s, "0x") || !isHex(s[2:]) {
		return common.Hash{}, apperror.Validation(apperror.CodeInvalidHash,
			fmt.Sprintf("expected 0x-prefixed 32-byte hex hash, got %q", s))
	}
	return common.HexToHash(s), nil
}

// ParseAddress validates a user-supplied account address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperror.Validation(apperror.CodeInvalidAddress,
			fmt.Sprintf("expected 0x-prefixed 20-byte hex address, got %q", s))
	}
	return common.HexToAddress(s), nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case '0' <= c && c <= '9':
		case 'a' <= c && c <= 'f':
		case 'A' <= c && c <= 'F':
		default:
			return false
		}
	}
	return true
}
