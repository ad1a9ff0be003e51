package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/chainrpc/types"
)

var (
	hexStringRe    = regexp.MustCompile("^[0-9a-fA-F]+$")
	base58StringRe = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidateTransactionHash validates a transaction hash for the namespace
func ValidateTransactionHash(hash string, ns types.ChainNamespace) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	switch ns {
	case types.NamespaceTron:
		// txIDs are bare hex; the JSON-RPC endpoint wants them 0x prefixed
		if len(strings.TrimPrefix(hash, "0x")) != 64 || !isHexString(strings.TrimPrefix(hash, "0x")) {
			return fmt.Errorf("tron transaction id must be 64 hex characters")
		}

	case types.NamespaceEIP155:
		// 0x + 64 hex
		if !strings.HasPrefix(hash, "0x") {
			return fmt.Errorf("transaction hash must start with 0x")
		}
		if len(hash) != 66 {
			return fmt.Errorf("transaction hash must be 66 characters long")
		}
		if !isHexString(hash[2:]) {
			return fmt.Errorf("transaction hash must be valid hex")
		}

	case types.NamespaceSolana:
		// base58 signature, typically 87-88 characters
		if len(hash) < 80 || len(hash) > 90 {
			return fmt.Errorf("solana transaction signature has invalid length")
		}
		if !isBase58String(hash) {
			return fmt.Errorf("solana transaction signature must be valid base58")
		}

	default:
		return fmt.Errorf("unsupported namespace for transaction hash validation: %s", ns)
	}

	return nil
}

func isHexString(s string) bool {
	return hexStringRe.MatchString(s)
}

func isBase58String(s string) bool {
	return base58StringRe.MatchString(s)
}

// ParseUnits parses a decimal string into its integer amount at decimals
// precision. Fractional digits beyond the precision are rejected.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	shifted := dec.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("too many decimals for format: %s", amount)
	}

	return shifted.BigInt(), nil
}

// FormatUnits renders an integer amount as a decimal string at decimals
// precision.
func FormatUnits(amount *big.Int, decimals int) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, 18)
}

func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, 18)
}

// FormatGwei is used when logging fee data.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "<nil>"
	}
	return FormatUnits(wei, 9)
}
