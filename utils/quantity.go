package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vitwit/chainrpc/types"
)

// ToQuantity renders v as a minimal-width hex quantity.
func ToQuantity(v *big.Int) string {
	return hexutil.EncodeBig(v)
}

func ToQuantityUint64(v uint64) string {
	return hexutil.EncodeUint64(v)
}

// IsNull reports whether a raw JSON result is absent or null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseQuantity decodes a result that is either a hex/decimal string or a
// JSON number. Nodes disagree on leading zeros, so hex parsing is lenient.
func ParseQuantity(raw json.RawMessage) (*big.Int, error) {
	if IsNull(raw) {
		return nil, badData("missing quantity", string(raw))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseQuantityString(s)
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return nil, badData("invalid quantity", string(raw))
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return nil, badData("invalid quantity", string(raw))
	}
	return v, nil
}

// ParseQuantityString parses "0x"-prefixed hex or a decimal string.
func ParseQuantityString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	if s == "" {
		return nil, badData("empty quantity", s)
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, badData("invalid quantity", s)
	}
	return v, nil
}

func ParseUint64(raw json.RawMessage) (uint64, error) {
	v, err := ParseQuantity(raw)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, badData("quantity overflows uint64", v.String())
	}
	return v.Uint64(), nil
}

func badData(msg string, value any) error {
	return &types.Error{Code: types.ErrBadData, Message: fmt.Sprintf("%s: %v", msg, value), Data: value}
}
