package utils

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/chainrpc/types"
)

// TronAddressPrefix is the version byte of every Tron mainnet address.
const TronAddressPrefix byte = 0x41

var (
	evmAddressRe    = regexp.MustCompile(`(?i)^0x[0-9a-f]{40}$`)
	solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	tronBase58Re    = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	tronHexRe       = regexp.MustCompile(`(?i)^(0x)?(41)?[0-9a-f]{40}$`)
)

// GetAddress validates s and returns the canonical form for the namespace:
// checksummed hex for EVM chains, base58 for Solana, base58check for Tron.
func GetAddress(ns types.ChainNamespace, s string) (string, error) {
	switch ns {
	case types.NamespaceEIP155:
		return getEVMAddress(s)
	case types.NamespaceSolana:
		if !solanaAddressRe.MatchString(s) {
			return "", types.InvalidArgument("invalid solana address", "address", s)
		}
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return "", types.InvalidArgument("invalid solana address", "address", s)
		}
		return pk.String(), nil
	case types.NamespaceTron:
		return TronToBase58(s)
	default:
		return "", types.InvalidArgument("unsupported namespace", "namespace", ns)
	}
}

func getEVMAddress(s string) (string, error) {
	if !evmAddressRe.MatchString(s) {
		return "", types.InvalidArgument("invalid address", "address", s)
	}
	checksummed := common.HexToAddress(s).Hex()

	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && s != checksummed {
		return "", types.InvalidArgument("bad address checksum", "address", s)
	}
	return checksummed, nil
}

// ResolveAddress turns any address-like value into a canonical address.
// Literal addresses are validated, names go through resolver, and every other
// Addressable is asked for its address, which is then validated.
func ResolveAddress(ctx context.Context, target types.Addressable, ns types.ChainNamespace, resolver types.NameResolver) (string, error) {
	if target == nil {
		return "", types.InvalidArgument("missing address", "target", nil)
	}

	literal, ok := target.(types.Address)
	if !ok {
		addr, err := target.GetAddress(ctx)
		if err != nil {
			return "", err
		}
		return GetAddress(ns, addr)
	}

	s := string(literal)
	if addr, err := GetAddress(ns, s); err == nil {
		return addr, nil
	} else if looksLikeAddress(ns, s) {
		return "", err
	}

	if resolver == nil {
		return "", &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "name resolution requires a provider",
			Operation: "resolveName",
			Data:      s,
		}
	}
	addr, err := resolver.ResolveName(ctx, s)
	if err != nil {
		return "", err
	}
	if addr == "" {
		return "", &types.Error{Code: types.ErrUnconfiguredName, Message: "unconfigured name", Data: s}
	}
	return GetAddress(ns, addr)
}

// looksLikeAddress separates malformed addresses from names so that a typo
// in a hex address is not sent off for name resolution.
func looksLikeAddress(ns types.ChainNamespace, s string) bool {
	switch ns {
	case types.NamespaceEIP155:
		return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
	case types.NamespaceTron:
		return tronHexRe.MatchString(s) || len(s) == 34
	default:
		return solanaAddressRe.MatchString(s)
	}
}

// TronToBase58 accepts a Tron address as base58check or as hex with or
// without the 0x41 version byte, and returns the base58check form.
func TronToBase58(s string) (string, error) {
	if tronBase58Re.MatchString(s) {
		payload, version, err := base58.CheckDecode(s)
		if err != nil || version != TronAddressPrefix || len(payload) != common.AddressLength {
			return "", types.InvalidArgument("invalid tron address", "address", s)
		}
		return s, nil
	}

	raw, err := tronAddressBytes(s)
	if err != nil {
		return "", err
	}
	return base58.CheckEncode(raw, TronAddressPrefix), nil
}

// TronToHex returns the 20-byte account as lower-case 0x hex, without the
// version byte.
func TronToHex(s string) (string, error) {
	canonical, err := TronToBase58(s)
	if err != nil {
		return "", err
	}
	payload, _, err := base58.CheckDecode(canonical)
	if err != nil {
		return "", types.InvalidArgument("invalid tron address", "address", s)
	}
	return "0x" + hex.EncodeToString(payload), nil
}

// TronToPrefixedHex returns "0x41" followed by the 20-byte account.
func TronToPrefixedHex(s string) (string, error) {
	h, err := TronToHex(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%02x%s", TronAddressPrefix, h[2:]), nil
}

func tronAddressBytes(s string) ([]byte, error) {
	if !tronHexRe.MatchString(s) {
		return nil, types.InvalidArgument("invalid tron address", "address", s)
	}
	body := strings.ToLower(s)
	body = strings.TrimPrefix(body, "0x")
	if len(body) == 42 {
		body = body[2:]
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, types.InvalidArgument("invalid tron address", "address", s)
	}
	return raw, nil
}
