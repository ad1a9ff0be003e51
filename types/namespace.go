package types

import "fmt"

// ChainNamespace classifies a network into a blockchain family. It decides
// which chain adapter and signer pipeline handle a request.
type ChainNamespace string

const (
	NamespaceEIP155 ChainNamespace = "eip155"
	NamespaceSolana ChainNamespace = "solana"
	NamespaceTron   ChainNamespace = "tron"
)

func (n ChainNamespace) String() string {
	return string(n)
}

// IsEVM reports whether the namespace speaks the eth_* JSON-RPC dialect.
// Tron exposes an EVM-compatible endpoint, so it counts.
func (n ChainNamespace) IsEVM() bool {
	return n == NamespaceEIP155 || n == NamespaceTron
}

func (n ChainNamespace) IsSolana() bool {
	return n == NamespaceSolana
}

func (n ChainNamespace) IsTron() bool {
	return n == NamespaceTron
}

// ParseChainNamespace accepts the canonical names plus a few aliases used in
// configuration files.
func ParseChainNamespace(s string) (ChainNamespace, error) {
	switch s {
	case "eip155", "evm", "ethereum":
		return NamespaceEIP155, nil
	case "solana", "svm":
		return NamespaceSolana, nil
	case "tron":
		return NamespaceTron, nil
	default:
		return "", NewError(ErrInvalidArgument, fmt.Sprintf("unknown chain namespace %q", s))
	}
}
