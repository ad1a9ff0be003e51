package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Plugin is a named capability attached to a Network. Plugins are cloned
// together with the network that carries them.
type Plugin interface {
	Name() string
	Clone() Plugin
}

// Network describes a chain: a human name, the namespace it belongs to and
// its chain id. Identity fields never change after construction; plugins may
// be attached until the network is handed to a provider.
type Network struct {
	name      string
	namespace ChainNamespace
	chainID   *big.Int
	plugins   map[string]Plugin
}

func NewNetwork(name string, namespace ChainNamespace, chainID *big.Int) *Network {
	id := new(big.Int)
	if chainID != nil {
		id.Set(chainID)
	}
	return &Network{
		name:      name,
		namespace: namespace,
		chainID:   id,
		plugins:   make(map[string]Plugin),
	}
}

func (n *Network) Name() string {
	return n.name
}

func (n *Network) Namespace() ChainNamespace {
	return n.namespace
}

// ChainID returns a copy of the chain id.
func (n *Network) ChainID() *big.Int {
	return new(big.Int).Set(n.chainID)
}

func (n *Network) String() string {
	return fmt.Sprintf("%s:%s(%s)", n.namespace, n.name, n.chainID)
}

// Plugins returns the attached plugins ordered by name.
func (n *Network) Plugins() []Plugin {
	names := make([]string, 0, len(n.plugins))
	for name := range n.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Plugin, 0, len(names))
	for _, name := range names {
		out = append(out, n.plugins[name])
	}
	return out
}

// AttachPlugin adds p to the network. Plugin names are unique per network.
func (n *Network) AttachPlugin(p Plugin) error {
	if _, ok := n.plugins[p.Name()]; ok {
		return InvalidArgument(fmt.Sprintf("cannot replace existing plugin %s", p.Name()), "plugin", p.Name())
	}
	n.plugins[p.Name()] = p.Clone()
	return nil
}

func (n *Network) GetPlugin(name string) Plugin {
	return n.plugins[name]
}

// GetPlugins returns every plugin whose name, with any "#fragment" removed,
// equals basename.
func (n *Network) GetPlugins(basename string) []Plugin {
	var out []Plugin
	for _, p := range n.Plugins() {
		if strings.Split(p.Name(), "#")[0] == basename {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy, plugins included.
func (n *Network) Clone() *Network {
	clone := NewNetwork(n.name, n.namespace, n.chainID)
	for name, p := range n.plugins {
		clone.plugins[name] = p.Clone()
	}
	return clone
}

// Matches reports whether other identifies the same chain: same namespace
// and chain id. Names are aliases and do not take part.
func (n *Network) Matches(other *Network) bool {
	if other == nil {
		return false
	}
	return n.namespace == other.namespace && n.chainID.Cmp(other.chainID) == 0
}

func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string         `json:"name"`
		Namespace ChainNamespace `json:"namespace"`
		ChainID   string         `json:"chainId"`
	}{n.name, n.namespace, n.chainID.String()})
}

// ComputeIntrinsicGas returns the gas charged before any execution: the base
// cost, the creation surcharge when there is no recipient, calldata cost and
// the access-list surcharge. Costs come from the network's GasCostPlugin, or
// the defaults when none is attached.
func (n *Network) ComputeIntrinsicGas(tx *PreparedTransaction) uint64 {
	costs := n.gasCosts()

	gas := costs.TxBase
	if tx.To == "" {
		gas += costs.TxCreate
	}
	for _, b := range tx.Data {
		if b == 0 {
			gas += costs.TxDataZero
		} else {
			gas += costs.TxDataNonzero
		}
	}
	for _, tuple := range tx.AccessList {
		gas += costs.TxAccessListAddress
		gas += costs.TxAccessListStorageKey * uint64(len(tuple.StorageKeys))
	}
	return gas
}

func (n *Network) gasCosts() *GasCostPlugin {
	if p, ok := n.plugins[GasCostPluginName].(*GasCostPlugin); ok {
		return p
	}
	return DefaultGasCostPlugin()
}

const (
	GasCostPluginName = "chainrpc.plugins.network.GasCost"
	EnsPluginName     = "chainrpc.plugins.network.Ens"
)

// GasCostPlugin carries the per-network intrinsic gas schedule.
type GasCostPlugin struct {
	TxBase                 uint64 `json:"txBase" yaml:"txBase"`
	TxCreate               uint64 `json:"txCreate" yaml:"txCreate"`
	TxDataZero             uint64 `json:"txDataZero" yaml:"txDataZero"`
	TxDataNonzero          uint64 `json:"txDataNonzero" yaml:"txDataNonzero"`
	TxAccessListStorageKey uint64 `json:"txAccessListStorageKey" yaml:"txAccessListStorageKey"`
	TxAccessListAddress    uint64 `json:"txAccessListAddress" yaml:"txAccessListAddress"`
}

func DefaultGasCostPlugin() *GasCostPlugin {
	return &GasCostPlugin{
		TxBase:                 21000,
		TxCreate:               32000,
		TxDataZero:             4,
		TxDataNonzero:          16,
		TxAccessListStorageKey: 1900,
		TxAccessListAddress:    2400,
	}
}

func (p *GasCostPlugin) Name() string { return GasCostPluginName }

func (p *GasCostPlugin) Clone() Plugin {
	c := *p
	return &c
}

// DefaultEnsAddress is the name-service registry deployed on mainnet and
// most test networks.
const DefaultEnsAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

// EnsPlugin records where the name-service registry lives and which chain
// it is deployed on.
type EnsPlugin struct {
	Address       string
	TargetNetwork uint64
}

func NewEnsPlugin(address string, targetNetwork uint64) *EnsPlugin {
	if address == "" {
		address = DefaultEnsAddress
	}
	if targetNetwork == 0 {
		targetNetwork = 1
	}
	return &EnsPlugin{Address: address, TargetNetwork: targetNetwork}
}

func (p *EnsPlugin) Name() string { return EnsPluginName }

func (p *EnsPlugin) Clone() Plugin {
	c := *p
	return &c
}
