package types

import (
	"fmt"
	"math/big"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// NetworkFactory returns a fresh Network on every call so callers never share
// mutable plugin state.
type NetworkFactory func() *Network

// NetworkDescriptor is the plain-object form accepted by NetworkFrom.
type NetworkDescriptor struct {
	Name       string         `yaml:"name" json:"name"`
	Namespace  string         `yaml:"namespace" json:"namespace,omitempty"`
	ChainID    uint64         `yaml:"chainId" json:"chainId"`
	EnsAddress string         `yaml:"ensAddress" json:"ensAddress,omitempty"`
	EnsNetwork uint64         `yaml:"ensNetwork" json:"ensNetwork,omitempty"`
	AltNames   []string       `yaml:"altNames" json:"altNames,omitempty"`
	GasCost    *GasCostPlugin `yaml:"gasCost" json:"gasCost,omitempty"`
}

// Cloner is anything that can hand out a private copy of a network.
type Cloner interface {
	Clone() *Network
}

// Registry maps names and chain ids to network factories. It is append-only:
// a key can be registered once and never replaced.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]NetworkFactory
	byChain  map[string]NetworkFactory
	injected sync.Once
	common   bool
}

// NewRegistry returns an empty registry that is pre-populated with the common
// networks on first lookup. Tests use it to get an isolated instance.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]NetworkFactory),
		byChain: make(map[string]NetworkFactory),
		common:  true,
	}
}

// NewEmptyRegistry returns a registry without the common networks.
func NewEmptyRegistry() *Registry {
	r := NewRegistry()
	r.common = false
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the process-wide registry used by NetworkFrom.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register binds a name or chain id to factory. Accepted keys are strings,
// integer types and *big.Int.
func (r *Registry) Register(nameOrChainID any, factory NetworkFactory) error {
	r.inject()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(nameOrChainID, factory)
}

// RegisterNetwork binds both name and chainID to factory, or neither.
func (r *Registry) RegisterNetwork(name string, chainID *big.Int, factory NetworkFactory) error {
	r.inject()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		return conflict(existing, name)
	}
	if existing, ok := r.byChain[chainID.String()]; ok {
		return conflict(existing, chainID)
	}
	r.byName[name] = factory
	r.byChain[chainID.String()] = factory
	return nil
}

func (r *Registry) registerLocked(key any, factory NetworkFactory) error {
	if name, ok := key.(string); ok {
		if existing, ok := r.byName[name]; ok {
			return conflict(existing, name)
		}
		r.byName[name] = factory
		return nil
	}

	id, err := toChainID(key)
	if err != nil {
		return err
	}
	if existing, ok := r.byChain[id.String()]; ok {
		return conflict(existing, key)
	}
	r.byChain[id.String()] = factory
	return nil
}

func conflict(existing NetworkFactory, key any) error {
	return InvalidArgument(
		fmt.Sprintf("conflicting network for %q", existing().Name()),
		"nameOrChainId", fmt.Sprint(key),
	)
}

func (r *Registry) lookup(key any) (NetworkFactory, bool) {
	r.inject()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := key.(string); ok {
		f, ok := r.byName[name]
		return f, ok
	}
	id, err := toChainID(key)
	if err != nil {
		return nil, false
	}
	f, ok := r.byChain[id.String()]
	return f, ok
}

// From resolves networkish into a fresh Network in namespace ns.
//
// Strings and integers go through the registry. An unknown name is an
// argument error; an unknown chain id yields a network named "unknown".
// A Cloner is cloned and a NetworkDescriptor builds a custom network.
func (r *Registry) From(ns ChainNamespace, networkish any) (*Network, error) {
	var network *Network

	switch v := networkish.(type) {
	case nil:
		return nil, InvalidArgument("invalid network", "network", nil)

	case string:
		factory, ok := r.lookup(v)
		if !ok {
			return nil, InvalidArgument("unknown network", "network", v)
		}
		network = factory()

	case int, int32, int64, uint, uint32, uint64, *big.Int:
		factory, ok := r.lookup(v)
		if !ok {
			id, err := toChainID(v)
			if err != nil {
				return nil, err
			}
			return NewNetwork("unknown", ns, id), nil
		}
		network = factory()

	case Cloner:
		network = v.Clone()

	case NetworkDescriptor:
		return v.build(ns)

	case *NetworkDescriptor:
		return v.build(ns)

	default:
		return nil, InvalidArgument("invalid network", "network", networkish)
	}

	if network.Namespace() != ns {
		return nil, InvalidArgument(
			fmt.Sprintf("network %s belongs to namespace %s", network.Name(), network.Namespace()),
			"network", networkish,
		)
	}
	return network, nil
}

// NetworkFrom resolves networkish through the default registry.
func NetworkFrom(ns ChainNamespace, networkish any) (*Network, error) {
	return defaultRegistry.From(ns, networkish)
}

func (d NetworkDescriptor) build(ns ChainNamespace) (*Network, error) {
	if d.Name == "" {
		return nil, InvalidArgument("invalid network object name or chainId", "network", d)
	}
	if d.Namespace != "" {
		parsed, err := ParseChainNamespace(d.Namespace)
		if err != nil {
			return nil, err
		}
		ns = parsed
	}

	network := NewNetwork(d.Name, ns, new(big.Int).SetUint64(d.ChainID))
	if d.EnsAddress != "" || d.EnsNetwork != 0 {
		if err := network.AttachPlugin(NewEnsPlugin(d.EnsAddress, d.EnsNetwork)); err != nil {
			return nil, err
		}
	}
	if d.GasCost != nil {
		if err := network.AttachPlugin(d.GasCost); err != nil {
			return nil, err
		}
	}
	return network, nil
}

// LoadNetworksYAML registers every network listed in the YAML file at path,
// under its name, alternate names and chain id.
//
//	networks:
//	  - name: devnet
//	    namespace: eip155
//	    chainId: 1337
func (r *Registry) LoadNetworksYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read networks file: %w", err)
	}

	var doc struct {
		Networks []NetworkDescriptor `yaml:"networks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse networks file: %w", err)
	}

	for _, d := range doc.Networks {
		d := d
		ns := NamespaceEIP155
		if d.Namespace != "" {
			if ns, err = ParseChainNamespace(d.Namespace); err != nil {
				return err
			}
		}
		// validate once up front so the factory cannot fail later
		if _, err := d.build(ns); err != nil {
			return err
		}
		factory := func() *Network {
			n, _ := d.build(ns)
			return n
		}
		if err := r.RegisterNetwork(d.Name, new(big.Int).SetUint64(d.ChainID), factory); err != nil {
			return err
		}
		for _, alt := range d.AltNames {
			if err := r.Register(alt, factory); err != nil {
				return err
			}
		}
	}
	return nil
}

func toChainID(v any) (*big.Int, error) {
	switch id := v.(type) {
	case int:
		return big.NewInt(int64(id)), nil
	case int32:
		return big.NewInt(int64(id)), nil
	case int64:
		return big.NewInt(id), nil
	case uint:
		return new(big.Int).SetUint64(uint64(id)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(id)), nil
	case uint64:
		return new(big.Int).SetUint64(id), nil
	case *big.Int:
		if id == nil {
			break
		}
		return new(big.Int).Set(id), nil
	}
	return nil, InvalidArgument("invalid chain id", "nameOrChainId", v)
}

type commonNetwork struct {
	name       string
	chainID    uint64
	ensNetwork uint64
	altNames   []string
}

var commonEVMNetworks = []commonNetwork{
	{name: "mainnet", chainID: 1, ensNetwork: 1, altNames: []string{"homestead"}},
	{name: "ropsten", chainID: 3, ensNetwork: 3},
	{name: "rinkeby", chainID: 4, ensNetwork: 4},
	{name: "goerli", chainID: 5, ensNetwork: 5},
	{name: "kovan", chainID: 42, ensNetwork: 42},
	{name: "sepolia", chainID: 11155111, ensNetwork: 11155111},
	{name: "classic", chainID: 61},
	{name: "classicKotti", chainID: 6},
	{name: "xdai", chainID: 100, ensNetwork: 1},
	{name: "optimism", chainID: 10, ensNetwork: 1},
	{name: "optimism-goerli", chainID: 420},
	{name: "arbitrum", chainID: 42161},
	{name: "arbitrum-goerli", chainID: 421613},
	{name: "matic", chainID: 137, altNames: []string{"polygon"}},
	{name: "matic-mumbai", chainID: 80001, altNames: []string{"maticMumbai", "maticmum"}},
	{name: "bnb", chainID: 56, ensNetwork: 1},
	{name: "bnbt", chainID: 97},
}

var commonTronNetworks = []commonNetwork{
	{name: "tron-mainnet", chainID: 728126428},
	{name: "tron-shasta", chainID: 2494104990},
	{name: "tron-nile", chainID: 3448148188},
}

// Solana clusters have no chain id on the wire. The ids below are local
// placeholders and the clusters are registered by name only.
var commonSolanaNetworks = []commonNetwork{
	{name: "solana-mainnet", chainID: 101, altNames: []string{"mainnet-beta"}},
	{name: "solana-testnet", chainID: 102},
	{name: "solana-devnet", chainID: 103},
}

func (r *Registry) inject() {
	r.injected.Do(func() {
		if !r.common {
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		add := func(ns ChainNamespace, c commonNetwork, byChainID bool) {
			factory := func() *Network {
				n := NewNetwork(c.name, ns, new(big.Int).SetUint64(c.chainID))
				if c.ensNetwork != 0 {
					_ = n.AttachPlugin(NewEnsPlugin("", c.ensNetwork))
				}
				if ns.IsEVM() {
					_ = n.AttachPlugin(DefaultGasCostPlugin())
				}
				return n
			}
			_ = r.registerLocked(c.name, factory)
			if byChainID {
				_ = r.registerLocked(c.chainID, factory)
			}
			for _, alt := range c.altNames {
				_ = r.registerLocked(alt, factory)
			}
		}

		for _, c := range commonEVMNetworks {
			add(NamespaceEIP155, c, true)
		}
		for _, c := range commonTronNetworks {
			add(NamespaceTron, c, true)
		}
		for _, c := range commonSolanaNetworks {
			add(NamespaceSolana, c, false)
		}
	})
}
