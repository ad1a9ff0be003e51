package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachPluginRejectsDuplicate(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))

	require.NoError(t, n.AttachPlugin(NewEnsPlugin("", 1)))
	err := n.AttachPlugin(NewEnsPlugin("0x0000000000000000000000000000000000000001", 5))

	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrInvalidArgument))

	ens, ok := n.GetPlugin(EnsPluginName).(*EnsPlugin)
	require.True(t, ok)
	assert.Equal(t, DefaultEnsAddress, ens.Address)
}

func TestCloneIsolatesPlugins(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))
	require.NoError(t, n.AttachPlugin(DefaultGasCostPlugin()))

	clone := n.Clone()
	clone.GetPlugin(GasCostPluginName).(*GasCostPlugin).TxBase = 1

	assert.Equal(t, uint64(21000), n.GetPlugin(GasCostPluginName).(*GasCostPlugin).TxBase)
	assert.True(t, n.Matches(clone))
	assert.Equal(t, "devnet", clone.Name())
}

func TestChainIDIsCopied(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))
	n.ChainID().SetInt64(1)
	assert.Equal(t, int64(1337), n.ChainID().Int64())
}

func TestGetPluginsByBasename(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))
	require.NoError(t, n.AttachPlugin(&namedPlugin{name: "fees#a"}))
	require.NoError(t, n.AttachPlugin(&namedPlugin{name: "fees#b"}))
	require.NoError(t, n.AttachPlugin(&namedPlugin{name: "other"}))

	assert.Len(t, n.GetPlugins("fees"), 2)
	assert.Len(t, n.GetPlugins("other"), 1)
}

type namedPlugin struct{ name string }

func (p *namedPlugin) Name() string  { return p.name }
func (p *namedPlugin) Clone() Plugin { return &namedPlugin{name: p.name} }

func TestComputeIntrinsicGas(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))

	tests := []struct {
		name string
		tx   *PreparedTransaction
		want uint64
	}{
		{
			name: "plain transfer",
			tx:   &PreparedTransaction{To: "0x8ba1f109551bd432803012645ac136ddd64dba72"},
			want: 21000,
		},
		{
			name: "calldata",
			tx: &PreparedTransaction{
				To:   "0x8ba1f109551bd432803012645ac136ddd64dba72",
				Data: []byte{0x00, 0x01, 0x02},
			},
			want: 21000 + 4 + 16*2,
		},
		{
			name: "contract creation",
			tx:   &PreparedTransaction{Data: []byte{0x60}},
			want: 21000 + 32000 + 16,
		},
		{
			name: "access list",
			tx: &PreparedTransaction{
				To: "0x8ba1f109551bd432803012645ac136ddd64dba72",
				AccessList: ethtypes.AccessList{{
					Address:     common.HexToAddress("0x8ba1f109551bd432803012645ac136ddd64dba72"),
					StorageKeys: []common.Hash{{}, {0x01}},
				}},
			},
			want: 21000 + 2400 + 2*1900,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.ComputeIntrinsicGas(tt.tx))
		})
	}
}

func TestComputeIntrinsicGasUsesPlugin(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))
	costs := DefaultGasCostPlugin()
	costs.TxBase = 50000
	require.NoError(t, n.AttachPlugin(costs))

	assert.Equal(t, uint64(50000), n.ComputeIntrinsicGas(&PreparedTransaction{To: "0x01"}))
}

func TestNetworkMarshalJSON(t *testing.T) {
	n := NewNetwork("devnet", NamespaceEIP155, big.NewInt(1337))
	raw, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"devnet","namespace":"eip155","chainId":"1337"}`, string(raw))
}
