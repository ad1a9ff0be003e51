package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/chainrpc/types"
)

const (
	usdtTronBase58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	usdtTronHex    = "0xa614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestGetAddressEVM(t *testing.T) {
	addr, err := GetAddress(types.NamespaceEIP155, "0x8ba1f109551bd432803012645ac136ddd64dba72")
	require.NoError(t, err)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", addr)

	_, err = GetAddress(types.NamespaceEIP155, "0x8ba1f109551bd432803012645ac136ddd64dba7")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))

	// mixed case that is not the checksum
	_, err = GetAddress(types.NamespaceEIP155, "0x8Ba1f109551bD432803012645Ac136ddd64DBA72")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
}

func TestGetAddressSolana(t *testing.T) {
	addr, err := GetAddress(types.NamespaceSolana, "11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "11111111111111111111111111111111", addr)

	_, err = GetAddress(types.NamespaceSolana, "0x8ba1f109551bd432803012645ac136ddd64dba72")
	assert.Error(t, err)
}

func TestTronConversions(t *testing.T) {
	hex, err := TronToHex(usdtTronBase58)
	require.NoError(t, err)
	assert.Equal(t, usdtTronHex, hex)

	prefixed, err := TronToPrefixedHex(usdtTronBase58)
	require.NoError(t, err)
	assert.Equal(t, "0x41"+usdtTronHex[2:], prefixed)

	for _, in := range []string{usdtTronHex, prefixed, prefixed[2:], usdtTronHex[2:]} {
		b58, err := TronToBase58(in)
		require.NoError(t, err, in)
		assert.Equal(t, usdtTronBase58, b58, in)
	}

	// corrupt the checksum
	_, err = TronToBase58("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u")
	assert.Error(t, err)
}

type stubResolver map[string]string

func (r stubResolver) ResolveName(_ context.Context, name string) (string, error) {
	return r[name], nil
}

func TestResolveAddress(t *testing.T) {
	ctx := context.Background()
	const want = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	resolver := stubResolver{"alice.eth": "0x8ba1f109551bd432803012645ac136ddd64dba72"}

	t.Run("literal", func(t *testing.T) {
		got, err := ResolveAddress(ctx, types.Address("0x8ba1f109551bd432803012645ac136ddd64dba72"), types.NamespaceEIP155, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("pending", func(t *testing.T) {
		pending := types.AddressFunc(func(context.Context) (string, error) {
			return "0x8ba1f109551bd432803012645ac136ddd64dba72", nil
		})
		got, err := ResolveAddress(ctx, pending, types.NamespaceEIP155, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("pending failure", func(t *testing.T) {
		boom := errors.New("boom")
		pending := types.AddressFunc(func(context.Context) (string, error) { return "", boom })
		_, err := ResolveAddress(ctx, pending, types.NamespaceEIP155, nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("name", func(t *testing.T) {
		got, err := ResolveAddress(ctx, types.Address("alice.eth"), types.NamespaceEIP155, resolver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("unconfigured name", func(t *testing.T) {
		_, err := ResolveAddress(ctx, types.Address("bob.eth"), types.NamespaceEIP155, resolver)
		assert.True(t, types.IsErrorCode(err, types.ErrUnconfiguredName))
	})

	t.Run("name without resolver", func(t *testing.T) {
		_, err := ResolveAddress(ctx, types.Address("alice.eth"), types.NamespaceEIP155, nil)
		assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOperation))
	})

	t.Run("malformed hex is not a name", func(t *testing.T) {
		_, err := ResolveAddress(ctx, types.Address("0x1234"), types.NamespaceEIP155, resolver)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidArgument))
	})

	t.Run("tron", func(t *testing.T) {
		got, err := ResolveAddress(ctx, types.Address(usdtTronHex), types.NamespaceTron, nil)
		require.NoError(t, err)
		assert.Equal(t, usdtTronBase58, got)
	})
}
