package types

import "context"

// Addressable is anything that can report an address. Signers, contracts and
// the Address and AddressFunc helpers all satisfy it.
type Addressable interface {
	GetAddress(ctx context.Context) (string, error)
}

// Address is a literal address or a name to be resolved.
type Address string

func (a Address) GetAddress(context.Context) (string, error) {
	return string(a), nil
}

// AddressFunc is an address that is only known later, for example the
// result of an outstanding lookup.
type AddressFunc func(ctx context.Context) (string, error)

func (f AddressFunc) GetAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

// NameResolver turns a human-readable name into an address.
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (string, error)
}
