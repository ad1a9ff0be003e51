// Package transport moves serialized JSON-RPC envelopes to a node and back.
// A Transport knows nothing about batching or ids; it sends bytes, returns
// bytes, and fails on anything that is not a successful exchange.
package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/vitwit/chainrpc/types"
)

type Transport interface {
	// Send posts body, a single envelope or an array of them, and returns the
	// raw response.
	Send(ctx context.Context, body []byte) ([]byte, error)
	Close() error
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, body []byte) ([]byte, error)

func (f Func) Send(ctx context.Context, body []byte) ([]byte, error) {
	return f(ctx, body)
}

func (f Func) Close() error { return nil }

// DecodeResponses parses raw as either one response object or an array of
// them and always returns a slice.
func DecodeResponses(raw []byte) ([]types.Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, types.NewError(types.ErrBadData, "empty response from server")
	}

	if trimmed[0] == '[' {
		var out []types.Response
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, &types.Error{Code: types.ErrBadData, Message: "invalid json response", Data: string(raw), Err: err}
		}
		return out, nil
	}

	var single types.Response
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, &types.Error{Code: types.ErrBadData, Message: "invalid json response", Data: string(raw), Err: err}
	}
	return []types.Response{single}, nil
}

// requestIDs returns the ids carried by an outgoing body.
func requestIDs(body []byte) ([]uint64, error) {
	type envelope struct {
		ID uint64 `json:"id"`
	}

	trimmed := bytes.TrimSpace(body)
	var envelopes []envelope
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, err
		}
	} else {
		var one envelope
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, one)
	}

	ids := make([]uint64, len(envelopes))
	for i, e := range envelopes {
		ids[i] = e.ID
	}
	return ids, nil
}
