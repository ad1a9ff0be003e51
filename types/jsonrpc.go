package types

import (
	"encoding/json"
	"fmt"
)

const JSONRPCVersion = "2.0"

// Payload is one JSON-RPC 2.0 request envelope.
type Payload struct {
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	JSONRPC string `json:"jsonrpc"`
}

func NewPayload(id uint64, method string, params any) Payload {
	if params == nil {
		params = []any{}
	}
	return Payload{ID: id, Method: method, Params: params, JSONRPC: JSONRPCVersion}
}

// Response is one JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is meaningful.
type Response struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCRequest is the method and positional arguments an adapter produces for
// an action.
type RPCRequest struct {
	Method string
	Args   []any
}
