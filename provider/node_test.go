package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
)

type handler func(params []json.RawMessage) (any, *types.RPCError)

type envelope struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC by method. Unknown methods get -32601; methods in
// silent get no response at all.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handler
	silent   map[string]bool
	batches  [][]envelope
	arrays   []bool
	calls    map[string]int
	reverse  bool
	fail     error
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		handlers: make(map[string]handler),
		silent:   make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (n *fakeNode) handle(method string, h handler) *fakeNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
	return n
}

// result registers a constant answer.
func (n *fakeNode) result(method string, v any) *fakeNode {
	return n.handle(method, func([]json.RawMessage) (any, *types.RPCError) { return v, nil })
}

func (n *fakeNode) rpcError(method string, code int, message string) *fakeNode {
	return n.handle(method, func([]json.RawMessage) (any, *types.RPCError) {
		return nil, &types.RPCError{Code: code, Message: message}
	})
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) sent() [][]envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]envelope, len(n.batches))
	copy(out, n.batches)
	return out
}

// lastParams returns the params of the most recent call of method.
func (n *fakeNode) lastParams(method string) []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.batches) - 1; i >= 0; i-- {
		for j := len(n.batches[i]) - 1; j >= 0; j-- {
			if n.batches[i][j].Method == method {
				return n.batches[i][j].Params
			}
		}
	}
	return nil
}

func (n *fakeNode) transport() transport.Transport {
	return transport.Func(func(_ context.Context, body []byte) ([]byte, error) {
		var batch []envelope
		isArray := bytes.HasPrefix(bytes.TrimSpace(body), []byte("["))
		if isArray {
			if err := json.Unmarshal(body, &batch); err != nil {
				return nil, err
			}
		} else {
			var one envelope
			if err := json.Unmarshal(body, &one); err != nil {
				return nil, err
			}
			batch = []envelope{one}
		}

		n.mu.Lock()
		n.batches = append(n.batches, batch)
		n.arrays = append(n.arrays, isArray)
		for _, e := range batch {
			n.calls[e.Method]++
		}
		fail := n.fail
		reverse := n.reverse
		n.mu.Unlock()

		if fail != nil {
			return nil, fail
		}

		responses := make([]map[string]any, 0, len(batch))
		for _, e := range batch {
			n.mu.Lock()
			h, ok := n.handlers[e.Method]
			silent := n.silent[e.Method]
			n.mu.Unlock()
			if silent {
				continue
			}

			resp := map[string]any{"jsonrpc": "2.0", "id": e.ID}
			if !ok {
				resp["error"] = map[string]any{"code": -32601, "message": "the method " + e.Method + " does not exist/is not available"}
			} else if result, rpcErr := h(e.Params); rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			responses = append(responses, resp)
		}

		if reverse {
			for i, j := 0, len(responses)-1; i < j; i, j = i+1, j-1 {
				responses[i], responses[j] = responses[j], responses[i]
			}
		}
		if !isArray && len(responses) == 1 {
			return json.Marshal(responses[0])
		}
		return json.Marshal(responses)
	})
}

func mainnet() *types.Network {
	n, err := types.NetworkFrom(types.NamespaceEIP155, "mainnet")
	if err != nil {
		panic(err)
	}
	return n
}
