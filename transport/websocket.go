package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vitwit/chainrpc/types"
)

// WebSocket multiplexes envelopes over one connection. Responses are routed
// back to the sender by the ids of the envelope (or batch) it wrote.
type WebSocket struct {
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*wsWaiter
	closed  bool
	err     error
	done    chan struct{}
}

type wsWaiter struct {
	ids []uint64
	ch  chan []byte
}

var _ Transport = (*WebSocket)(nil)

// DialWebSocket connects to url and starts the read loop.
func DialWebSocket(ctx context.Context, url string, headers map[string]string) (*WebSocket, error) {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrNetwork,
			Message: "failed to dial websocket",
			Data:    map[string]any{"url": url},
			Err:     err,
		}
	}

	ws := &WebSocket{
		url:     url,
		conn:    conn,
		pending: make(map[uint64]*wsWaiter),
		done:    make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

func (ws *WebSocket) Send(ctx context.Context, body []byte) ([]byte, error) {
	ids, err := requestIDs(body)
	if err != nil || len(ids) == 0 {
		return nil, &types.Error{Code: types.ErrInvalidArgument, Message: "invalid request envelope", Err: err}
	}

	waiter := &wsWaiter{ids: ids, ch: make(chan []byte, 1)}

	ws.mu.Lock()
	if ws.closed {
		err := ws.err
		ws.mu.Unlock()
		return nil, ws.closedError(err)
	}
	for _, id := range ids {
		ws.pending[id] = waiter
	}
	ws.mu.Unlock()

	ws.writeMu.Lock()
	err = ws.conn.WriteMessage(websocket.TextMessage, body)
	ws.writeMu.Unlock()
	if err != nil {
		ws.forget(waiter)
		return nil, &types.Error{Code: types.ErrNetwork, Message: "failed to write websocket message", Err: err}
	}

	select {
	case raw, ok := <-waiter.ch:
		if !ok {
			ws.mu.Lock()
			err := ws.err
			ws.mu.Unlock()
			return nil, ws.closedError(err)
		}
		return raw, nil
	case <-ctx.Done():
		ws.forget(waiter)
		return nil, &types.Error{Code: types.ErrTimeout, Message: "websocket request cancelled", Err: ctx.Err()}
	}
}

func (ws *WebSocket) readLoop() {
	defer close(ws.done)

	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			ws.shutdown(err)
			return
		}

		responses, err := DecodeResponses(message)
		if err != nil {
			// subscription notifications and garbage are not ours
			continue
		}

		ws.mu.Lock()
		var waiter *wsWaiter
		for _, r := range responses {
			if w, ok := ws.pending[r.ID]; ok {
				waiter = w
				break
			}
		}
		if waiter != nil {
			for _, id := range waiter.ids {
				delete(ws.pending, id)
			}
		}
		ws.mu.Unlock()

		if waiter != nil {
			waiter.ch <- message
		}
	}
}

func (ws *WebSocket) forget(waiter *wsWaiter) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, id := range waiter.ids {
		if ws.pending[id] == waiter {
			delete(ws.pending, id)
		}
	}
}

// shutdown fails every outstanding request.
func (ws *WebSocket) shutdown(err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}
	ws.closed = true
	ws.err = err

	seen := make(map[*wsWaiter]bool)
	for _, w := range ws.pending {
		if !seen[w] {
			seen[w] = true
			close(w.ch)
		}
	}
	ws.pending = make(map[uint64]*wsWaiter)
}

func (ws *WebSocket) closedError(err error) error {
	return &types.Error{Code: types.ErrNetwork, Message: "websocket closed", Data: map[string]any{"url": ws.url}, Err: err}
}

func (ws *WebSocket) Close() error {
	ws.writeMu.Lock()
	_ = ws.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.writeMu.Unlock()

	err := ws.conn.Close()
	<-ws.done
	return err
}
