package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/atomic"

	"github.com/vitwit/chainrpc/clients"
	"github.com/vitwit/chainrpc/transport"
	"github.com/vitwit/chainrpc/types"
)

// Result settles one request.
type Result struct {
	Value json.RawMessage
	Err   error
}

// DetectFunc discovers the network behind a dispatcher. It may use Call,
// which bypasses the readiness gate.
type DetectFunc func(ctx context.Context) (*types.Network, error)

// DebugEvent describes one step of a request's life.
type DebugEvent struct {
	Action  string
	Payload any
	Result  any
	Error   error
}

type request struct {
	payload types.Payload
	size    int
	done    chan Result
}

// Dispatcher batches JSON-RPC payloads. Sends queue until the network has
// been detected; after that every send schedules a debounced drain which
// packs the queue into batches bounded by count and serialized size.
type Dispatcher struct {
	transport transport.Transport
	adapter   clients.ChainAdapter
	opts      Options
	detect    DetectFunc
	onDebug   func(DebugEvent)

	nextID  atomic.Uint64
	started atomic.Bool

	mu        sync.Mutex
	queue     []*request
	timer     *time.Timer
	ready     bool
	destroyed bool
	network   *types.Network
	readyCh   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(tr transport.Transport, adapter clients.ChainAdapter, detect DetectFunc, opts ...Option) (*Dispatcher, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newDispatcher(tr, adapter, detect, o), nil
}

func newDispatcher(tr transport.Transport, adapter clients.ChainAdapter, detect DetectFunc, opts Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		transport: tr,
		adapter:   adapter,
		opts:      opts,
		detect:    detect,
		readyCh:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches network detection. It is idempotent; queued sends drain as
// soon as a network is known.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.bootstrap()
}

func (d *Dispatcher) bootstrap() {
	var network *types.Network

	if d.opts.StaticNetwork != nil {
		network = d.opts.StaticNetwork
	} else {
		b := backoff.WithContext(backoff.NewConstantBackOff(bootstrapRetryInterval), d.ctx)
		err := backoff.RetryNotify(func() error {
			n, err := d.detect(d.ctx)
			if err != nil {
				return err
			}
			network = n
			return nil
		}, b, func(err error, next time.Duration) {
			d.opts.Logger.Warn("network detection failed, retrying", map[string]any{
				"error": err.Error(),
				"retry": next.String(),
			})
		})
		if err != nil {
			// only cancellation ends the loop
			return
		}
	}

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.network = network
	d.ready = true
	close(d.readyCh)
	d.scheduleDrainLocked()
	d.mu.Unlock()

	d.opts.Logger.Info("provider ready", map[string]any{
		"network": network.Name(),
		"chainId": network.ChainID().String(),
	})
}

// Ready is closed once a network has been detected.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.readyCh
}

// Network returns the detected network, or NETWORK_ERROR before readiness.
func (d *Dispatcher) Network() (*types.Network, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, types.NewError(types.ErrNetwork, "network is not available yet")
	}
	return d.network, nil
}

// WaitReady blocks until the dispatcher is ready, ctx is done, or the
// dispatcher is destroyed.
func (d *Dispatcher) WaitReady(ctx context.Context) (*types.Network, error) {
	select {
	case <-d.readyCh:
		return d.Network()
	case <-ctx.Done():
		return nil, &types.Error{Code: types.ErrTimeout, Message: "timeout waiting for network", Err: ctx.Err()}
	case <-d.ctx.Done():
		return nil, destroyedError()
	}
}

// SendAsync queues a request and returns its future. It never blocks and does
// not start the dispatcher.
func (d *Dispatcher) SendAsync(method string, params any) <-chan Result {
	done := make(chan Result, 1)

	payload := types.NewPayload(d.nextID.Inc(), method, params)
	raw, err := json.Marshal(payload)
	if err != nil {
		done <- Result{Err: &types.Error{Code: types.ErrInvalidArgument, Message: "failed to encode request", Payload: &payload, Err: err}}
		return done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		done <- Result{Err: destroyedError()}
		return done
	}
	d.queue = append(d.queue, &request{payload: payload, size: len(raw), done: done})
	d.scheduleDrainLocked()
	return done
}

// Send queues a request and waits for its result. Cancelling ctx stops the
// wait only; a dispatched request still completes.
func (d *Dispatcher) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case res := <-d.SendAsync(method, params):
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, &types.Error{Code: types.ErrTimeout, Message: "request cancelled", Operation: method, Err: ctx.Err()}
	}
}

// Call sends a single payload straight to the transport, skipping the queue
// and the readiness gate. Network detection uses it.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := &request{payload: types.NewPayload(d.nextID.Inc(), method, params), done: make(chan Result, 1)}
	d.transmit(ctx, []*request{req})
	res := <-req.done
	return res.Value, res.Err
}

func (d *Dispatcher) scheduleDrainLocked() {
	if d.timer != nil || !d.ready || d.destroyed || len(d.queue) == 0 {
		return
	}
	d.timer = time.AfterFunc(d.opts.stallTime(), d.drain)
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	queue := d.queue
	d.queue = nil
	d.timer = nil
	d.mu.Unlock()

	for _, batch := range packBatches(queue, d.opts.BatchMaxCount, d.opts.BatchMaxSize) {
		go d.transmit(context.Background(), batch)
	}
}

// packBatches splits queue into batches of at most maxCount entries whose
// serialized array stays within maxSize. The first entry of a batch is always
// taken, so an oversized payload travels alone.
func packBatches(queue []*request, maxCount, maxSize int) [][]*request {
	var batches [][]*request
	for len(queue) > 0 {
		batch := []*request{queue[0]}
		// "[" + payload + "]"
		size := 1 + queue[0].size + 1
		queue = queue[1:]

		for len(queue) > 0 && len(batch) < maxCount {
			next := size + queue[0].size + 1
			if next > maxSize {
				break
			}
			batch = append(batch, queue[0])
			size = next
			queue = queue[1:]
		}
		batches = append(batches, batch)
	}
	return batches
}

func (d *Dispatcher) transmit(ctx context.Context, batch []*request) {
	var body any
	if len(batch) == 1 {
		body = batch[0].payload
	} else {
		payloads := make([]types.Payload, len(batch))
		for i, r := range batch {
			payloads[i] = r.payload
		}
		body = payloads
	}
	d.debug(DebugEvent{Action: "sendRpcPayload", Payload: body})

	labels := map[string]string{"network": d.networkLabel()}
	d.opts.Metrics.IncCounter("rpc_batches_total", labels)
	for _, r := range batch {
		d.opts.Metrics.IncCounter("rpc_requests_total", map[string]string{"network": labels["network"], "method": r.payload.Method})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		d.fail(batch, &types.Error{Code: types.ErrInvalidArgument, Message: "failed to encode batch", Err: err})
		return
	}

	d.opts.Logger.Debug("sending rpc batch", map[string]any{"size": len(batch), "bytes": len(raw)})

	start := time.Now()
	resp, err := d.transport.Send(ctx, raw)
	d.opts.Metrics.ObserveLatency("rpc_batch", time.Since(start), labels)
	if err != nil {
		d.opts.Logger.Error("rpc transport failed", map[string]any{"error": err.Error(), "size": len(batch)})
		d.opts.Metrics.IncCounter("rpc_errors_total", labels)
		d.debug(DebugEvent{Action: "receiveRpcError", Payload: body, Error: err})
		d.fail(batch, err)
		return
	}

	responses, err := transport.DecodeResponses(resp)
	if err != nil {
		d.debug(DebugEvent{Action: "receiveRpcError", Payload: body, Error: err})
		d.fail(batch, err)
		return
	}
	d.debug(DebugEvent{Action: "receiveRpcResult", Payload: body, Result: responses})

	byID := make(map[uint64]*types.Response, len(responses))
	for i := range responses {
		byID[responses[i].ID] = &responses[i]
	}

	for _, r := range batch {
		payload := r.payload
		res, ok := byID[payload.ID]
		switch {
		case !ok:
			r.done <- Result{Err: &types.Error{
				Code:    types.ErrBadData,
				Message: "no response from server",
				Payload: &payload,
				Data:    map[string]any{"id": payload.ID},
			}}
		case res.Error != nil:
			d.opts.Metrics.IncCounter("rpc_errors_total", map[string]string{"network": labels["network"], "method": payload.Method})
			r.done <- Result{Err: d.adapter.ClassifyError(&payload, res.Error)}
		default:
			r.done <- Result{Value: res.Result}
		}
	}
}

func (d *Dispatcher) fail(batch []*request, err error) {
	for _, r := range batch {
		r.done <- Result{Err: err}
	}
}

func (d *Dispatcher) debug(ev DebugEvent) {
	if d.onDebug != nil {
		d.onDebug(ev)
	}
}

func (d *Dispatcher) networkLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.network == nil {
		return "unknown"
	}
	return d.network.Name()
}

// Destroy stops the bootstrap loop and the drain timer, fails every queued
// request and closes the transport. In-flight batches still settle.
func (d *Dispatcher) Destroy() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	d.destroyed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	queue := d.queue
	d.queue = nil
	d.mu.Unlock()

	d.cancel()
	d.fail(queue, destroyedError())

	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func destroyedError() error {
	return &types.Error{Code: types.ErrUnsupportedOperation, Message: "provider destroyed", Operation: "destroy"}
}
