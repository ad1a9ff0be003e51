package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vitwit/chainrpc/types"
)

// maxBlockGap bounds how many missed blocks are replayed after a stall.
const maxBlockGap = 1000

// logReplayWindow is how far back a log poll may reach when no logs turned
// up for a while.
const logReplayWindow = 60

// Subscriber delivers one subscription's events.
type Subscriber interface {
	Start()
	Stop()
	Pause(dropWhilePaused bool)
	Resume()
}

// Pollable subscribers poll on their own timer.
type Pollable interface {
	Subscriber
	PollingInterval() time.Duration
	SetPollingInterval(d time.Duration)
}

// UnmanagedSubscriber does nothing; its events are emitted by whoever
// produces them.
type UnmanagedSubscriber struct {
	Name string
}

func (UnmanagedSubscriber) Start()     {}
func (UnmanagedSubscriber) Stop()      {}
func (UnmanagedSubscriber) Pause(bool) {}
func (UnmanagedSubscriber) Resume()    {}

// PollingBlockSubscriber polls the block number and emits every new block.
// The first poll only records where the chain is.
type PollingBlockSubscriber struct {
	p *Provider

	mu          sync.Mutex
	interval    time.Duration
	blockNumber int64
	cancel      context.CancelFunc
}

var _ Pollable = (*PollingBlockSubscriber)(nil)

func newPollingBlockSubscriber(p *Provider) *PollingBlockSubscriber {
	return &PollingBlockSubscriber{p: p, interval: DefaultPollingInterval, blockNumber: -2}
}

func (s *PollingBlockSubscriber) PollingInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *PollingBlockSubscriber) SetPollingInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

func (s *PollingBlockSubscriber) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
}

func (s *PollingBlockSubscriber) loop(ctx context.Context) {
	for {
		s.poll(ctx)

		timer := time.NewTimer(s.PollingInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *PollingBlockSubscriber) poll(ctx context.Context) {
	current, err := s.p.GetBlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.p.opts.Logger.Warn("block poll failed", map[string]any{"error": err.Error()})
		}
		return
	}
	n := int64(current)

	s.mu.Lock()
	last := s.blockNumber
	if last == -2 || n == last {
		s.blockNumber = n
		s.mu.Unlock()
		return
	}
	s.blockNumber = n
	s.mu.Unlock()

	from := last + 1
	if n-last > maxBlockGap {
		from = n
	}
	for b := from; b <= n; b++ {
		if ctx.Err() != nil {
			return
		}
		s.p.Emit(BlockEvent(), uint64(b))
	}
}

func (s *PollingBlockSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *PollingBlockSubscriber) Pause(dropWhilePaused bool) {
	s.Stop()
	if dropWhilePaused {
		s.mu.Lock()
		s.blockNumber = -2
		s.mu.Unlock()
	}
}

func (s *PollingBlockSubscriber) Resume() {
	s.Start()
}

// onBlockSubscriber runs poll on every new block.
type onBlockSubscriber struct {
	p    *Provider
	poll func(ctx context.Context, blockNumber uint64)

	mu       sync.Mutex
	listener ListenerID
	running  bool
	busy     sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

func (s *onBlockSubscriber) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	id, err := s.p.On(BlockEvent(), func(payload any) {
		n, _ := payload.(uint64)
		// a slow poll makes the next block wait rather than overlap
		s.busy.Lock()
		defer s.busy.Unlock()
		if ctx.Err() == nil {
			s.poll(ctx, n)
		}
	})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.listener = id
	s.mu.Unlock()
}

func (s *onBlockSubscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	id := s.listener
	s.mu.Unlock()

	s.p.Off(BlockEvent(), id)
}

func (s *onBlockSubscriber) Pause(bool) { s.Stop() }
func (s *onBlockSubscriber) Resume()    { s.Start() }

// PollingTransactionSubscriber checks for a receipt on every block.
type PollingTransactionSubscriber struct {
	onBlockSubscriber
	hash string
}

func newPollingTransactionSubscriber(p *Provider, hash string) *PollingTransactionSubscriber {
	s := &PollingTransactionSubscriber{hash: hash}
	s.p = p
	s.poll = func(ctx context.Context, _ uint64) {
		receipt, err := p.receipt(ctx, hash)
		if err != nil {
			p.opts.Logger.Warn("receipt poll failed", map[string]any{"hash": hash, "error": err.Error()})
			return
		}
		if receipt != nil {
			p.Emit(TransactionEvent(hash), receipt)
		}
	}
	return s
}

// PollingEventSubscriber fetches logs for the blocks seen since the last
// poll with eth_getLogs.
type PollingEventSubscriber struct {
	onBlockSubscriber
	event Event

	numMu       sync.Mutex
	blockNumber int64
}

func newPollingEventSubscriber(p *Provider, ev Event) *PollingEventSubscriber {
	s := &PollingEventSubscriber{event: ev, blockNumber: -2}
	s.p = p
	s.poll = s.pollLogs
	return s
}

func (s *PollingEventSubscriber) Start() {
	s.numMu.Lock()
	unknown := s.blockNumber == -2
	s.numMu.Unlock()

	if unknown {
		go func() {
			n, err := s.p.GetBlockNumber(context.Background())
			if err != nil {
				s.p.opts.Logger.Warn("failed to fetch starting block", map[string]any{"error": err.Error()})
				return
			}
			s.numMu.Lock()
			if s.blockNumber == -2 {
				s.blockNumber = int64(n)
			}
			s.numMu.Unlock()
		}()
	}
	s.onBlockSubscriber.Start()
}

func (s *PollingEventSubscriber) Pause(dropWhilePaused bool) {
	s.Stop()
	if dropWhilePaused {
		s.numMu.Lock()
		s.blockNumber = -2
		s.numMu.Unlock()
	}
}

func (s *PollingEventSubscriber) Resume() { s.Start() }

func (s *PollingEventSubscriber) pollLogs(ctx context.Context, blockNumber uint64) {
	s.numMu.Lock()
	last := s.blockNumber
	s.numMu.Unlock()
	if last == -2 || int64(blockNumber) <= last {
		return
	}

	filter := s.event.Filter
	filter.FromBlock = types.BlockNumber(uint64(last + 1))
	filter.ToBlock = types.BlockNumber(blockNumber)
	filter.BlockHash = ""

	logs, err := s.p.GetLogs(ctx, filter)
	if err != nil {
		s.p.opts.Logger.Warn("log poll failed", map[string]any{"error": err.Error()})
		return
	}

	if len(logs) == 0 {
		s.numMu.Lock()
		if s.blockNumber < int64(blockNumber)-logReplayWindow {
			s.blockNumber = int64(blockNumber) - logReplayWindow
		}
		s.numMu.Unlock()
		return
	}

	for _, l := range logs {
		s.p.Emit(s.event, l)
		s.numMu.Lock()
		s.blockNumber = int64(l.BlockNumber)
		s.numMu.Unlock()
	}
}

// filterIDSubscriber installs a server-side filter and drains it with
// eth_getFilterChanges on every block. A filter the node has forgotten is
// installed again on the next block.
type filterIDSubscriber struct {
	onBlockSubscriber

	install func(ctx context.Context) (string, error)
	emit    func(results []json.RawMessage)

	// fallback is called when the node has no filter support; nil means keep
	// retrying.
	fallback func()

	idMu     sync.Mutex
	filterID string
}

func (s *filterIDSubscriber) init(p *Provider) {
	s.p = p
	s.poll = s.pollChanges
}

func (s *filterIDSubscriber) Start() {
	s.onBlockSubscriber.Start()
	go func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if _, err := s.ensureFilter(ctx); err != nil && ctx.Err() == nil {
			s.p.opts.Logger.Warn("failed to install filter", map[string]any{"error": err.Error()})
		}
	}()
}

func (s *filterIDSubscriber) ensureFilter(ctx context.Context) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if s.filterID != "" {
		return s.filterID, nil
	}
	id, err := s.install(ctx)
	if err != nil {
		return "", err
	}
	s.filterID = id
	return id, nil
}

func (s *filterIDSubscriber) pollChanges(ctx context.Context, _ uint64) {
	id, err := s.ensureFilter(ctx)
	if err != nil {
		var ie *installError
		if s.fallback != nil && errors.As(err, &ie) && types.IsErrorCode(ie.err, types.ErrUnsupportedOperation) {
			s.fallback()
			return
		}
		s.p.opts.Logger.Warn("failed to install filter", map[string]any{"error": err.Error()})
		return
	}

	raw, err := s.p.Send(ctx, "eth_getFilterChanges", []any{id})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "filter not found") {
			s.idMu.Lock()
			if s.filterID == id {
				s.filterID = ""
			}
			s.idMu.Unlock()
		}
		s.p.opts.Logger.Warn("filter poll failed", map[string]any{"filter": id, "error": err.Error()})
		return
	}

	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		s.p.opts.Logger.Warn("invalid filter changes", map[string]any{"filter": id, "error": err.Error()})
		return
	}
	if ctx.Err() == nil {
		s.emit(results)
	}
}

func (s *filterIDSubscriber) Stop() {
	s.onBlockSubscriber.Stop()

	s.idMu.Lock()
	id := s.filterID
	s.filterID = ""
	s.idMu.Unlock()

	if id != "" {
		go func() {
			if _, err := s.p.Send(context.Background(), "eth_uninstallFilter", []any{id}); err != nil {
				s.p.opts.Logger.Debug("failed to uninstall filter", map[string]any{"filter": id, "error": err.Error()})
			}
		}()
	}
}

func (s *filterIDSubscriber) Pause(bool) { s.Stop() }
func (s *filterIDSubscriber) Resume()    { s.Start() }

// FilterIDPendingSubscriber watches the mempool through
// eth_newPendingTransactionFilter.
type FilterIDPendingSubscriber struct {
	filterIDSubscriber
}

func newFilterIDPendingSubscriber(p *Provider) *FilterIDPendingSubscriber {
	s := &FilterIDPendingSubscriber{}
	s.init(p)
	s.install = func(ctx context.Context) (string, error) {
		return installFilter(ctx, p, "eth_newPendingTransactionFilter", []any{})
	}
	s.emit = func(results []json.RawMessage) {
		for _, r := range results {
			var hash string
			if err := json.Unmarshal(r, &hash); err == nil {
				p.Emit(PendingEvent(), hash)
			}
		}
	}
	return s
}

// FilterIDEventSubscriber watches logs through eth_newFilter and falls back
// to polling when the node does not support filters.
type FilterIDEventSubscriber struct {
	filterIDSubscriber
	event Event
}

func newFilterIDEventSubscriber(p *Provider, ev Event) *FilterIDEventSubscriber {
	s := &FilterIDEventSubscriber{event: ev}
	s.init(p)
	s.install = func(ctx context.Context) (string, error) {
		req, err := p.adapter.MapRequest(types.LogsAction{Filter: ev.Filter})
		if err != nil {
			return "", err
		}
		return installFilter(ctx, p, "eth_newFilter", req.Args)
	}
	s.emit = func(results []json.RawMessage) {
		for _, r := range results {
			var l types.Log
			if err := json.Unmarshal(r, &l); err == nil {
				p.Emit(ev, l)
			}
		}
	}
	s.fallback = func() {
		p.recoverSubscriber(s, newPollingEventSubscriber(p, ev))
	}
	return s
}

// installError is a failure reported by the node for a filter
// installation call.
type installError struct {
	method string
	err    error
}

func (e *installError) Error() string { return e.method + ": " + e.err.Error() }
func (e *installError) Unwrap() error { return e.err }

func installFilter(ctx context.Context, p *Provider, method string, params []any) (string, error) {
	raw, err := p.Send(ctx, method, params)
	if err != nil {
		return "", &installError{method: method, err: err}
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", &types.Error{Code: types.ErrBadData, Message: "invalid filter id", Data: string(raw), Err: err}
	}
	return id, nil
}
