package provider

import (
	"encoding/json"
	"time"

	"github.com/vitwit/chainrpc/types"
)

type EventKind string

const (
	EventBlock       EventKind = "block"
	EventPending     EventKind = "pending"
	EventLogs        EventKind = "event"
	EventOrphan      EventKind = "orphan"
	EventTransaction EventKind = "transaction"
	EventDebug       EventKind = "debug"
)

// OrphanDropLog is the only orphan policy that needs no active management.
const OrphanDropLog = "drop-log"

// Event names a subscription. Only the field relevant to Kind is used.
type Event struct {
	Kind   EventKind
	Filter types.Filter
	Hash   string
	Orphan string
}

func BlockEvent() Event   { return Event{Kind: EventBlock} }
func PendingEvent() Event { return Event{Kind: EventPending} }
func DebugEvents() Event  { return Event{Kind: EventDebug} }

func LogEvent(filter types.Filter) Event {
	return Event{Kind: EventLogs, Filter: filter}
}

func TransactionEvent(hash string) Event {
	return Event{Kind: EventTransaction, Hash: hash}
}

func OrphanEvent(policy string) Event {
	return Event{Kind: EventOrphan, Orphan: policy}
}

func (e Event) key() string {
	switch e.Kind {
	case EventLogs:
		raw, _ := json.Marshal(struct {
			Address []string   `json:"address"`
			Topics  [][]string `json:"topics"`
			From    string     `json:"from"`
			To      string     `json:"to"`
			Hash    string     `json:"hash"`
		}{e.Filter.Address, e.Filter.Topics, string(e.Filter.FromBlock), string(e.Filter.ToBlock), e.Filter.BlockHash})
		return string(e.Kind) + ":" + string(raw)
	case EventTransaction:
		return string(e.Kind) + ":" + e.Hash
	case EventOrphan:
		return string(e.Kind) + ":" + e.Orphan
	default:
		return string(e.Kind)
	}
}

// Listener receives event payloads: a uint64 for blocks, a hash string for
// pending transactions, a types.Log for events, a *types.Receipt for
// transactions and a DebugEvent for debug.
type Listener func(payload any)

type ListenerID uint64

type listenerEntry struct {
	id   ListenerID
	fn   Listener
	once bool
}

type subscription struct {
	event      Event
	subscriber Subscriber
	listeners  []listenerEntry
	started    bool
}

// subscriberFor picks the delivery strategy for ev.
func (p *Provider) subscriberFor(ev Event) (Subscriber, error) {
	var s Subscriber
	switch ev.Kind {
	case EventBlock:
		s = newPollingBlockSubscriber(p)
	case EventPending:
		s = newFilterIDPendingSubscriber(p)
	case EventLogs:
		if p.polling {
			s = newPollingEventSubscriber(p, ev)
		} else {
			s = newFilterIDEventSubscriber(p, ev)
		}
	case EventOrphan:
		if ev.Orphan != OrphanDropLog {
			return nil, &types.Error{
				Code:      types.ErrUnsupportedOperation,
				Message:   "unsupported orphan policy: " + ev.Orphan,
				Operation: "getSubscriber",
			}
		}
		s = UnmanagedSubscriber{Name: string(EventOrphan)}
	case EventTransaction:
		s = newPollingTransactionSubscriber(p, ev.Hash)
	case EventDebug:
		s = UnmanagedSubscriber{Name: string(EventDebug)}
	default:
		return nil, &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "unknown event: " + string(ev.Kind),
			Operation: "getSubscriber",
		}
	}

	if pollable, ok := s.(Pollable); ok {
		pollable.SetPollingInterval(p.pollingInterval.Load())
	}
	return s, nil
}

// On registers fn for ev and starts the subscriber on first use.
func (p *Provider) On(ev Event, fn Listener) (ListenerID, error) {
	return p.addListener(ev, fn, false)
}

// Once registers fn for a single delivery.
func (p *Provider) Once(ev Event, fn Listener) (ListenerID, error) {
	return p.addListener(ev, fn, true)
}

func (p *Provider) addListener(ev Event, fn Listener, once bool) (ListenerID, error) {
	if fn == nil {
		return 0, types.InvalidArgument("missing listener", "listener", nil)
	}

	p.mu.Lock()
	key := ev.key()
	sub, ok := p.subs[key]
	if !ok {
		s, err := p.subscriberFor(ev)
		if err != nil {
			p.mu.Unlock()
			return 0, err
		}
		sub = &subscription{event: ev, subscriber: s}
		p.subs[key] = sub
	}

	id := ListenerID(p.nextListener.Inc())
	sub.listeners = append(sub.listeners, listenerEntry{id: id, fn: fn, once: once})

	start := !sub.started && p.paused == nil
	if start {
		sub.started = true
	}
	p.mu.Unlock()

	if start {
		p.Start()
		sub.subscriber.Start()
	}
	return id, nil
}

// Off removes the listeners with the given ids from ev, or every listener of
// ev when no id is given. A subscription without listeners is stopped.
func (p *Provider) Off(ev Event, ids ...ListenerID) {
	p.mu.Lock()
	key := ev.key()
	sub, ok := p.subs[key]
	if !ok {
		p.mu.Unlock()
		return
	}

	if len(ids) == 0 {
		sub.listeners = nil
	} else {
		drop := make(map[ListenerID]bool, len(ids))
		for _, id := range ids {
			drop[id] = true
		}
		kept := sub.listeners[:0:0]
		for _, l := range sub.listeners {
			if !drop[l.id] {
				kept = append(kept, l)
			}
		}
		sub.listeners = kept
	}

	stop := len(sub.listeners) == 0
	if stop {
		delete(p.subs, key)
	}
	p.mu.Unlock()

	if stop && sub.started {
		sub.subscriber.Stop()
	}
}

// Emit delivers payload to every listener of ev and reports whether there
// were any.
func (p *Provider) Emit(ev Event, payload any) bool {
	p.mu.Lock()
	key := ev.key()
	sub, ok := p.subs[key]
	if !ok || len(sub.listeners) == 0 {
		p.mu.Unlock()
		return false
	}

	listeners := make([]listenerEntry, len(sub.listeners))
	copy(listeners, sub.listeners)

	kept := sub.listeners[:0:0]
	for _, l := range sub.listeners {
		if !l.once {
			kept = append(kept, l)
		}
	}
	sub.listeners = kept

	stop := len(kept) == 0
	if stop {
		delete(p.subs, key)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		p.callListener(ev, l.fn, payload)
	}

	if stop && sub.started {
		sub.subscriber.Stop()
	}
	return true
}

func (p *Provider) callListener(ev Event, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("event listener panicked", map[string]any{"event": string(ev.Kind), "panic": r})
		}
	}()
	fn(payload)
}

// ListenerCount counts the listeners of the given events, or of every event
// when none is given.
func (p *Provider) ListenerCount(events ...Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(events) == 0 {
		total := 0
		for _, sub := range p.subs {
			total += len(sub.listeners)
		}
		return total
	}

	total := 0
	for _, ev := range events {
		if sub, ok := p.subs[ev.key()]; ok {
			total += len(sub.listeners)
		}
	}
	return total
}

// RemoveAllListeners drops every subscription.
func (p *Provider) RemoveAllListeners() {
	p.removeAllSubscriptions()
}

func (p *Provider) removeAllSubscriptions() {
	p.mu.Lock()
	subs := p.subs
	p.subs = make(map[string]*subscription)
	p.mu.Unlock()

	for _, sub := range subs {
		if sub.started {
			sub.subscriber.Stop()
		}
	}
}

// Paused reports whether event delivery is paused.
func (p *Provider) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused != nil
}

// Pause suspends every subscriber. With dropWhilePaused, events that occur
// while paused are never delivered.
func (p *Provider) Pause(dropWhilePaused bool) error {
	p.mu.Lock()
	if p.paused != nil {
		same := *p.paused == dropWhilePaused
		p.mu.Unlock()
		if same {
			return nil
		}
		return &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "cannot change pause type; resume first",
			Operation: "pause",
		}
	}
	p.paused = &dropWhilePaused
	subs := p.startedSubscribersLocked()
	p.mu.Unlock()

	for _, s := range subs {
		s.Pause(dropWhilePaused)
	}
	return nil
}

// Resume restarts subscribers paused by Pause and starts the ones registered
// while paused.
func (p *Provider) Resume() {
	p.mu.Lock()
	if p.paused == nil {
		p.mu.Unlock()
		return
	}
	p.paused = nil

	var resume, start []Subscriber
	for _, sub := range p.subs {
		if sub.started {
			resume = append(resume, sub.subscriber)
		} else if len(sub.listeners) > 0 {
			sub.started = true
			start = append(start, sub.subscriber)
		}
	}
	p.mu.Unlock()

	for _, s := range resume {
		s.Resume()
	}
	for _, s := range start {
		s.Start()
	}
}

func (p *Provider) startedSubscribersLocked() []Subscriber {
	var out []Subscriber
	for _, sub := range p.subs {
		if sub.started {
			out = append(out, sub.subscriber)
		}
	}
	return out
}

// PollingInterval is applied to every Pollable subscriber.
func (p *Provider) PollingInterval() time.Duration {
	return p.pollingInterval.Load()
}

func (p *Provider) SetPollingInterval(d time.Duration) {
	p.pollingInterval.Store(d)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subs {
		if pollable, ok := sub.subscriber.(Pollable); ok {
			pollable.SetPollingInterval(d)
		}
	}
}

func (p *Provider) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// SetPolling switches log subscriptions between server-side filters and
// client-side getLogs polling. Live subscriptions are swapped in place.
func (p *Provider) SetPolling(polling bool) {
	p.mu.Lock()
	if p.polling == polling {
		p.mu.Unlock()
		return
	}
	p.polling = polling

	type swap struct{ old, new Subscriber }
	var swaps []swap
	for _, sub := range p.subs {
		if sub.event.Kind != EventLogs {
			continue
		}
		next, err := p.subscriberFor(sub.event)
		if err != nil {
			continue
		}
		if sub.started {
			swaps = append(swaps, swap{old: sub.subscriber, new: next})
		}
		sub.subscriber = next
	}
	paused := p.paused != nil
	p.mu.Unlock()

	for _, s := range swaps {
		s.old.Stop()
		if !paused {
			s.new.Start()
		}
	}
}

// recoverSubscriber replaces old with next for the subscription it serves,
// used when a node turns out not to support filters.
func (p *Provider) recoverSubscriber(old, next Subscriber) {
	p.mu.Lock()
	var found *subscription
	for _, sub := range p.subs {
		if sub.subscriber == old {
			found = sub
			break
		}
	}
	if found == nil {
		p.mu.Unlock()
		return
	}
	found.subscriber = next
	if pollable, ok := next.(Pollable); ok {
		pollable.SetPollingInterval(p.pollingInterval.Load())
	}
	start := found.started && p.paused == nil
	p.mu.Unlock()

	old.Stop()
	if start {
		next.Start()
	}
}

func (p *Provider) emitDebug(ev DebugEvent) {
	p.Emit(DebugEvents(), ev)
}
