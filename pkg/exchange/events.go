package exchange

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind discriminates the audit log record types.
type EventKind string

const (
	EventDeposit  EventKind = "Deposit"
	EventWithdraw EventKind = "Withdraw"
	EventOrder    EventKind = "Order"
	EventCancel   EventKind = "Cancel"
	EventTrade    EventKind = "Trade"
)

// Event is one immutable record in the exchange's ordered, append-only
// audit log. Seq is assigned at append time and is gapless. Which fields
// are populated depends on Kind:
//
//	Deposit/Withdraw: Token, User, Amount, Balance (balance after)
//	Order/Cancel:     ID, User (creator), TokenGet/AmountGet, TokenGive/AmountGive, Timestamp
//	Trade:            ID, User (filler), TokenGet/AmountGet, TokenGive/AmountGive, Creator, Timestamp
type Event struct {
	Seq  int64     `json:"seq"`
	Kind EventKind `json:"kind"`

	Token   common.Address `json:"token,omitempty"`
	User    common.Address `json:"user"`
	Amount  int64          `json:"amount,omitempty"`
	Balance int64          `json:"balance,omitempty"`

	ID         int64          `json:"id,omitempty"`
	TokenGet   common.Address `json:"tokenGet,omitempty"`
	AmountGet  int64          `json:"amountGet,omitempty"`
	TokenGive  common.Address `json:"tokenGive,omitempty"`
	AmountGive int64          `json:"amountGive,omitempty"`
	Creator    common.Address `json:"creator,omitempty"`
	Timestamp  int64          `json:"timestamp,omitempty"`
}

// Feed is the observable event log. Core logic only appends; observers
// read snapshots or subscribe for live fan-out. Nothing in the core ever
// reads events back, so the feed cannot affect ledger invariants.
type Feed struct {
	mu     sync.RWMutex
	events []Event
	subs   map[chan Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

// append assigns the next sequence number, stores the record and fans it
// out. Subscribers that cannot keep up miss events rather than block the
// core (same discipline as the ws hub).
func (f *Feed) append(e Event) Event {
	f.mu.Lock()
	e.Seq = int64(len(f.events)) + 1
	f.events = append(f.events, e)
	for ch := range f.subs {
		select {
		case ch <- e:
		default:
		}
	}
	f.mu.Unlock()
	return e
}

// restore seeds the feed with previously journaled events. Only called
// before the exchange starts serving, so no fan-out.
func (f *Feed) restore(events []Event) {
	f.mu.Lock()
	f.events = append(f.events[:0], events...)
	f.mu.Unlock()
}

// Events returns a snapshot copy of the full log, oldest first.
func (f *Feed) Events() []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

// EventsSince returns all events with Seq > since.
func (f *Feed) EventsSince(since int64) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if since < 0 {
		since = 0
	}
	if since >= int64(len(f.events)) {
		return nil
	}
	out := make([]Event, int64(len(f.events))-since)
	copy(out, f.events[since:])
	return out
}

// Len returns the number of appended events.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// Subscribe registers a buffered live channel. The returned cancel
// function unregisters and closes it.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}
