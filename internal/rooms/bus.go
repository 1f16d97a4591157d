package rooms

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/erikmillergalow/impermachat/internal/metrics"
)

// busCapacity bounds each subscriber's event buffer. A subscriber that falls
// this far behind starts losing events.
const busCapacity = 100

// ErrNoSubscribers reports a publish on a bus nobody is listening to. Callers
// log it at most; an empty room is legal.
var ErrNoSubscribers = errors.New("no subscribers")

// Bus fans a room's ActionEvents out to its subscribers. All methods are safe
// for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one subscriber's handle on a room bus. Receive from C until
// it closes; Dropped reports how many events were lost to a full buffer since
// the last call.
type Subscription struct {
	C       <-chan ActionEvent
	ch      chan ActionEvent
	bus     *Bus
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Subscribing to a closed bus returns a
// subscription whose channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan ActionEvent, busCapacity)
	sub := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber without blocking. Subscribers whose
// buffers are full miss the event and have their drop counter incremented.
func (b *Bus) Publish(ev ActionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.subs) == 0 {
		return ErrNoSubscribers
	}

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			metrics.EventsDropped.Inc()
		}
	}
	metrics.EventsPublished.WithLabelValues(ev.Action.String()).Inc()
	return nil
}

// Close ends every subscription. Already-buffered events remain readable
// before each channel reports closed. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// Cancel detaches the subscription from its bus. The channel is left open so
// a driver mid-drain never reads from a channel closed under it. Safe to call
// after the bus has closed.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s)
}

// Dropped returns the number of events lost since the last call and resets
// the counter.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Swap(0)
}
