// Package channel implements the forensic event channel: a typed,
// synchronous publish/subscribe bus shared by analysis tools and the
// objective tracker.
//
// Publish invokes every handler registered for the event name before it
// returns, in subscription order. Events are not buffered; a subscriber only
// sees events published after it subscribed.
package channel

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Topic binds an event name to its payload type.
type Topic[T any] struct {
	Name string
}

// Handle identifies a subscription for Unsubscribe.
type Handle struct {
	id   uint64
	name string
}

type subscriber struct {
	id uint64
	fn func(name string, payload any)
}

// Bus dispatches events to subscribers. Handlers run on the publisher's
// goroutine with no bus lock held, so they may publish, subscribe or
// unsubscribe; registration changes apply from the next Publish.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[string][]subscriber
	wildcard []subscriber
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[string][]subscriber), logger: logger}
}

// Subscribe registers fn for topic t.
func Subscribe[T any](b *Bus, t Topic[T], fn func(T)) Handle {
	return b.add(t.Name, func(name string, payload any) {
		v, ok := payload.(T)
		if !ok {
			b.logger.Error("channel: payload type mismatch",
				slog.String("event", name),
				slog.String("type", fmt.Sprintf("%T", payload)))
			return
		}
		fn(v)
	})
}

// Publish delivers payload to every current subscriber of t, then to
// wildcard observers.
func Publish[T any](b *Bus, t Topic[T], payload T) {
	b.dispatch(t.Name, payload)
}

// SubscribeAll registers fn for every event name. Wildcard observers run
// after the typed handlers of each event.
func (b *Bus) SubscribeAll(fn func(name string, payload any)) Handle {
	return b.add("", fn)
}

// Unsubscribe removes the subscription. It reports whether h was active.
func (b *Bus) Unsubscribe(h Handle) bool {
	if h.id == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.wildcard
	if h.name != "" {
		list = b.subs[h.name]
	}
	i := slices.IndexFunc(list, func(s subscriber) bool { return s.id == h.id })
	if i < 0 {
		return false
	}
	// Copy-on-write: in-flight dispatches keep their snapshot.
	list = slices.Delete(slices.Clone(list), i, i+1)
	if h.name == "" {
		b.wildcard = list
	} else if len(list) == 0 {
		delete(b.subs, h.name)
	} else {
		b.subs[h.name] = list
	}
	return true
}

// SubscriberCount returns the number of typed subscribers for name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

func (b *Bus) add(name string, fn func(string, any)) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := subscriber{id: b.nextID, fn: fn}
	if name == "" {
		b.wildcard = append(slices.Clone(b.wildcard), s)
	} else {
		b.subs[name] = append(slices.Clone(b.subs[name]), s)
	}
	return Handle{id: s.id, name: name}
}

func (b *Bus) dispatch(name string, payload any) {
	b.mu.Lock()
	typed := b.subs[name]
	wildcard := b.wildcard
	b.mu.Unlock()

	for _, s := range typed {
		b.invoke(s, name, payload)
	}
	for _, s := range wildcard {
		b.invoke(s, name, payload)
	}
}

// invoke isolates handler panics so one faulty tool cannot break dispatch.
func (b *Bus) invoke(s subscriber, name string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("channel: handler panicked",
				slog.String("event", name),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	s.fn(name, payload)
}
