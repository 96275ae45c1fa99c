package kevent

import "github.com/kelindar/event"

// envelope adapts an Event payload to kelindar/event's Event interface. Each
// Broadcaster owns a private dispatcher, so the type tag only needs to be
// unique within that one dispatcher instance.
type envelope struct {
	ev Event
}

func (envelope) Type() uint32 { return 1 }

// Broadcaster fans a stream of kernel events out to any number of
// subscribers, each tracking its own cursor, so a slow subscriber never
// blocks the publisher (spec.md §5, "Broadcast channels have multiple
// readers ... never block writers"). It backs the six per-node channels in
// devtree.Node and the two per-subsystem channels in subsystem.Entry.
type Broadcaster struct {
	d *event.Dispatcher
}

// NewBroadcaster allocates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{d: event.NewDispatcher()}
}

// Publish delivers ev to every current subscriber.
func (b *Broadcaster) Publish(ev Event) {
	event.Publish(b.d, envelope{ev: ev})
}

// Subscribe registers fn to receive every future published event. The
// returned function unsubscribes; calling it more than once is safe.
func (b *Broadcaster) Subscribe(fn func(Event)) (unsubscribe func()) {
	return event.Subscribe(b.d, func(e envelope) { fn(e.ev) })
}

// Chan is a convenience over Subscribe that feeds a buffered channel
// instead of a callback. The publisher is non-blocking: once buffer fills,
// further events are dropped for this subscriber rather than stalling
// Publish for everyone else.
func (b *Broadcaster) Chan(buffer int) (events <-chan Event, cancel func()) {
	ch := make(chan Event, buffer)
	unsub := b.Subscribe(func(ev Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	return ch, unsub
}
