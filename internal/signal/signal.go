// Package signal provides a single-producer, multi-observer value cell.
//
// A Signal holds the latest value set on it and lets any number of
// observers subscribe to be notified of every value set after they
// subscribed. It backs the Status Controller and WebSocket Streamer's
// view of a fetch worker's live state: a worker calls Set exactly once
// per transition, and any number of readers can poll Get or subscribe to
// watch for changes without synchronizing with each other.
package signal

import "sync"

// backlog is the per-receiver buffered channel size. A slow receiver that
// falls behind drops its oldest unread value rather than blocking the
// producer.
const backlog = 4

// Signal is a broadcast cell for values of type T. The zero value is not
// usable; construct one with New.
type Signal[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[*Receiver[T]]struct{}
}

// Receiver observes values set on a Signal after it subscribed.
type Receiver[T any] struct {
	ch chan T
}

// New creates a Signal with an initial value.
func New[T any](initial T) *Signal[T] {
	return &Signal[T]{
		value: initial,
		subs:  make(map[*Receiver[T]]struct{}),
	}
}

// Set overwrites the current value and broadcasts it to every current
// receiver. It never blocks: a receiver whose buffer is full has its
// oldest value dropped to make room.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	for r := range s.subs {
		select {
		case r.ch <- v:
		default:
			select {
			case <-r.ch:
			default:
			}
			select {
			case r.ch <- v:
			default:
			}
		}
	}
}

// Get returns a snapshot of the current value. It never blocks.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Subscribe returns a Receiver that will see every value set after this
// call returns. Call Unsubscribe when done to release its channel.
func (s *Signal[T]) Subscribe() *Receiver[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Receiver[T]{ch: make(chan T, backlog)}
	s.subs[r] = struct{}{}
	return r
}

// Unsubscribe detaches a Receiver from the Signal and closes its channel.
func (s *Signal[T]) Unsubscribe(r *Receiver[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[r]; !ok {
		return
	}
	delete(s.subs, r)
	close(r.ch)
}

// C returns the channel of broadcast values.
func (r *Receiver[T]) C() <-chan T {
	return r.ch
}
