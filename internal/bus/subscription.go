package bus

import (
	"sync"
	"sync/atomic"
)

// Subscription receives values published on one topic.
type Subscription struct {
	topic  string
	ch     chan Value
	cancel func(*Subscription)

	closeOnce sync.Once
	closed    atomic.Bool
}

func newSubscription(topic string, buffer int, cancel func(*Subscription)) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscribeBuffer
	}
	return &Subscription{
		topic:  topic,
		ch:     make(chan Value, buffer),
		cancel: cancel,
	}
}

// Topic returns the subscribed topic name.
func (s *Subscription) Topic() string {
	return s.topic
}

// C returns the channel values are delivered on. It is closed by Close.
func (s *Subscription) C() <-chan Value {
	return s.ch
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel(s)
		}
		s.closed.Store(true)
		close(s.ch)
	})
}

// Closed reports whether Close has run. A subscription refused by the bus
// is returned already closed.
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}

// deliver hands v to the subscriber without blocking. With sendAll every
// value is queued and false is returned when the buffer is full; otherwise
// pending values are discarded so only the latest remains.
// Callers hold the owning bus lock, which serializes deliver and Close.
func (s *Subscription) deliver(v Value, sendAll bool) bool {
	if sendAll {
		select {
		case s.ch <- v:
			return true
		default:
			return false
		}
	}

drain:
	for {
		select {
		case <-s.ch:
		default:
			break drain
		}
	}
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}
