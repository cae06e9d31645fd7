package bus

import (
	"time"
)

// Options control how values written through a Publisher are delivered.
// They are fixed when the publisher is opened.
type Options struct {
	// SendAll queues every value for subscribers. When false, a subscriber
	// that has not yet consumed a pending value only sees the latest one.
	SendAll bool `json:"sendAll,omitempty"`

	// KeepDuplicates delivers a value even when it equals the previous value
	// written by the same publisher.
	KeepDuplicates bool `json:"keepDuplicates,omitempty"`

	// Persistent asks the bus to save the topic's retained value so it
	// survives a restart.
	Persistent bool `json:"persistent,omitempty"`
}

// SubscribeOptions tune a single subscription.
type SubscribeOptions struct {
	// Buffer is the number of pending values held for the subscriber.
	// Values beyond it are dropped for send-all topics.
	Buffer int
}

const defaultSubscribeBuffer = 64

// Value is one update observed on a topic.
type Value struct {
	Topic string    `json:"topic"`
	Data  string    `json:"value"`
	Seq   uint64    `json:"seq"`
	Time  time.Time `json:"time"`
}

// Publisher writes string values to a single topic.
// Set never blocks on subscribers.
type Publisher interface {
	Set(value string)
	Topic() string
}

// Bus is a named-topic broadcast medium.
type Bus interface {
	Publish(topic string, opts Options) Publisher
	Subscribe(topic string, opts SubscribeOptions) *Subscription
}

// Retainer persists the last value of persistent topics.
// Defined consumer-side; internal/store provides the sqlite implementation.
type Retainer interface {
	SaveValue(v Value) error
	LoadValues() ([]Value, error)
}
