package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const persistQueueSize = 256

// Memory is an in-process Bus. Every topic retains its last value, which
// is replayed to subscribers that join later.
type Memory struct {
	mu        sync.Mutex
	topics    map[string]*topic
	seq       uint64
	maxTopics int

	retainer  Retainer
	persistCh chan Value
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

type topic struct {
	name       string
	last       *Value
	persistent bool
	subs       map[*Subscription]struct{}
}

var _ Bus = (*Memory)(nil)

// NewMemory creates an in-process bus. retainer may be nil; when set,
// values of persistent topics are saved through it in the background.
func NewMemory(logger *slog.Logger, retainer Retainer) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Memory{
		topics:   make(map[string]*topic),
		retainer: retainer,
		done:     make(chan struct{}),
		logger:   logger.With("component", "bus"),
	}
	if retainer != nil {
		m.persistCh = make(chan Value, persistQueueSize)
		m.wg.Add(1)
		go m.persistLoop()
	}
	return m
}

var defaultBus = sync.OnceValue(func() *Memory {
	return NewMemory(slog.Default(), nil)
})

// Default returns the process-wide in-memory bus.
func Default() *Memory {
	return defaultBus()
}

// Publish opens a publisher on name with the given options.
func (m *Memory) Publish(name string, opts Options) Publisher {
	if opts.Persistent {
		m.mu.Lock()
		if t, ok := m.admitLocked(name); ok {
			t.persistent = true
		}
		m.mu.Unlock()
	}
	return &memPublisher{bus: m, topic: name, opts: opts}
}

// LimitTopics caps the number of topics publishers and subscribers may
// create. Values and subscriptions for further topics are refused. Topics
// named through Persist or Restore are always admitted. Zero removes the cap.
func (m *Memory) LimitTopics(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxTopics = n
}

// Persist marks name persistent: its values are saved through the
// retainer from now on.
func (m *Memory) Persist(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topicLocked(name).persistent = true
}

// Subscribe attaches a subscriber to name. The retained value, if any, is
// delivered immediately.
func (m *Memory) Subscribe(name string, opts SubscribeOptions) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.admitLocked(name)
	if !ok {
		topicsRejected.Inc()
		m.logger.Warn("topic limit reached, subscription refused", "topic", name, "limit", m.maxTopics)
		sub := newSubscription(name, 1, nil)
		sub.Close()
		return sub
	}

	sub := newSubscription(name, opts.Buffer, m.unsubscribe)
	t.subs[sub] = struct{}{}
	subscribersActive.Inc()

	if t.last != nil {
		sub.deliver(*t.last, true)
	}

	m.logger.Debug("subscriber attached", "topic", name, "subscribers", len(t.subs))
	return sub
}

// Topics returns the retained value of every topic that has one, sorted
// by topic name.
func (m *Memory) Topics() []Value {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make([]Value, 0, len(m.topics))
	for _, t := range m.topics {
		if t.last != nil {
			values = append(values, *t.last)
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Topic < values[j].Topic })
	return values
}

// Last returns the retained value of name.
func (m *Memory) Last(name string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[name]
	if !ok || t.last == nil {
		return Value{}, false
	}
	return *t.last, true
}

// Subscribers reports how many subscriptions are open on name.
func (m *Memory) Subscribers(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

// Restore seeds retained values from the retainer. Restored topics are
// marked persistent. Subscribers are not notified.
func (m *Memory) Restore() error {
	if m.retainer == nil {
		return nil
	}

	values, err := m.retainer.LoadValues()
	if err != nil {
		return fmt.Errorf("loading retained values: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range values {
		t := m.topicLocked(v.Topic)
		t.persistent = true
		restored := v
		t.last = &restored
		if v.Seq > m.seq {
			m.seq = v.Seq
		}
	}

	m.logger.Info("restored retained values", "count", len(values))
	return nil
}

// Close stops background persistence after flushing queued values.
// Open subscriptions are closed.
func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		var subs []*Subscription
		for _, t := range m.topics {
			for sub := range t.subs {
				subs = append(subs, sub)
			}
		}
		m.mu.Unlock()

		for _, sub := range subs {
			sub.Close()
		}
	})
}

func (m *Memory) publish(name, data string, opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.admitLocked(name)
	if !ok {
		topicsRejected.Inc()
		m.logger.Warn("topic limit reached, dropping value", "topic", name, "limit", m.maxTopics)
		return
	}

	m.seq++
	v := Value{Topic: name, Data: data, Seq: m.seq, Time: time.Now().UTC()}
	t.last = &v
	valuesPublished.WithLabelValues(name).Inc()

	for sub := range t.subs {
		if sub.deliver(v, opts.SendAll) {
			valuesDelivered.WithLabelValues(name).Inc()
			continue
		}
		valuesDropped.WithLabelValues(name, dropSubscriberFull).Inc()
		m.logger.Warn("subscriber buffer full, dropping value", "topic", name, "seq", v.Seq)
	}

	if t.persistent && m.persistCh != nil {
		select {
		case m.persistCh <- v:
		default:
			valuesDropped.WithLabelValues(name, dropPersistFull).Inc()
			m.logger.Warn("persist queue full, retained value not saved", "topic", name)
		}
	}
}

func (m *Memory) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.topics[sub.topic]; ok {
		if _, exists := t.subs[sub]; exists {
			delete(t.subs, sub)
			subscribersActive.Dec()
		}
	}
}

// admitLocked returns the topic called name, creating it only while the
// topic limit allows.
func (m *Memory) admitLocked(name string) (*topic, bool) {
	if t, ok := m.topics[name]; ok {
		return t, true
	}
	if m.maxTopics > 0 && len(m.topics) >= m.maxTopics {
		return nil, false
	}
	return m.topicLocked(name), true
}

// countDuplicate records a duplicate drop under the topic label only for
// admitted topics, so refused names never become label values.
func (m *Memory) countDuplicate(name string) {
	m.mu.Lock()
	_, ok := m.topics[name]
	m.mu.Unlock()
	if ok {
		valuesDropped.WithLabelValues(name, dropDuplicate).Inc()
	}
}

func (m *Memory) topicLocked(name string) *topic {
	t, ok := m.topics[name]
	if !ok {
		t = &topic{name: name, subs: make(map[*Subscription]struct{})}
		m.topics[name] = t
	}
	return t
}

func (m *Memory) persistLoop() {
	defer m.wg.Done()
	for {
		select {
		case v := <-m.persistCh:
			m.save(v)
		case <-m.done:
			for {
				select {
				case v := <-m.persistCh:
					m.save(v)
				default:
					return
				}
			}
		}
	}
}

func (m *Memory) save(v Value) {
	if err := m.retainer.SaveValue(v); err != nil {
		m.logger.Error("failed to save retained value", "topic", v.Topic, "error", err)
	}
}

// memPublisher writes to a Memory bus. It is safe for concurrent use.
type memPublisher struct {
	bus   *Memory
	topic string
	opts  Options

	mu      sync.Mutex
	last    string
	hasLast bool
}

func (p *memPublisher) Topic() string {
	return p.topic
}

func (p *memPublisher) Set(value string) {
	if !p.opts.KeepDuplicates {
		p.mu.Lock()
		if p.hasLast && p.last == value {
			p.mu.Unlock()
			p.bus.countDuplicate(p.topic)
			return
		}
		p.last = value
		p.hasLast = true
		p.mu.Unlock()
	}
	p.bus.publish(p.topic, value, p.opts)
}
