package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, r Retainer) *Memory {
	t.Helper()
	m := NewMemory(nil, r)
	t.Cleanup(m.Close)
	return m
}

func receive(t *testing.T, sub *Subscription) Value {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatalf("no value received on %s", sub.Topic())
		return Value{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected value on %s: %q", sub.Topic(), v.Data)
	default:
	}
}

func TestMemory_SendAllKeepsDuplicates(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	sub := m.Subscribe("/t", SubscribeOptions{})
	pub := m.Publish("/t", Options{SendAll: true, KeepDuplicates: true})

	pub.Set("same")
	pub.Set("same")

	first := receive(t, sub)
	second := receive(t, sub)
	assert.Equal(t, "same", first.Data)
	assert.Equal(t, "same", second.Data)
	assert.Less(t, first.Seq, second.Seq)
}

func TestMemory_DropsDuplicatesWithoutKeepDuplicates(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	sub := m.Subscribe("/t", SubscribeOptions{})
	pub := m.Publish("/t", Options{SendAll: true})

	pub.Set("a")
	pub.Set("a")
	pub.Set("b")

	assert.Equal(t, "a", receive(t, sub).Data)
	assert.Equal(t, "b", receive(t, sub).Data)
	assertEmpty(t, sub)
}

func TestMemory_CoalescesWithoutSendAll(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	sub := m.Subscribe("/tab", SubscribeOptions{})
	pub := m.Publish("/tab", Options{KeepDuplicates: true})

	pub.Set("Autonomous")
	pub.Set("Teleop")
	pub.Set("Pit")

	assert.Equal(t, "Pit", receive(t, sub).Data)
	assertEmpty(t, sub)
}

func TestMemory_LateSubscriberGetsRetainedValue(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	m.Publish("/tab", Options{KeepDuplicates: true}).Set("Teleop")

	sub := m.Subscribe("/tab", SubscribeOptions{})
	assert.Equal(t, "Teleop", receive(t, sub).Data)

	last, ok := m.Last("/tab")
	require.True(t, ok)
	assert.Equal(t, "Teleop", last.Data)
}

func TestMemory_FullSendAllSubscriberDropsNewValues(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	sub := m.Subscribe("/t", SubscribeOptions{Buffer: 1})
	pub := m.Publish("/t", Options{SendAll: true, KeepDuplicates: true})

	pub.Set("first")
	pub.Set("second")

	assert.Equal(t, "first", receive(t, sub).Data)
	assertEmpty(t, sub)
}

func TestMemory_CloseDetachesSubscription(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	sub := m.Subscribe("/t", SubscribeOptions{})
	sub.Close()
	sub.Close()

	m.Publish("/t", Options{SendAll: true}).Set("ignored")

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestMemory_TopicsSortedSnapshot(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	m.Publish("/b", Options{}).Set("2")
	m.Publish("/a", Options{}).Set("1")
	m.Subscribe("/empty", SubscribeOptions{})

	values := m.Topics()
	require.Len(t, values, 2)
	assert.Equal(t, "/a", values[0].Topic)
	assert.Equal(t, "/b", values[1].Topic)
}

func TestMemory_ConcurrentPublishersDeliverEverything(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)

	const writers, perWriter = 4, 25
	sub := m.Subscribe("/t", SubscribeOptions{Buffer: writers * perWriter})

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub := m.Publish("/t", Options{SendAll: true, KeepDuplicates: true})
			for range perWriter {
				pub.Set("x")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sub.C(), writers*perWriter)
}

type fakeRetainer struct {
	mu     sync.Mutex
	saved  []Value
	loaded []Value
	err    error
}

func (f *fakeRetainer) SaveValue(v Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, v)
	return nil
}

func (f *fakeRetainer) LoadValues() ([]Value, error) {
	return f.loaded, f.err
}

func (f *fakeRetainer) savedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []string
	for _, v := range f.saved {
		topics = append(topics, v.Topic)
	}
	return topics
}

func TestMemory_PersistsOnlyPersistentTopics(t *testing.T) {
	t.Parallel()
	r := &fakeRetainer{}
	m := NewMemory(nil, r)

	m.Publish("/tab", Options{KeepDuplicates: true, Persistent: true}).Set("Teleop")
	m.Publish("/notes", Options{SendAll: true}).Set("{}")
	m.Close()

	assert.Equal(t, []string{"/tab"}, r.savedTopics())
}

func TestMemory_PersistMarksExistingPublishers(t *testing.T) {
	t.Parallel()
	r := &fakeRetainer{}
	m := NewMemory(nil, r)

	pub := m.Publish("/tab", Options{KeepDuplicates: true})
	m.Persist("/tab")
	pub.Set("Auto")
	m.Close()

	assert.Equal(t, []string{"/tab"}, r.savedTopics())
}

func TestMemory_RestoreSeedsRetainedValues(t *testing.T) {
	t.Parallel()
	r := &fakeRetainer{loaded: []Value{{Topic: "/tab", Data: "Pit", Seq: 41}}}
	m := newTestBus(t, r)

	require.NoError(t, m.Restore())

	sub := m.Subscribe("/tab", SubscribeOptions{})
	assert.Equal(t, "Pit", receive(t, sub).Data)

	m.Publish("/tab", Options{}).Set("Teleop")
	v := receive(t, sub)
	assert.Equal(t, uint64(42), v.Seq)
}

func TestMemory_RestorePropagatesLoadError(t *testing.T) {
	t.Parallel()
	r := &fakeRetainer{err: errors.New("disk gone")}
	m := newTestBus(t, r)

	err := m.Restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestDefault_ReturnsSameBus(t *testing.T) {
	t.Parallel()
	assert.Same(t, Default(), Default())
}

func TestMemory_LimitTopicsRefusesNewTopics(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)
	m.LimitTopics(2)

	m.Publish("/a", Options{}).Set("1")
	sub := m.Subscribe("/b", SubscribeOptions{})
	assert.False(t, sub.Closed())

	m.Publish("/c", Options{SendAll: true, KeepDuplicates: true}).Set("dropped")
	_, ok := m.Last("/c")
	assert.False(t, ok)

	refused := m.Subscribe("/d", SubscribeOptions{})
	assert.True(t, refused.Closed())
	_, open := <-refused.C()
	assert.False(t, open)
	assert.Equal(t, 0, m.Subscribers("/d"))

	m.Publish("/a", Options{}).Set("2")
	v, ok := m.Last("/a")
	require.True(t, ok)
	assert.Equal(t, "2", v.Data, "existing topics keep working at the limit")
}

func TestMemory_PersistBypassesTopicLimit(t *testing.T) {
	t.Parallel()
	m := newTestBus(t, nil)
	m.LimitTopics(1)

	m.Publish("/a", Options{}).Set("1")
	m.Persist("/Elastic/SelectedTab")
	m.Publish("/Elastic/SelectedTab", Options{KeepDuplicates: true}).Set("Auto")

	v, ok := m.Last("/Elastic/SelectedTab")
	require.True(t, ok)
	assert.Equal(t, "Auto", v.Data)
}
