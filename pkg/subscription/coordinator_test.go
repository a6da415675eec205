package subscription

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// sentRequest is one request captured by fakeTransport.
type sentRequest struct {
	event    string
	channels []channel.Descriptor
}

// fakeTransport records sends and lets tests flip the link state.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []sentRequest
	listeners map[int]func()
	nextID    int
	sendErr   error
	onSend    func(event string)
}

func newFakeTransport(connected bool) *fakeTransport {
	return &fakeTransport{connected: connected, listeners: make(map[int]func())}
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(event string, payload []byte) error {
	channels, err := wire.ProtoCodec{}.DecodeChannels(payload)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentRequest{event: event, channels: channels})
	hook := f.onSend
	sendErr := f.sendErr
	f.mu.Unlock()

	if hook != nil {
		hook(event)
	}
	return sendErr
}

func (f *fakeTransport) OnConnected(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeTransport) connect() {
	f.mu.Lock()
	f.connected = true
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (f *fakeTransport) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) requests() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.sent...)
}

// filter returns the channels of every request with the given event.
func (f *fakeTransport) filter(event string) [][]channel.Descriptor {
	var out [][]channel.Descriptor
	for _, r := range f.requests() {
		if r.event == event {
			out = append(out, r.channels)
		}
	}
	return out
}

func (f *fakeTransport) subscribes() [][]channel.Descriptor {
	return f.filter(wire.EventSubscribe)
}

func (f *fakeTransport) unsubscribes() [][]channel.Descriptor {
	return f.filter(wire.EventUnsubscribe)
}

// recordingLogger collects capture events.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(event log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLogger) categories() []log.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]log.Category, len(r.events))
	for i, e := range r.events {
		out[i] = e.Category
	}
	return out
}

func chat(id int64) (channel.Key, channel.Descriptor) {
	d := channel.ChatRoomUpdates(id)
	return d.Key(), d
}

func post(uuid string) (channel.Key, channel.Descriptor) {
	d := channel.PostUpdates(uuid)
	return d.Key(), d
}

func TestSingleSubscribeSharing(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(42)

	for i := 0; i < 5; i++ {
		c.AddInterest(key, d)
	}

	assert.Equal(t, [][]channel.Descriptor{{d}}, tr.subscribes())
	assert.Empty(t, tr.unsubscribes())
	assert.Equal(t, 5, c.Count(key))
}

func TestSingleUnsubscribeOnDrain(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := post("post-123")

	for i := 0; i < 3; i++ {
		c.AddInterest(key, d)
	}

	c.RemoveInterest(key)
	c.RemoveInterest(key)
	assert.Empty(t, tr.unsubscribes(), "no unsubscribe before the last consumer leaves")

	c.RemoveInterest(key)
	assert.Equal(t, [][]channel.Descriptor{{d}}, tr.unsubscribes())
	assert.Equal(t, 0, c.Count(key))
}

func TestOverRemovalIsIdempotent(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(7)

	c.AddInterest(key, d)
	for i := 0; i < 4; i++ {
		c.RemoveInterest(key)
	}

	assert.Len(t, tr.unsubscribes(), 1)
	assert.Equal(t, 0, c.Count(key))

	// Counts never go negative: one add brings the key back to 1.
	c.AddInterest(key, d)
	assert.Equal(t, 1, c.Count(key))
	assert.Len(t, tr.subscribes(), 2)
}

func TestRemoveUnknownKey(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())

	c.RemoveInterest(channel.ChatRoomKey(1))
	c.RemoveInterest(channel.Key{})

	assert.Empty(t, tr.requests())
}

func TestDeferredReplayPreservesDescriptor(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := post("post-123")

	c.AddInterest(key, d)
	assert.Empty(t, tr.requests())
	assert.Equal(t, 0, c.Count(key))
	assert.Equal(t, 1, c.Pending())

	tr.connect()

	assert.Equal(t, [][]channel.Descriptor{{channel.PostUpdates("post-123")}}, tr.subscribes())
	assert.Equal(t, 1, c.Count(key))
	assert.Equal(t, 0, c.Pending())

	// A second connect has nothing left to replay.
	tr.disconnect()
	tr.connect()
	assert.Len(t, tr.subscribes(), 1)
}

func TestReplayKeepsArrivalOrderAndShares(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	chatKey, chatDesc := chat(42)
	postKey, postDesc := post("post-9")
	listDesc := channel.CuratedListUpdates(channel.CuratedListPopular)

	c.AddInterest(chatKey, chatDesc)
	c.AddInterest(postKey, postDesc)
	c.AddInterest(chatKey, chatDesc)
	c.AddInterest(listDesc.Key(), listDesc)

	tr.connect()

	assert.Equal(t, [][]channel.Descriptor{{chatDesc}, {postDesc}, {listDesc}}, tr.subscribes())
	assert.Equal(t, 2, c.Count(chatKey))
	assert.Equal(t, 1, c.Count(postKey))
}

func TestReplaySkippedWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(3)

	c.AddInterest(key, d)

	// Connect callback fires but the link already dropped again.
	c.replay()

	assert.Empty(t, tr.requests())
	assert.Equal(t, 1, c.Pending())
}

func TestInterestDuringReplayIsDeferred(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	first, firstDesc := chat(1)
	late, lateDesc := chat(2)

	c.AddInterest(first, firstDesc)

	done := make(chan struct{})
	var once sync.Once
	tr.onSend = func(string) {
		once.Do(func() {
			// The link drops while replay holds the coordinator.
			tr.disconnect()
			go func() {
				c.AddInterest(late, lateDesc)
				close(done)
			}()
		})
	}

	tr.connect()
	<-done

	assert.Equal(t, [][]channel.Descriptor{{firstDesc}}, tr.subscribes())
	assert.Equal(t, 1, c.Count(first))
	assert.Equal(t, 0, c.Count(late))
	assert.Equal(t, 1, c.Pending())

	tr.onSend = nil
	tr.connect()
	assert.Equal(t, [][]channel.Descriptor{{firstDesc}, {lateDesc}}, tr.subscribes())
}

func TestInterleavedAddRemove(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(5)

	c.AddInterest(key, d)
	c.AddInterest(key, d)
	c.RemoveInterest(key)
	c.RemoveInterest(key)

	reqs := tr.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, wire.EventSubscribe, reqs[0].event)
	assert.Equal(t, wire.EventUnsubscribe, reqs[1].event)
}

func TestNoCrossKeyInterference(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	a, aDesc := chat(1)
	b, bDesc := post("b")

	c.AddInterest(a, aDesc)
	c.AddInterest(b, bDesc)
	c.AddInterest(a, aDesc)
	c.RemoveInterest(b)
	c.RemoveInterest(a)
	c.AddInterest(b, bDesc)
	c.RemoveInterest(a)

	for _, r := range tr.requests() {
		require.Len(t, r.channels, 1)
	}
	assert.Equal(t, [][]channel.Descriptor{{aDesc}, {bDesc}, {bDesc}}, tr.subscribes())
	assert.Equal(t, [][]channel.Descriptor{{bDesc}, {aDesc}}, tr.unsubscribes())
	assert.Equal(t, 0, c.Count(a))
	assert.Equal(t, 1, c.Count(b))
}

func TestMismatchedKeyIsSkipped(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())

	c.AddInterest(channel.ChatRoomKey(1), channel.ChatRoomUpdates(2))
	c.AddInterest(channel.PostKey("chat_1"), channel.PostUpdates("chat_1"))

	assert.Empty(t, tr.requests())
	assert.Empty(t, c.Snapshot())

	// Skipped interests are not queued either.
	tr.disconnect()
	c.AddInterest(channel.ChatRoomKey(1), channel.ChatRoomUpdates(2))
	assert.Equal(t, 0, c.Pending())
}

func TestSendFailureKeepsCount(t *testing.T) {
	tr := newFakeTransport(true)
	tr.sendErr = errors.New("write: broken pipe")
	capture := &recordingLogger{}
	cfg := DefaultConfig()
	cfg.ProtocolLogger = capture
	c := NewCoordinator(tr, cfg)
	key, d := chat(9)

	c.AddInterest(key, d)
	c.AddInterest(key, d)

	assert.Equal(t, 2, c.Count(key))
	assert.Len(t, tr.subscribes(), 1, "failed sends are not retried")
	assert.Equal(t, []log.Category{log.CategorySubscribe, log.CategoryError}, capture.categories())
}

func TestRemoveWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(4)

	c.AddInterest(key, d)
	tr.disconnect()
	c.RemoveInterest(key)

	assert.Empty(t, tr.unsubscribes())
	assert.Equal(t, 0, c.Count(key))
}

func TestRemovePendingOnlyKeyIsNoop(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(4)

	c.AddInterest(key, d)
	c.RemoveInterest(key)
	assert.Equal(t, 1, c.Pending())

	tr.connect()
	assert.Equal(t, 1, c.Count(key))
}

func TestSnapshotSorted(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	for _, d := range []channel.Descriptor{
		channel.PostUpdates("b-post"),
		channel.ChatRoomUpdates(10),
		channel.CuratedListUpdates(channel.CuratedListVoted),
		channel.ChatRoomUpdates(10),
	} {
		c.AddInterest(d.Key(), d)
	}

	assert.Equal(t, []Interest{
		{Key: channel.CuratedListKey(channel.CuratedListVoted), Count: 1},
		{Key: channel.PostKey("b-post"), Count: 1},
		{Key: channel.ChatRoomKey(10), Count: 2},
	}, c.Snapshot())
}

func TestCloseSendsOneBatchedUnsubscribe(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	chatKey, chatDesc := chat(42)
	postKey, postDesc := post("post-1")

	c.AddInterest(chatKey, chatDesc)
	c.AddInterest(chatKey, chatDesc)
	c.AddInterest(postKey, postDesc)

	c.Close()

	assert.Equal(t, [][]channel.Descriptor{{chatDesc, postDesc}}, tr.unsubscribes())
	assert.Empty(t, c.Snapshot())

	// Closed coordinators ignore further calls and connects.
	c.AddInterest(chatKey, chatDesc)
	c.RemoveInterest(postKey)
	c.Close()
	tr.connect()
	assert.Len(t, tr.requests(), 3)
}

func TestCloseDetachesReplay(t *testing.T) {
	tr := newFakeTransport(false)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(1)

	c.AddInterest(key, d)
	c.Close()
	tr.connect()

	assert.Empty(t, tr.requests())
	assert.Empty(t, tr.listeners)
}

func TestCaptureEvents(t *testing.T) {
	tr := newFakeTransport(false)
	capture := &recordingLogger{}
	cfg := DefaultConfig()
	cfg.ProtocolLogger = capture
	c := NewCoordinator(tr, cfg)
	key, d := chat(42)

	c.AddInterest(key, d)
	tr.connect()
	c.RemoveInterest(key)

	assert.Equal(t, []log.Category{
		log.CategoryDefer,
		log.CategoryReplay,
		log.CategorySubscribe,
		log.CategoryUnsubscribe,
	}, capture.categories())
	assert.Equal(t, []string{"chat_42"}, capture.events[2].Channel.Keys)
	assert.Equal(t, 1, capture.events[2].Channel.Count)
}

func TestCBORCodecConfig(t *testing.T) {
	mt := &mockTransport{}
	mt.On("OnConnected", mock.Anything).Return(func() {}).Once()
	mt.On("IsConnected").Return(true)

	payload, err := wire.CBORCodec{}.EncodeChannels([]channel.Descriptor{channel.ChatRoomUpdates(42)})
	require.NoError(t, err)
	mt.On("Send", "rooms:join", payload).Return(nil).Once()

	cfg := DefaultConfig()
	cfg.Codec = wire.CBORCodec{}
	cfg.SubscribeEvent = "rooms:join"
	c := NewCoordinator(mt, cfg)

	key, d := chat(42)
	c.AddInterest(key, d)
	c.AddInterest(key, d)

	mt.AssertExpectations(t)
	mt.AssertNumberOfCalls(t, "Send", 1)
}

func TestConcurrentInterests(t *testing.T) {
	tr := newFakeTransport(true)
	c := NewCoordinator(tr, DefaultConfig())
	key, d := chat(100)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.AddInterest(key, d)
				c.RemoveInterest(key)
			}
			c.AddInterest(key, d)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, c.Count(key))

	// Every transition was paired: subscribes lead unsubscribes by one.
	reqs := tr.requests()
	open := 0
	for _, r := range reqs {
		switch r.event {
		case wire.EventSubscribe:
			open++
		case wire.EventUnsubscribe:
			open--
		}
		require.GreaterOrEqual(t, open, 0)
		require.LessOrEqual(t, open, 1)
	}
	assert.Equal(t, 1, open)
}

// mockTransport is a testify mock of Transport.
type mockTransport struct{ mock.Mock }

func (m *mockTransport) IsConnected() bool { return m.Called().Bool(0) }

func (m *mockTransport) Send(event string, payload []byte) error {
	return m.Called(event, payload).Error(0)
}

func (m *mockTransport) OnConnected(fn func()) func() {
	return m.Called(fn).Get(0).(func())
}

var _ Transport = (*mockTransport)(nil)
var _ Transport = (*fakeTransport)(nil)
