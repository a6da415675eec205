package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger records events for testing
type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func subscribeEvent(key string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerCoordinator,
		Category:     CategorySubscribe,
		Channel:      &ChannelEvent{Keys: []string{key}, Count: 1},
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	event := subscribeEvent("chat_42")

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.True(t, event.Timestamp.Equal(got.Timestamp), "timestamp keeps nanoseconds")
	assert.Equal(t, event.Category, got.Category)
	assert.Equal(t, event.Channel, got.Channel)
	assert.Nil(t, got.Frame)
}

func TestCategoryNames(t *testing.T) {
	for c, name := range categoryNames {
		assert.Equal(t, name, c.String())

		parsed, err := ParseCategory(name)
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	parsed, err := ParseCategory("unsubscribe")
	require.NoError(t, err)
	assert.Equal(t, CategoryUnsubscribe, parsed)

	_, err = ParseCategory("bogus")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", Category(200).String())
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.clog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(subscribeEvent("post-1"))
	logger.Log(Event{
		Timestamp: time.Now(),
		Direction: DirectionOut,
		Layer:     LayerTransport,
		Category:  CategoryFrame,
		Frame:     &FrameEvent{Event: "channels:subscribe", Size: 12},
	})
	logger.Log(subscribeEvent("chat_7"))
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second Close is a no-op")

	// Logging after close is ignored.
	logger.Log(subscribeEvent("ignored"))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, event)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "channels:subscribe", events[1].Frame.Event)
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.clog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(subscribeEvent("post-1"))
		require.NoError(t, logger.Close())
	}

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		if _, err := r.Next(); err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.clog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(subscribeEvent("post-1"))
	logger.Log(subscribeEvent("chat_7"))
	logger.Log(Event{
		Timestamp: time.Now(),
		Layer:     LayerCoordinator,
		Category:  CategoryUnsubscribe,
		Channel:   &ChannelEvent{Keys: []string{"chat_7", "post-1"}},
	})
	require.NoError(t, logger.Close())

	r, err := NewFilteredReader(path, Filter{Key: "chat_7"})
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, CategorySubscribe, first.Category)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, CategoryUnsubscribe, second.Category)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFilterMatches(t *testing.T) {
	event := subscribeEvent("post-1")
	out := DirectionOut
	in := DirectionIn
	transport := LayerTransport
	sub := CategorySubscribe
	later := event.Timestamp.Add(time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"connection", Filter{ConnectionID: "conn-1"}, true},
		{"other connection", Filter{ConnectionID: "conn-2"}, false},
		{"direction", Filter{Direction: &out}, true},
		{"other direction", Filter{Direction: &in}, false},
		{"layer", Filter{Layer: &transport}, false},
		{"category", Filter{Category: &sub}, true},
		{"key", Filter{Key: "post-1"}, true},
		{"other key", Filter{Key: "post-2"}, false},
		{"starts later", Filter{TimeStart: &later}, false},
		{"ends later", Filter{TimeEnd: &later}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.clog"))
	assert.True(t, os.IsNotExist(err))
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(subscribeEvent("chat_42"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "protocol", entry["msg"])
	assert.Equal(t, "SUBSCRIBE", entry["category"])
	assert.Equal(t, "COORDINATOR", entry["layer"])
	assert.Equal(t, "conn-1", entry["conn_id"])
	assert.Equal(t, []any{"chat_42"}, entry["keys"])
}

func TestSlogAdapterError(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Layer:    LayerTransport,
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerTransport, Message: "write: broken pipe", Context: "send"},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "write: broken pipe", entry["error_msg"])
	_, hasConn := entry["conn_id"]
	assert.False(t, hasConn)
}

func TestMultiLogger(t *testing.T) {
	r1 := &recordingLogger{}
	r2 := &recordingLogger{}

	multi := NewMultiLogger(r1, nil, r2)
	multi.Log(subscribeEvent("post-1"))

	assert.Len(t, r1.events, 1)
	assert.Len(t, r2.events, 1)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))

	r := &recordingLogger{}
	assert.Same(t, r, OrNoop(r))
}
