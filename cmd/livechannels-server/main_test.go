package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/transport"
	"github.com/verdict-app/livechannels/pkg/wire"
)

func TestPublishHandler(t *testing.T) {
	hub := transport.NewServer(transport.ServerConfig{})
	handler := publishHandler(hub)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"get", http.MethodGet, "/publish?key=chat_1&event=x", http.StatusMethodNotAllowed},
		{"bad key", http.MethodPost, "/publish?key=chat_x&event=x", http.StatusBadRequest},
		{"missing event", http.MethodPost, "/publish?key=chat_1", http.StatusBadRequest},
		{"no subscribers", http.MethodPost, "/publish?key=chat_1&event=x", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tt.method, tt.target, strings.NewReader("body")))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestChannelTracker(t *testing.T) {
	tracker := newChannelTracker()

	tracker.apply(wire.EventSubscribe, []channel.Descriptor{channel.ChatRoomUpdates(1)})
	tracker.apply(wire.EventUnsubscribe, []channel.Descriptor{channel.ChatRoomUpdates(2)})

	assert.Equal(t, []channel.Key{channel.ChatRoomKey(1)}, tracker.keys())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, []string{"chat_3", "VOTED"}, describe([]channel.Descriptor{
		channel.ChatRoomUpdates(3),
		channel.CuratedListUpdates(channel.CuratedListVoted),
	}))
}
