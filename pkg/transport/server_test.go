package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/wire"
)

func TestServerDropsMalformedRequest(t *testing.T) {
	srv, url := startHub(t, ServerConfig{})
	client := newTestClient(t, url)
	require.NoError(t, client.Start(context.Background()))

	require.NoError(t, client.Send(wire.EventSubscribe, []byte{0xff}))
	require.NoError(t, client.Send("chat:typing", []byte("ignored")))

	payload, err := wire.ProtoCodec{}.EncodeChannels([]channel.Descriptor{channel.ChatRoomUpdates(8)})
	require.NoError(t, err)
	require.NoError(t, client.Send(wire.EventSubscribe, payload))

	key := channel.ChatRoomKey(8)
	require.Eventually(t, func() bool { return srv.Subscribers(key) == 1 }, waitFor, tick)
	assert.Equal(t, 1, srv.ConnectionCount())
	assert.True(t, client.IsConnected())
}

func TestServerForgetsClosedConnection(t *testing.T) {
	srv, url := startHub(t, ServerConfig{})
	key := channel.CuratedListKey(channel.CuratedListPopular)
	payload, err := wire.ProtoCodec{}.EncodeChannels([]channel.Descriptor{channel.CuratedListUpdates(channel.CuratedListPopular)})
	require.NoError(t, err)

	a := newTestClient(t, url)
	b := newTestClient(t, url)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, a.Send(wire.EventSubscribe, payload))
	require.NoError(t, b.Send(wire.EventSubscribe, payload))

	require.Eventually(t, func() bool { return srv.Subscribers(key) == 2 }, waitFor, tick)

	a.Close()

	require.Eventually(t, func() bool {
		return srv.Subscribers(key) == 1 && srv.ConnectionCount() == 1
	}, waitFor, tick)
}

func TestServerCBORCodec(t *testing.T) {
	srv, url := startHub(t, ServerConfig{Codec: wire.CBORCodec{}})
	client := newTestClient(t, url)
	require.NoError(t, client.Start(context.Background()))

	payload, err := wire.CBORCodec{}.EncodeChannels([]channel.Descriptor{channel.PostUpdates("p-1")})
	require.NoError(t, err)
	require.NoError(t, client.Send(wire.EventSubscribe, payload))

	require.Eventually(t, func() bool { return srv.Subscribers(channel.PostKey("p-1")) == 1 }, waitFor, tick)
}

func TestClosedServerRejectsUpgrade(t *testing.T) {
	srv := NewServer(ServerConfig{})
	srv.Close()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpgradeRequired(t *testing.T) {
	srv := NewServer(ServerConfig{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, srv.ConnectionCount())
}

func TestServerNegotiatesSubprotocol(t *testing.T) {
	_, url := startHub(t, ServerConfig{})

	dialer := websocket.Dialer{Subprotocols: []string{"livechannels.v9", "livechannels.v1"}}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	assert.Equal(t, "livechannels.v1", conn.Subprotocol())

	// Peers that offer nothing are served as version 1.
	plain, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer plain.Close()
	assert.Empty(t, plain.Subprotocol())
}
