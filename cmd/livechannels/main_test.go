package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdict-app/livechannels/pkg/channel"
)

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: ws://a.example/live\ncodec: cbor\n"), 0o644))

	file, err := loadConfig(Config{
		ConfigFile: path,
		URL:        "wss://b.example/live",
		LogLevel:   "debug",
		Headers:    []string{"Authorization: Bearer x"},
	})
	require.NoError(t, err)

	assert.Equal(t, "wss://b.example/live", file.Server.URL)
	assert.Equal(t, "cbor", file.Codec)
	assert.Equal(t, "debug", file.LogLevel)
	assert.Equal(t, "Bearer x", file.Server.Header["Authorization"])
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	_, err := loadConfig(Config{Codec: "json"})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	keys, err := parseKeys([]string{"chat_42", "POPULAR", "post-1"})
	require.NoError(t, err)
	require.Len(t, keys, 3)

	assert.Equal(t, channel.ChatRoomUpdates(42), keys[0].descriptor)
	assert.Equal(t, channel.CuratedListUpdates(channel.CuratedListPopular), keys[1].descriptor)
	assert.Equal(t, channel.PostKey("post-1"), keys[2].key)

	_, err = parseKeys([]string{"chat_x"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}

func TestSwitchWriter(t *testing.T) {
	var first, second bytes.Buffer
	w := &switchWriter{w: &first}

	_, _ = w.Write([]byte("one"))
	w.set(&second)
	_, _ = w.Write([]byte("two"))

	assert.Equal(t, "one", first.String())
	assert.Equal(t, "two", second.String())
}
