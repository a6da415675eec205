package main

import (
	"sync"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// channelTracker remembers which channels have had a subscriber since
// startup, so the tick loop knows where to publish.
type channelTracker struct {
	mu   sync.Mutex
	seen map[channel.Key]struct{}
}

func newChannelTracker() *channelTracker {
	return &channelTracker{seen: make(map[channel.Key]struct{})}
}

func (t *channelTracker) apply(event string, channels []channel.Descriptor) {
	if event != wire.EventSubscribe {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range channels {
		t.seen[d.Key()] = struct{}{}
	}
}

func (t *channelTracker) keys() []channel.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]channel.Key, 0, len(t.seen))
	for k := range t.seen {
		out = append(out, k)
	}
	return out
}
