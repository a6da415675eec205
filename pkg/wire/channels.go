package wire

import (
	"fmt"

	"github.com/verdict-app/livechannels/pkg/channel"
)

// ChannelCodec builds and parses the payload of subscribe and unsubscribe
// events: a list of channel descriptors.
type ChannelCodec interface {
	// Name identifies the codec in configuration.
	Name() string

	// EncodeChannels encodes descriptors in order.
	EncodeChannels(channels []channel.Descriptor) ([]byte, error)

	// DecodeChannels decodes a payload produced by EncodeChannels.
	DecodeChannels(data []byte) ([]channel.Descriptor, error)
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (ChannelCodec, error) {
	switch name {
	case "", ProtoCodecName:
		return ProtoCodec{}, nil
	case CBORCodecName:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// CBORCodecName is the configuration name of CBORCodec.
const CBORCodecName = "cbor"

// CBORCodec encodes channel requests as CBOR.
//
// CBOR encoding:
//
//	{
//	  1: [                       // channels
//	    {1: {1: postUuid}}       // post updates
//	    {2: {1: chatRoomId}}     // chat room updates
//	    {3: {1: listType}}       // curated list updates
//	  ]
//	}
type CBORCodec struct{}

type cborRequest struct {
	Channels []cborChannel `cbor:"1,keyasint"`
}

type cborChannel struct {
	PostUpdates        *cborPostUpdates        `cbor:"1,keyasint,omitempty"`
	ChatRoomUpdates    *cborChatRoomUpdates    `cbor:"2,keyasint,omitempty"`
	CuratedListUpdates *cborCuratedListUpdates `cbor:"3,keyasint,omitempty"`
}

type cborPostUpdates struct {
	PostUUID string `cbor:"1,keyasint"`
}

type cborChatRoomUpdates struct {
	ChatRoomID int64 `cbor:"1,keyasint"`
}

type cborCuratedListUpdates struct {
	Type int32 `cbor:"1,keyasint"`
}

// Name implements ChannelCodec.
func (CBORCodec) Name() string { return CBORCodecName }

// EncodeChannels implements ChannelCodec.
func (CBORCodec) EncodeChannels(channels []channel.Descriptor) ([]byte, error) {
	req := cborRequest{Channels: make([]cborChannel, 0, len(channels))}
	for _, d := range channels {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		var c cborChannel
		switch d.Kind {
		case channel.KindPostUpdates:
			c.PostUpdates = &cborPostUpdates{PostUUID: d.PostUUID}
		case channel.KindChatRoomUpdates:
			c.ChatRoomUpdates = &cborChatRoomUpdates{ChatRoomID: d.ChatRoomID}
		case channel.KindCuratedListUpdates:
			c.CuratedListUpdates = &cborCuratedListUpdates{Type: int32(d.ListType)}
		}
		req.Channels = append(req.Channels, c)
	}
	return Marshal(req)
}

// DecodeChannels implements ChannelCodec.
func (CBORCodec) DecodeChannels(data []byte) ([]channel.Descriptor, error) {
	var req cborRequest
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}

	out := make([]channel.Descriptor, 0, len(req.Channels))
	for i, c := range req.Channels {
		var d channel.Descriptor
		switch {
		case c.PostUpdates != nil:
			d = channel.PostUpdates(c.PostUpdates.PostUUID)
		case c.ChatRoomUpdates != nil:
			d = channel.ChatRoomUpdates(c.ChatRoomUpdates.ChatRoomID)
		case c.CuratedListUpdates != nil:
			d = channel.CuratedListUpdates(channel.CuratedListType(c.CuratedListUpdates.Type))
		default:
			return nil, fmt.Errorf("%w: channel %d has no variant", ErrMalformed, i)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Compile-time interface satisfaction checks.
var (
	_ ChannelCodec = CBORCodec{}
	_ ChannelCodec = ProtoCodec{}
)
