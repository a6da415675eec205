package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/verdict-app/livechannels/pkg/channel"
)

// ProtoCodecName is the configuration name of ProtoCodec.
const ProtoCodecName = "proto"

// Field numbers of the ChannelsRequest schema.
const (
	fieldRequestChannels protowire.Number = 1

	fieldChannelPostUpdates        protowire.Number = 1
	fieldChannelChatRoomUpdates    protowire.Number = 2
	fieldChannelCuratedListUpdates protowire.Number = 3

	// Every variant message carries its value in field 1.
	fieldVariantValue protowire.Number = 1
)

// ProtoCodec encodes channel requests in the protocol buffers wire format.
// It is the format the production server expects.
type ProtoCodec struct{}

// Name implements ChannelCodec.
func (ProtoCodec) Name() string { return ProtoCodecName }

// EncodeChannels implements ChannelCodec.
func (ProtoCodec) EncodeChannels(channels []channel.Descriptor) ([]byte, error) {
	var out []byte
	for _, d := range channels {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		out = protowire.AppendTag(out, fieldRequestChannels, protowire.BytesType)
		out = protowire.AppendBytes(out, appendChannel(nil, d))
	}
	return out, nil
}

func appendChannel(b []byte, d channel.Descriptor) []byte {
	var (
		field protowire.Number
		inner []byte
	)
	switch d.Kind {
	case channel.KindPostUpdates:
		field = fieldChannelPostUpdates
		inner = protowire.AppendTag(inner, fieldVariantValue, protowire.BytesType)
		inner = protowire.AppendString(inner, d.PostUUID)
	case channel.KindChatRoomUpdates:
		field = fieldChannelChatRoomUpdates
		inner = protowire.AppendTag(inner, fieldVariantValue, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(d.ChatRoomID))
	case channel.KindCuratedListUpdates:
		field = fieldChannelCuratedListUpdates
		inner = protowire.AppendTag(inner, fieldVariantValue, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(int64(d.ListType)))
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// DecodeChannels implements ChannelCodec. Unknown fields are skipped.
func (ProtoCodec) DecodeChannels(data []byte) ([]channel.Descriptor, error) {
	var out []channel.Descriptor
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode channels: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num == fieldRequestChannels && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode channels: %w", protowire.ParseError(n))
			}
			data = data[n:]

			d, err := decodeChannel(msg)
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", len(out), err)
			}
			out = append(out, d)
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode channels: %w", protowire.ParseError(n))
		}
		data = data[n:]
	}
	return out, nil
}

func decodeChannel(data []byte) (channel.Descriptor, error) {
	var (
		d     channel.Descriptor
		found bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.BytesType || num < fieldChannelPostUpdates || num > fieldChannelCuratedListUpdates {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		data = data[n:]

		// Last variant wins, as for a proto oneof.
		v, err := decodeVariant(num, msg)
		if err != nil {
			return d, err
		}
		d, found = v, true
	}
	if !found {
		return d, fmt.Errorf("%w: channel has no variant", ErrMalformed)
	}
	return d, d.Validate()
}

func decodeVariant(field protowire.Number, data []byte) (channel.Descriptor, error) {
	var (
		str    string
		varint uint64
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return channel.Descriptor{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldVariantValue && typ == protowire.BytesType && field == fieldChannelPostUpdates:
			str, n = protowire.ConsumeString(data)
		case num == fieldVariantValue && typ == protowire.VarintType && field != fieldChannelPostUpdates:
			varint, n = protowire.ConsumeVarint(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return channel.Descriptor{}, protowire.ParseError(n)
		}
		data = data[n:]
	}

	switch field {
	case fieldChannelPostUpdates:
		return channel.PostUpdates(str), nil
	case fieldChannelChatRoomUpdates:
		return channel.ChatRoomUpdates(int64(varint)), nil
	default:
		return channel.CuratedListUpdates(channel.CuratedListType(int32(varint))), nil
	}
}
