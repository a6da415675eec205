// Package wire defines how channel subscription requests and transport
// frames are encoded.
//
// # Events
//
// Two named events carry channel requests from client to server:
//   - EventSubscribe: start pushing events for the listed channels
//   - EventUnsubscribe: stop pushing events for the listed channels
//
// Each carries an encoded list of channel descriptors produced by a
// ChannelCodec.
//
// # Channel Codecs
//
// ProtoCodec emits the protocol buffers wire format of
//
//	message ChannelsRequest { repeated Channel channels = 1; }
//	message Channel {
//	  oneof type {
//	    PostUpdates post_updates = 1;
//	    ChatRoomUpdates chat_room_updates = 2;
//	    CuratedListUpdates curated_list_updates = 3;
//	  }
//	}
//	message PostUpdates { string post_uuid = 1; }
//	message ChatRoomUpdates { int64 chat_room_id = 1; }
//	message CuratedListUpdates { CuratedListType type = 1; }
//
// CBORCodec carries the same structure as CBOR with integer keys.
//
// # Frames
//
// Over the websocket link every message is a Frame: an event name plus an
// opaque payload, CBOR encoded with integer keys.
package wire
