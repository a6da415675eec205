package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Channel errors.
var (
	ErrInvalidDescriptor = errors.New("invalid channel descriptor")
	ErrInvalidKey        = errors.New("invalid resource key")
	ErrUnknownListType   = errors.New("unknown curated list type")
)

// Kind identifies which variant of a Descriptor is populated.
type Kind uint8

const (
	// KindUnknown is the zero value and never valid.
	KindUnknown Kind = iota

	// KindPostUpdates streams updates for a single post.
	KindPostUpdates

	// KindChatRoomUpdates streams updates for a chat room.
	KindChatRoomUpdates

	// KindCuratedListUpdates streams updates for a curated list.
	KindCuratedListUpdates
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPostUpdates:
		return "POST_UPDATES"
	case KindChatRoomUpdates:
		return "CHAT_ROOM_UPDATES"
	case KindCuratedListUpdates:
		return "CURATED_LIST_UPDATES"
	default:
		return "UNKNOWN"
	}
}

// CuratedListType enumerates the curated lists a client can follow.
// Values match the protocol enum numbers.
type CuratedListType int32

const (
	// CuratedListUnspecified is the zero value and never valid.
	CuratedListUnspecified CuratedListType = 0

	// CuratedListPopular is the popular-posts list.
	CuratedListPopular CuratedListType = 1

	// CuratedListVoted is the list of posts the user voted on.
	CuratedListVoted CuratedListType = 2
)

// String returns the serialized list type name.
func (t CuratedListType) String() string {
	switch t {
	case CuratedListPopular:
		return "POPULAR"
	case CuratedListVoted:
		return "VOTED"
	default:
		return "UNSPECIFIED"
	}
}

// IsValid reports whether t is a known list type.
func (t CuratedListType) IsValid() bool {
	return t == CuratedListPopular || t == CuratedListVoted
}

// ParseCuratedListType parses a serialized list type name.
// Matching is exact, as the name doubles as a resource key.
func ParseCuratedListType(s string) (CuratedListType, error) {
	switch s {
	case "POPULAR":
		return CuratedListPopular, nil
	case "VOTED":
		return CuratedListVoted, nil
	default:
		return CuratedListUnspecified, fmt.Errorf("%w: %q", ErrUnknownListType, s)
	}
}

// Descriptor describes one server-side event stream.
// Exactly the field selected by Kind is meaningful.
type Descriptor struct {
	Kind Kind

	// PostUUID is set for KindPostUpdates.
	PostUUID string

	// ChatRoomID is set for KindChatRoomUpdates.
	ChatRoomID int64

	// ListType is set for KindCuratedListUpdates.
	ListType CuratedListType
}

// PostUpdates returns a descriptor for updates about a post.
func PostUpdates(postUUID string) Descriptor {
	return Descriptor{Kind: KindPostUpdates, PostUUID: postUUID}
}

// ChatRoomUpdates returns a descriptor for updates about a chat room.
func ChatRoomUpdates(chatRoomID int64) Descriptor {
	return Descriptor{Kind: KindChatRoomUpdates, ChatRoomID: chatRoomID}
}

// CuratedListUpdates returns a descriptor for updates about a curated list.
func CuratedListUpdates(listType CuratedListType) Descriptor {
	return Descriptor{Kind: KindCuratedListUpdates, ListType: listType}
}

// Validate checks that the selected variant carries a usable value.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindPostUpdates:
		if d.PostUUID == "" {
			return fmt.Errorf("%w: empty post uuid", ErrInvalidDescriptor)
		}
		if strings.HasPrefix(d.PostUUID, chatKeyPrefix) {
			return fmt.Errorf("%w: post uuid %q uses the chat key prefix", ErrInvalidDescriptor, d.PostUUID)
		}
		if _, err := ParseCuratedListType(d.PostUUID); err == nil {
			return fmt.Errorf("%w: post uuid %q is a list type name", ErrInvalidDescriptor, d.PostUUID)
		}
	case KindChatRoomUpdates:
		if d.ChatRoomID < 0 {
			return fmt.Errorf("%w: negative chat room id %d", ErrInvalidDescriptor, d.ChatRoomID)
		}
	case KindCuratedListUpdates:
		if !d.ListType.IsValid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidDescriptor, ErrUnknownListType, d.ListType)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidDescriptor, d.Kind)
	}
	return nil
}

// Key returns the resource key for this descriptor.
func (d Descriptor) Key() Key {
	switch d.Kind {
	case KindPostUpdates:
		return Key{kind: KindPostUpdates, post: d.PostUUID}
	case KindChatRoomUpdates:
		return Key{kind: KindChatRoomUpdates, chatRoom: d.ChatRoomID}
	case KindCuratedListUpdates:
		return Key{kind: KindCuratedListUpdates, list: d.ListType}
	default:
		return Key{}
	}
}

// String returns a human-readable form such as "chat_room_updates(42)".
func (d Descriptor) String() string {
	switch d.Kind {
	case KindPostUpdates:
		return "post_updates(" + d.PostUUID + ")"
	case KindChatRoomUpdates:
		return fmt.Sprintf("chat_room_updates(%d)", d.ChatRoomID)
	case KindCuratedListUpdates:
		return "curated_list_updates(" + d.ListType.String() + ")"
	default:
		return "unknown"
	}
}
