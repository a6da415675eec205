package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// chatKeyPrefix prefixes chat room IDs in the legacy string form.
const chatKeyPrefix = "chat_"

// Key identifies a resource for reference counting.
// The zero Key is invalid. Keys are comparable and safe to use as map keys.
type Key struct {
	kind     Kind
	post     string
	chatRoom int64
	list     CuratedListType
}

// PostKey returns the key for a post.
func PostKey(postUUID string) Key {
	return PostUpdates(postUUID).Key()
}

// ChatRoomKey returns the key for a chat room.
func ChatRoomKey(chatRoomID int64) Key {
	return ChatRoomUpdates(chatRoomID).Key()
}

// CuratedListKey returns the key for a curated list.
func CuratedListKey(listType CuratedListType) Key {
	return CuratedListUpdates(listType).Key()
}

// Kind returns the kind of resource the key names.
func (k Key) Kind() Kind {
	return k.kind
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Descriptor reconstructs the channel descriptor the key was derived from.
func (k Key) Descriptor() (Descriptor, error) {
	var d Descriptor
	switch k.kind {
	case KindPostUpdates:
		d = PostUpdates(k.post)
	case KindChatRoomUpdates:
		d = ChatRoomUpdates(k.chatRoom)
	case KindCuratedListUpdates:
		d = CuratedListUpdates(k.list)
	default:
		return Descriptor{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidKey, k.kind)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return d, nil
}

// String returns the legacy string form of the key.
func (k Key) String() string {
	switch k.kind {
	case KindPostUpdates:
		return k.post
	case KindChatRoomUpdates:
		return chatKeyPrefix + strconv.FormatInt(k.chatRoom, 10)
	case KindCuratedListUpdates:
		return k.list.String()
	default:
		return ""
	}
}

// ParseKey parses the legacy string form of a key.
//
// A "chat_" prefix must be followed by a decimal chat room ID. A string equal
// to a list type name is a curated list. Any other non-empty string is taken
// as a post UUID.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if rest, ok := strings.CutPrefix(s, chatKeyPrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id < 0 {
			return Key{}, fmt.Errorf("%w: bad chat room id in %q", ErrInvalidKey, s)
		}
		return ChatRoomKey(id), nil
	}
	if t, err := ParseCuratedListType(s); err == nil {
		return CuratedListKey(t), nil
	}
	return PostKey(s), nil
}

// MustParseKey is like ParseKey but panics on error.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}
