// Package channel defines the channel descriptors and resource keys used by
// the live update protocol.
//
// A Descriptor names one server-side event stream: updates for a post, for a
// chat room, or for a curated list. A Key identifies the same stream for
// reference counting. Keys are comparable tagged values, so the three kinds
// never collide in a map even when their string forms would.
//
// # Legacy String Form
//
// Earlier clients shared one string namespace for all kinds:
//
//	post updates        -> the post UUID itself
//	chat room updates   -> "chat_" + chat room ID
//	curated list        -> the serialized list type ("POPULAR", "VOTED")
//
// Key.String renders this form and ParseKey reverses it. It is kept for
// logs, the interactive client and capture files.
package channel
