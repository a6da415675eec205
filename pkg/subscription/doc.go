// Package subscription shares live update channels between local consumers.
//
// Many parts of an application may want updates about the same post, chat
// room or curated list at overlapping times. The Coordinator keeps one
// interest count per channel key and talks to the server only on the
// transitions that matter:
//
//   - 0 -> 1: send one subscribe request for the channel
//   - 1 -> 0: send one unsubscribe request for the channel
//
// Interests registered while the link is down are queued in arrival order
// and replayed once, the next time the link connects.
//
// # Failure Handling
//
// AddInterest and RemoveInterest never return errors. A failed send is
// logged and the count keeps saying "subscribed"; the request is not
// retried. A key that does not match its descriptor is logged and skipped.
//
// # Concurrency
//
// A single mutex covers the counts and the pending queue. Requests are
// handed to the transport while it is held, so the order of subscribe and
// unsubscribe requests for a key on the wire matches the order of its
// transitions.
package subscription
