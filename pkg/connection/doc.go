// Package connection manages the lifecycle of the live update link.
//
// This package handles:
//   - Connection state tracking
//   - Automatic reconnection on connection loss
//   - Exponential backoff with jitter between attempts
//   - Fan-out of connect and disconnect notifications to listeners
//
// # Reconnection Strategy
//
// When the link is lost the manager retries with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Reset to 1s on successful reconnection
//
// To prevent a thundering herd when a server restarts:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Listeners
//
// Listeners are invoked after the state has changed and outside the manager
// lock, so a connected listener observes IsConnected() == true.
package connection
