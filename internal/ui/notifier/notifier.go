// Package notifier provides a per-user broadcast mechanism for SSE updates.
package notifier

import "sync"

// Notifier pings the listeners of one user when that user's session changes.
// Listeners receive an empty struct and should re-read session state.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[string]map[chan struct{}]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives pings for userID.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe(userID string) chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	set, ok := n.listeners[userID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.listeners[userID] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(userID string, ch chan struct{}) {
	n.mu.Lock()
	if set, ok := n.listeners[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(n.listeners, userID)
		}
	}
	n.mu.Unlock()
	close(ch)
}

// Broadcast pings every listener of userID.
// Non-blocking: if a listener's channel is full, the ping is skipped.
func (n *Notifier) Broadcast(userID string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners[userID] {
		select {
		case ch <- struct{}{}:
		default:
			// Channel full, listener will catch up on the pending ping
		}
	}
}

// Listeners returns the number of listeners for userID.
func (n *Notifier) Listeners(userID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[userID])
}
