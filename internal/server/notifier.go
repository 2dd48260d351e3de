package server

import "sync"

// notifier fans out analysis reload generations to event stream clients.
// A slow client only ever sees the latest generation.
type notifier struct {
	mu        sync.RWMutex
	listeners map[chan uint64]struct{}
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[chan uint64]struct{})}
}

// subscribe registers a listener. Callers must unsubscribe when done.
func (n *notifier) subscribe() chan uint64 {
	ch := make(chan uint64, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan uint64) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// broadcast publishes gen without blocking. A pending older generation is
// replaced.
func (n *notifier) broadcast(gen uint64) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- gen:
		default:
		}
	}
}

func (n *notifier) count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
