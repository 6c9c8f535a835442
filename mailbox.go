package rtmp

import "sync"

// event is run by the connection's goroutine.
type event func(c *Conn)

// mailbox is an unbounded queue of events. Posting never blocks and is allowed from any goroutine, including the
// connection's own.
type mailbox struct {
	mu     sync.Mutex
	events []event
	// Signaled after every post, holds at most one pending notification
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(e event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
		// A notification is already pending
	}
}

// drain returns the queued events in the order they were posted and empties the mailbox.
func (m *mailbox) drain() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}
