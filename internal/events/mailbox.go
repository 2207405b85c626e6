package events

import "sync"

// mailbox is an unbounded FIFO drained by a single goroutine. Push never
// blocks; messages queued after stop are discarded.
type mailbox struct {
	mu      sync.Mutex
	queue   []Message
	notify  chan struct{}
	stopped bool
	done    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends msg and reports whether it was accepted.
func (m *mailbox) push(msg Message) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// stop discards anything still queued and returns the number dropped.
func (m *mailbox) stop() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return 0
	}
	m.stopped = true
	dropped := len(m.queue)
	m.queue = nil
	close(m.done)
	return dropped
}

// run delivers queued messages in order until stop is called.
func (m *mailbox) run(deliver func(Message)) {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.notify:
			case <-m.done:
				return
			}
			continue
		}
		msg := m.queue[0]
		m.queue[0] = Message{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		deliver(msg)
	}
}
