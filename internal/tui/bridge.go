package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/contentmesh/internal/events"
)

// Watch taps every message on the bus and forwards it to the returned
// channel. The forwarding handler runs on its own subscription, so a slow UI
// only delays its own mailbox. Call stop once the UI has exited.
func Watch(bus *events.Bus) (msgs <-chan events.Message, stop func()) {
	ch := make(chan events.Message, 256)
	done := make(chan struct{})
	sub := bus.SubscribeAll("tui", func(msg events.Message) {
		select {
		case ch <- msg:
		case <-done:
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(done)
			sub.Unsubscribe()
		})
	}
}

// waitForEvent returns a command that waits for the next bus message.
func waitForEvent(sub <-chan events.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return nil
		}
		return msg
	}
}
