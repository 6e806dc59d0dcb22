package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/notegen/internal/pipeline"
)

// Mailbox carries pipeline snapshots into the program loop. It holds at most
// one pending snapshot and a newer one replaces it, so Publish never blocks
// and is safe to use as a pipeline observer.
type Mailbox struct {
	ch   chan pipeline.Snapshot
	done chan struct{}
	once sync.Once
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		ch:   make(chan pipeline.Snapshot, 1),
		done: make(chan struct{}),
	}
}

// Publish stores s, dropping an unread older snapshot.
func (b *Mailbox) Publish(s pipeline.Snapshot) {
	for {
		select {
		case b.ch <- s:
			return
		default:
		}
		select {
		case <-b.ch:
		default:
		}
	}
}

// Close releases any goroutine waiting for the next snapshot.
func (b *Mailbox) Close() {
	b.once.Do(func() { close(b.done) })
}

type snapshotMsg struct {
	snapshot pipeline.Snapshot
}

func waitForSnapshot(box *Mailbox) tea.Cmd {
	if box == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case s := <-box.ch:
			return snapshotMsg{snapshot: s}
		case <-box.done:
			return nil
		}
	}
}
