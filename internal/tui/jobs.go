package tui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type jobKind string

type jobStatus string

const (
	jobKindPrint   jobKind = "print"
	jobKindExport  jobKind = "export"
	jobKindOutline jobKind = "outline"
)

var jobKinds = []jobKind{jobKindPrint, jobKindExport, jobKindOutline}

const (
	jobStatusRunning   jobStatus = "running"
	jobStatusSucceeded jobStatus = "succeeded"
	jobStatusFailed    jobStatus = "failed"
)

type jobSnapshot struct {
	ID          string
	Kind        jobKind
	Status      jobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Duration    time.Duration
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

type jobBus struct {
	counter int64
	timeout time.Duration
}

func newJobBus(timeout time.Duration) *jobBus {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &jobBus{timeout: timeout}
}

func (b *jobBus) nextID(kind jobKind) string {
	idx := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("%s-%d", kind, idx)
}

// Start reports the job as running, then runs it off the update loop.
func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	id := b.nextID(kind)
	started := time.Now()
	startSnapshot := jobSnapshot{ID: id, Kind: kind, Status: jobStatusRunning, StartedAt: started}
	startCmd := func() tea.Msg {
		return jobSignalMsg{Snapshot: startSnapshot}
	}

	timeout := b.timeout
	runCmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		payload, err := runner(ctx)
		snapshot := finishJob(startSnapshot, err)
		log.Printf("[jobs] %s %s (duration=%s, err=%v)", kind, snapshot.Status, snapshot.Duration, err)
		return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
	}

	return tea.Sequence(startCmd, runCmd)
}

func finishJob(start jobSnapshot, err error) jobSnapshot {
	snapshot := start
	snapshot.CompletedAt = time.Now()
	if err != nil {
		snapshot.Status = jobStatusFailed
		snapshot.Err = err.Error()
	} else {
		snapshot.Status = jobStatusSucceeded
	}
	snapshot.Duration = snapshot.CompletedAt.Sub(start.StartedAt)
	return snapshot
}

func (m *model) jobsRunning() bool {
	for _, snap := range m.jobStates {
		if snap.Status == jobStatusRunning {
			return true
		}
	}
	return false
}

func (m *model) jobStatusBadges() []string {
	var badges []string
	for _, kind := range jobKinds {
		snap, ok := m.jobStates[kind]
		if !ok {
			continue
		}
		switch snap.Status {
		case jobStatusRunning:
			badges = append(badges, fmt.Sprintf("%s…", jobLabel(kind)))
		case jobStatusFailed:
			badges = append(badges, fmt.Sprintf("%s failed", jobLabel(kind)))
		case jobStatusSucceeded:
			badges = append(badges, fmt.Sprintf("%s ✓ %s", jobLabel(kind), snap.Duration.Round(time.Millisecond)))
		}
	}
	return badges
}

func jobLabel(kind jobKind) string {
	switch kind {
	case jobKindPrint:
		return "Print"
	case jobKindExport:
		return "Export"
	case jobKindOutline:
		return "Outline"
	default:
		return string(kind)
	}
}
