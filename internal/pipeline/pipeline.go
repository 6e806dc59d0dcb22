// Package pipeline runs one note-generation request at a time: it narrates
// progress while the backend works, applies the response when it lands and
// throws away anything a newer submission has superseded.
package pipeline

import (
	"context"
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/csheth/notegen/internal/notesapi"
	"github.com/csheth/notegen/internal/progress"
	"github.com/csheth/notegen/internal/references"
)

// Status is the lifecycle stage of the active submission.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusDone
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusDone:
		return "done"
	case StatusErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Terminal reports whether the status ends a submission.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusErrored
}

const noContentHTML = "<p>No content received.</p>"

var (
	leadingFence  = regexp.MustCompile("^```html\\n?")
	trailingFence = regexp.MustCompile("```$")
)

// Snapshot is the state published to observers after every change.
type Snapshot struct {
	Generation   uint64
	Query        string
	Status       Status
	Progress     string
	HTML         string
	References   []references.Reference
	ErrorMessage string
	RequestID    string
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Generator issues the outbound /generate call.
type Generator interface {
	Generate(ctx context.Context, query string) (*notesapi.Response, error)
}

// Config wires a Pipeline.
type Config struct {
	Client  Generator
	Script  progress.Script
	Clock   progress.Clock
	Metrics *Metrics
	// Observer receives every snapshot in order. It is called with the
	// pipeline lock held and must not call back into the pipeline or block.
	Observer func(Snapshot)
	Now      func() time.Time
}

// Pipeline orchestrates submissions. The zero value is not usable; call New.
type Pipeline struct {
	client   Generator
	script   progress.Script
	clock    progress.Clock
	metrics  *Metrics
	observer func(Snapshot)
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	state      Snapshot
	narrator   *progress.Narrator
	cancel     context.CancelFunc
	closed     bool
	inflight   sync.WaitGroup
}

// New builds an idle pipeline.
func New(cfg Config) *Pipeline {
	script := cfg.Script
	if len(script.Messages) == 0 {
		script = progress.DefaultScript
	}
	clock := cfg.Clock
	if clock == nil {
		clock = progress.RealClock{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		client:   cfg.Client,
		script:   script,
		clock:    clock,
		metrics:  cfg.Metrics,
		observer: cfg.Observer,
		now:      now,
		state:    Snapshot{Status: StatusIdle, References: []references.Reference{}},
	}
}

// Submit starts a new submission for query, superseding any in-flight one.
// Blank queries are ignored and false is returned.
func (p *Pipeline) Submit(query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}

	p.mu.Lock()
	if p.closed || p.client == nil {
		p.mu.Unlock()
		return false
	}
	p.generation++
	gen := p.generation
	prevNarrator, prevCancel := p.narrator, p.cancel
	ctx, cancel := context.WithCancel(context.Background())
	p.narrator = nil
	p.cancel = cancel
	p.state = Snapshot{
		Generation: gen,
		Query:      query,
		Status:     StatusLoading,
		References: []references.Reference{},
		StartedAt:  p.now(),
	}
	p.inflight.Add(1)
	p.metrics.submitted()
	p.publishLocked()
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevNarrator != nil {
		prevNarrator.Stop()
	}

	narrator := progress.New(p.clock)
	narrator.Start(p.script, func(msg string) { p.onProgress(gen, msg) })

	p.mu.Lock()
	if p.generation == gen && p.state.Status == StatusLoading {
		p.narrator = narrator
		narrator = nil
	}
	p.mu.Unlock()
	if narrator != nil {
		narrator.Stop()
	}

	log.Printf("[pipeline] submission %d started", gen)
	go p.run(ctx, gen, query)
	return true
}

func (p *Pipeline) run(ctx context.Context, gen uint64, query string) {
	defer p.inflight.Done()
	started := p.now()
	resp, err := p.client.Generate(ctx, query)
	p.resolve(gen, resp, err, p.now().Sub(started))
}

func (p *Pipeline) resolve(gen uint64, resp *notesapi.Response, err error, elapsed time.Duration) {
	var (
		body      string
		refs      []references.Reference
		requestID string
	)
	if err == nil && resp == nil {
		resp = &notesapi.Response{}
	}
	if err == nil {
		body = NormalizeHTML(resp.HTMLContent)
		refs = references.ExtractJSON(resp.Raw)
		requestID = resp.RequestID
	}

	p.mu.Lock()
	if p.closed || gen != p.generation || p.state.Status != StatusLoading {
		p.mu.Unlock()
		p.metrics.dropped()
		log.Printf("[pipeline] dropping stale resolution for submission %d", gen)
		return
	}
	narrator := p.narrator
	p.narrator = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state.CompletedAt = p.now()
	p.state.RequestID = requestID
	if err != nil {
		p.state.Status = StatusErrored
		p.state.ErrorMessage = err.Error()
		p.state.HTML = ErrorHTML(err.Error())
		p.state.References = []references.Reference{}
		log.Printf("[pipeline] submission %d failed after %s: %v", gen, elapsed, err)
	} else {
		p.state.Status = StatusDone
		p.state.ErrorMessage = ""
		p.state.HTML = body
		p.state.References = refs
		log.Printf("[pipeline] submission %d done after %s (references=%d)", gen, elapsed, len(refs))
	}
	p.metrics.settled(p.state.Status, elapsed)
	p.publishLocked()
	p.mu.Unlock()

	if narrator != nil {
		narrator.Stop()
	}
}

func (p *Pipeline) onProgress(gen uint64, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.generation || p.state.Status != StatusLoading {
		return
	}
	p.state.Progress = msg
	p.publishLocked()
}

func (p *Pipeline) publishLocked() {
	if p.observer == nil {
		return
	}
	p.observer(p.snapshotLocked())
}

func (p *Pipeline) snapshotLocked() Snapshot {
	snap := p.state
	snap.References = append([]references.Reference{}, p.state.References...)
	return snap
}

// Snapshot returns the current state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Close tears the pipeline down: the narrator stops, the in-flight request is
// cancelled and any late response is dropped without publishing.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.generation++
	narrator, cancel := p.narrator, p.cancel
	p.narrator, p.cancel = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if narrator != nil {
		narrator.Stop()
	}
	log.Printf("[pipeline] closed")
}

// Wait blocks until every issued request has returned.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// NormalizeHTML removes a markdown code fence wrapped around the document.
func NormalizeHTML(raw string) string {
	out := leadingFence.ReplaceAllString(raw, "")
	out = trailingFence.ReplaceAllString(strings.TrimRight(out, " \t\r\n"), "")
	out = strings.TrimSpace(out)
	if out == "" {
		return noContentHTML
	}
	return out
}

// ErrorHTML renders msg as an inline notice.
func ErrorHTML(msg string) string {
	return fmt.Sprintf(`<p style="color: red;">Error fetching data: %s</p>`, html.EscapeString(msg))
}
