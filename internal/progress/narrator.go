package progress

import (
	"sync"
	"time"
)

// Script is an ordered set of status lines spread evenly over Duration.
type Script struct {
	Messages []string
	Duration time.Duration
}

// DefaultScript mirrors the backend's typical two minute generation run.
var DefaultScript = Script{
	Messages: []string{
		"Initiating request...",
		"Gathering information using DuckDuckGo...",
		"Searching for relevant visual aids on Google Images...",
		"Analyzing search results...",
		"Crawling relevant webpages for deeper insights...",
		"Synthesizing information from multiple sources...",
		"Structuring notes and key concepts...",
		"Identifying key definitions...",
		"Adding examples and applications...",
		"Formatting visual aid descriptions...",
		"Finalizing the notes structure...",
		"Almost there, compiling the final response...",
	},
	Duration: 2 * time.Minute,
}

// WithDuration returns a copy of the script spread over d.
func (s Script) WithDuration(d time.Duration) Script {
	return Script{Messages: append([]string(nil), s.Messages...), Duration: d}
}

// Cadence reports the delay between two consecutive messages.
func (s Script) Cadence() time.Duration {
	if len(s.Messages) == 0 || s.Duration <= 0 {
		return 0
	}
	return s.Duration / time.Duration(len(s.Messages))
}

// Ticker is the subset of time.Ticker the narrator depends on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests swap in a manual implementation.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Narrator walks a Script on a fixed cadence regardless of what the real
// operation is doing. It runs at most once.
//
// onMessage is invoked with the narrator's lock held, so it must not call
// Stop on the same narrator.
type Narrator struct {
	clock Clock

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

// New returns a narrator using clock, or RealClock when clock is nil.
func New(clock Clock) *Narrator {
	if clock == nil {
		clock = RealClock{}
	}
	return &Narrator{clock: clock}
}

// Start emits the first message immediately and the rest on each tick,
// holding on the final message once the script is exhausted.
func (n *Narrator) Start(script Script, onMessage func(string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.stopped || onMessage == nil {
		return
	}
	n.started = true
	messages := append([]string(nil), script.Messages...)
	if len(messages) == 0 {
		return
	}
	onMessage(messages[0])

	cadence := script.Cadence()
	if len(messages) == 1 || cadence <= 0 {
		return
	}
	n.quit = make(chan struct{})
	n.done = make(chan struct{})
	go n.run(n.clock.NewTicker(cadence), n.quit, n.done, messages, onMessage)
}

func (n *Narrator) run(ticker Ticker, quit <-chan struct{}, done chan<- struct{}, messages []string, onMessage func(string)) {
	defer close(done)
	defer ticker.Stop()
	next := 1
	for {
		select {
		case <-quit:
			return
		case <-ticker.C():
			if !n.emit(messages[next], onMessage) {
				return
			}
			next++
			if next >= len(messages) {
				return
			}
		}
	}
}

func (n *Narrator) emit(message string, onMessage func(string)) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	onMessage(message)
	return true
}

// Stop halts future emissions and returns once the ticker is released. It is
// idempotent and safe before Start.
func (n *Narrator) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	if n.quit != nil {
		close(n.quit)
	}
	done := n.done
	n.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Stopped reports whether Stop has been called.
func (n *Narrator) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}
