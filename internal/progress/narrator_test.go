package progress

import (
	"testing"
	"time"
)

func collect(t *testing.T) (chan string, func(string)) {
	t.Helper()
	out := make(chan string, 64)
	return out, func(msg string) { out <- msg }
}

func next(t *testing.T, out <-chan string) string {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for narrator message")
		return ""
	}
}

func assertQuiet(t *testing.T, out <-chan string) {
	t.Helper()
	select {
	case msg := <-out:
		t.Fatalf("unexpected emission %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScriptCadence(t *testing.T) {
	if got := DefaultScript.Cadence(); got != 10*time.Second {
		t.Fatalf("default cadence: got %s want 10s", got)
	}
	if got := (Script{}).Cadence(); got != 0 {
		t.Fatalf("empty script cadence: got %s", got)
	}
	short := DefaultScript.WithDuration(12 * time.Millisecond)
	if got := short.Cadence(); got != time.Millisecond {
		t.Fatalf("short cadence: got %s", got)
	}
	if len(DefaultScript.Messages) != 12 {
		t.Fatalf("default script should carry 12 messages, got %d", len(DefaultScript.Messages))
	}
}

func TestNarratorEmitsFirstMessageImmediately(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	n := New(clock)
	out, sink := collect(t)

	n.Start(Script{Messages: []string{"a", "b", "c"}, Duration: 3 * time.Second}, sink)
	defer n.Stop()

	select {
	case msg := <-out:
		if msg != "a" {
			t.Fatalf("first message: got %q", msg)
		}
	default:
		t.Fatal("first message should be delivered synchronously by Start")
	}
	if clock.Tickers() != 1 {
		t.Fatalf("expected one ticker, got %d", clock.Tickers())
	}
}

func TestNarratorWalksScriptInOrderAndHolds(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	n := New(clock)
	out, sink := collect(t)
	script := Script{Messages: []string{"a", "b", "c"}, Duration: 3 * time.Second}

	n.Start(script, sink)
	want := []string{"a", "b", "c"}
	got := []string{next(t, out)}
	for i := 0; i < 2; i++ {
		if !clock.Tick() {
			t.Fatalf("tick %d was not delivered", i)
		}
		got = append(got, next(t, out))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: got %q want %q", i, got[i], want[i])
		}
	}

	if clock.Tick() {
		t.Fatal("ticker should stop once the script is exhausted")
	}
	assertQuiet(t, out)
	n.Stop()
}

func TestNarratorStopHaltsEmissions(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	n := New(clock)
	out, sink := collect(t)

	n.Start(Script{Messages: []string{"a", "b", "c", "d"}, Duration: 4 * time.Second}, sink)
	next(t, out)
	clock.Tick()
	if msg := next(t, out); msg != "b" {
		t.Fatalf("second message: got %q", msg)
	}

	n.Stop()
	n.Stop()
	if !n.Stopped() {
		t.Fatal("narrator should report stopped")
	}
	if clock.Tick() {
		t.Fatal("ticker should be released once Stop returns")
	}
	assertQuiet(t, out)
}

func TestNarratorStopBeforeStartIsNoop(t *testing.T) {
	n := New(NewManualClock(time.Unix(0, 0)))
	n.Stop()
	out, sink := collect(t)
	n.Start(DefaultScript, sink)
	assertQuiet(t, out)
}

func TestNarratorRunsOnce(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	n := New(clock)
	out, sink := collect(t)
	script := Script{Messages: []string{"a", "b"}, Duration: time.Second}

	n.Start(script, sink)
	n.Start(script, sink)
	defer n.Stop()

	if msg := next(t, out); msg != "a" {
		t.Fatalf("unexpected first message %q", msg)
	}
	assertQuiet(t, out)
	if clock.Tickers() != 1 {
		t.Fatalf("second Start must not create a ticker, got %d", clock.Tickers())
	}
}

func TestNarratorSingleMessageHolds(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	n := New(clock)
	out, sink := collect(t)

	n.Start(Script{Messages: []string{"only"}, Duration: time.Minute}, sink)
	defer n.Stop()
	if msg := next(t, out); msg != "only" {
		t.Fatalf("got %q", msg)
	}
	if clock.Tickers() != 0 {
		t.Fatal("single message scripts should not tick")
	}
}

func TestNarratorRealClock(t *testing.T) {
	n := New(nil)
	out, sink := collect(t)
	n.Start(Script{Messages: []string{"a", "b"}, Duration: 20 * time.Millisecond}, sink)
	defer n.Stop()
	if msg := next(t, out); msg != "a" {
		t.Fatalf("got %q", msg)
	}
	if msg := next(t, out); msg != "b" {
		t.Fatalf("got %q", msg)
	}
	assertQuiet(t, out)
}
