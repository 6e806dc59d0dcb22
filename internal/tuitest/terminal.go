package tuitest

import (
	"bytes"
	"io"
)

// termQuery pairs a terminal capability request with the canned reply a real
// emulator would send back.
type termQuery struct {
	seq   []byte
	reply []byte
}

// Lipgloss and Bubble Tea query cursor position and colours on startup; a PTY
// with nobody answering stalls those queries until their own timeout.
var termQueries = []termQuery{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

const (
	responderWindow = 256
	responderTail   = 64
)

type responder struct {
	w       io.Writer
	pending []byte
	answers int
}

func newResponder(w io.Writer) *responder {
	return &responder{w: w, pending: make([]byte, 0, responderWindow)}
}

// Feed scans chunk for queries, answering each one exactly once.
func (r *responder) Feed(chunk []byte) {
	r.pending = append(r.pending, chunk...)
	for r.answerNext() {
	}
	// A query may straddle two reads, so keep a short tail.
	if len(r.pending) > responderWindow {
		r.pending = append(r.pending[:0], r.pending[len(r.pending)-responderTail:]...)
	}
}

func (r *responder) answerNext() bool {
	first, which := -1, -1
	for i, q := range termQueries {
		idx := bytes.Index(r.pending, q.seq)
		if idx >= 0 && (first < 0 || idx < first) {
			first, which = idx, i
		}
	}
	if which < 0 {
		return false
	}
	q := termQueries[which]
	r.pending = r.pending[first+len(q.seq):]
	_, _ = r.w.Write(q.reply)
	r.answers++
	return true
}
