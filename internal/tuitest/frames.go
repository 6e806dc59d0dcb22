package tuitest

import (
	"regexp"
	"strings"
)

// Frame is one full-screen redraw with escape sequences removed from Plain.
type Frame struct {
	Index int
	ANSI  string
	Plain string
}

var (
	clearScreen = regexp.MustCompile(`\x1b\[[0-9;]*J`)
	csiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	oscSequence = regexp.MustCompile(`\x1b\][^\x07]*(\x07|\x1b\\)`)
)

func parseFrames(raw []byte) []Frame {
	text := strings.ReplaceAll(string(raw), "\r", "")
	var frames []Frame
	for _, part := range clearScreen.Split(text, -1) {
		part = strings.TrimPrefix(strings.Trim(part, "\x00"), "\x1b[H")
		plain := stripANSI(part)
		if strings.TrimSpace(plain) == "" {
			continue
		}
		frames = append(frames, Frame{Index: len(frames), ANSI: part, Plain: trimLines(plain)})
	}
	if len(frames) == 0 && text != "" {
		frames = append(frames, Frame{ANSI: text, Plain: trimLines(stripANSI(text))})
	}
	return frames
}

// FinalFrame returns the last frame, or false when nothing was drawn.
func (r *Recording) FinalFrame() (Frame, bool) {
	if r == nil || len(r.Frames) == 0 {
		return Frame{}, false
	}
	return r.Frames[len(r.Frames)-1], true
}

// Text returns everything the program printed with escapes removed.
func (r *Recording) Text() string {
	if r == nil {
		return ""
	}
	return flatten(r.Raw)
}

// Contains reports whether text appeared anywhere in the session.
func (r *Recording) Contains(text string) bool {
	return strings.Contains(r.Text(), text)
}

// FirstFrameWith returns the earliest frame whose plain text contains text.
func (r *Recording) FirstFrameWith(text string) (Frame, bool) {
	if r == nil {
		return Frame{}, false
	}
	for _, f := range r.Frames {
		if strings.Contains(f.Plain, text) {
			return f, true
		}
	}
	return Frame{}, false
}

func flatten(raw []byte) string {
	return stripANSI(strings.ReplaceAll(string(raw), "\r", ""))
}

func stripANSI(s string) string {
	s = oscSequence.ReplaceAllString(s, "")
	s = csiSequence.ReplaceAllString(s, "")
	return strings.NewReplacer("\x0e", "", "\x0f", "").Replace(s)
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
