package tui

import "testing"

func TestPageLayoutUpdate(t *testing.T) {
	cases := []struct {
		name           string
		width          int
		height         int
		fullscreen     bool
		viewportWidth  int
		viewportHeight int
	}{
		{name: "narrow", width: 80, height: 24, viewportWidth: 76, viewportHeight: 6},
		{name: "wide", width: 200, height: 50, viewportWidth: 196, viewportHeight: 25},
		{name: "fullscreen", width: 100, height: 30, fullscreen: true, viewportWidth: 96, viewportHeight: 28},
		{name: "tiny fullscreen", width: 30, height: 4, fullscreen: true, viewportWidth: 40, viewportHeight: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			layout := newPageLayout()
			layout.Update(tc.width, tc.height, tc.fullscreen)
			if layout.viewportWidth != tc.viewportWidth {
				t.Fatalf("viewport width mismatch: got %d want %d", layout.viewportWidth, tc.viewportWidth)
			}
			if layout.viewportHeight != tc.viewportHeight {
				t.Fatalf("viewport height mismatch: got %d want %d", layout.viewportHeight, tc.viewportHeight)
			}
		})
	}
}

func TestFindAndHighlightMatches(t *testing.T) {
	content := "Tides rise.\nTIDES fall."
	matches := findMatches(content, "tides")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if line := lineNumberAtOffset(content, matches[1].start); line != 1 {
		t.Fatalf("second match should be on line 1, got %d", line)
	}
	if findMatches(content, "") != nil {
		t.Fatal("empty query should not match")
	}
	if got := highlightMatches(content, nil, 0); got != content {
		t.Fatalf("no matches should leave content untouched")
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText("  a \n b  ", 10); got != "a b" {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
	if got := previewText("abcdefghij", 4); got != "abcd…" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
