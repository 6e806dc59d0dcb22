package tui

import "time"

type stage int

const (
	stageInput stage = iota
	stageLoading
	stageDisplay
	stageSearch
	stagePalette
)

const (
	anchorNotes      = "notes"
	anchorReferences = "references"
)

var sectionSequence = []string{
	anchorNotes,
	anchorReferences,
}

const heroTagline = "Research notes on any topic, rendered in a sandbox."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	historyLimit              = 4
	queryPreviewLimit         = 80
	defaultActionTimeout      = 2 * time.Minute
)

const composerPlaceholder = "Ask for notes on any topic…"

// topicSuggestions prefill the composer on request.
var topicSuggestions = []string{
	"Explain the concept of photosynthesis",
	"Summarize the plot of Hamlet",
	"What are the main causes of World War I?",
	"Create study notes for the Krebs cycle",
	"Compare and contrast mitosis and meiosis",
}

type historyEntry struct {
	Kind    string
	Content string
	At      time.Time
}
