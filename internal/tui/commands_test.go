package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/notegen/internal/preview"
)

type fakePipeline struct {
	mu      sync.Mutex
	queries []string
	closed  bool
	refuse  bool
}

func (f *fakePipeline) Submit(query string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse || f.closed {
		return false
	}
	f.queries = append(f.queries, query)
	return true
}

func (f *fakePipeline) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type fakeEngine struct{}

func (fakeEngine) RenderPDF(_ context.Context, page string) ([]byte, error) {
	return preview.OutlinePDF(preview.NewDocument(page, nil))
}

type fakePrinter struct {
	err   error
	title string
}

func (f *fakePrinter) Print(_ context.Context, _ []byte, title string) error {
	f.title = title
	return f.err
}

func newTestModel(t *testing.T) *model {
	t.Helper()
	renderer := preview.NewRenderer(preview.Options{
		Engine:    fakeEngine{},
		Printer:   &fakePrinter{},
		ExportDir: t.TempDir(),
	})
	teaModel, ok := New(Config{
		Pipeline:  &fakePipeline{},
		Snapshots: NewMailbox(),
		Renderer:  renderer,
	}).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	return teaModel
}

func TestCommandAvailability(t *testing.T) {
	m := newTestModel(t)
	if m.commandAvailable(actionPrint) {
		t.Fatal("print should be disabled without a document")
	}
	if m.commandAvailable(actionShowPreview) {
		t.Fatal("preview should be disabled without a preview URL")
	}
	if !m.commandAvailable(actionNewQuery) {
		t.Fatal("new query is always available")
	}

	m.applySnapshot(doneSnapshot(1, "<h1>Tides</h1><p>Body</p>"))
	if !m.commandAvailable(actionPrint) || !m.commandAvailable(actionExport) || !m.commandAvailable(actionOutline) {
		t.Fatal("document actions should be enabled once notes are loaded")
	}

	m.config.PreviewURL = "http://127.0.0.1:9999"
	if !m.commandAvailable(actionShowPreview) {
		t.Fatal("preview should be enabled with a URL")
	}
}

func TestPaletteFiltersAvailableCommands(t *testing.T) {
	m := newTestModel(t)
	m.actionOpenPaletteCmd()
	if m.stage != stagePalette {
		t.Fatalf("expected palette stage, got %v", m.stage)
	}
	for _, cmd := range m.paletteMatches {
		if cmd.action == actionPrint {
			t.Fatal("print should be hidden without a document")
		}
	}

	m.closePalette()
	m.applySnapshot(doneSnapshot(1, "<h1>Tides</h1>"))
	m.actionOpenPaletteCmd()
	m.filterPalette("pdf")
	if len(m.paletteMatches) != 2 {
		t.Fatalf("expected export and outline for %q, got %d", "pdf", len(m.paletteMatches))
	}
	m.closePalette()
	if m.stage != stageDisplay {
		t.Fatalf("palette should return to the previous stage, got %v", m.stage)
	}
}

func TestSuggestedTopicsPrefillComposer(t *testing.T) {
	m := newTestModel(t)
	if view := m.View(); !strings.Contains(view, topicSuggestions[0]) {
		t.Fatalf("expected suggestions before the first query:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.composer.Value(); got != topicSuggestions[0] {
		t.Fatalf("expected first suggestion, got %q", got)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.composer.Value(); got != topicSuggestions[1] {
		t.Fatalf("tab should advance to the next suggestion, got %q", got)
	}

	m.composer.SetValue("tidal forces")
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.composer.Value(); got != "tidal forces" {
		t.Fatalf("typed text must not be replaced, got %q", got)
	}

	m.composer.Reset()
	m.actionOpenPaletteCmd()
	m.filterPalette("krebs")
	if len(m.paletteMatches) != 1 || m.paletteMatches[0].action != actionSuggest {
		t.Fatalf("expected one suggestion match, got %+v", m.paletteMatches)
	}
	m.handlePaletteKey(tea.KeyMsg{Type: tea.KeyEnter})
	if m.stage != stageInput || !m.composer.Focused() {
		t.Fatalf("suggestion should return to a focused composer, stage %v", m.stage)
	}
	if got := m.composer.Value(); got != "Create study notes for the Krebs cycle" {
		t.Fatalf("unexpected composer value %q", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	queries := m.config.Pipeline.(*fakePipeline).queries
	if len(queries) != 1 || queries[0] != "Create study notes for the Krebs cycle" {
		t.Fatalf("expected the suggestion to be submitted, got %v", queries)
	}
}

func TestExportJobReportsPath(t *testing.T) {
	m := newTestModel(t)
	m.applySnapshot(doneSnapshot(1, "<h1>Ocean Tides</h1><p>The moon pulls the water.</p>"))

	msg, err := exportJob(m.renderer)(context.Background())
	if err != nil {
		t.Fatalf("export job: %v", err)
	}
	m.Update(jobResultEnvelope{Snapshot: jobSnapshot{Kind: jobKindExport, Status: jobStatusSucceeded}, Payload: msg})
	if !strings.Contains(m.infoMessage, "ocean-tides.pdf") {
		t.Fatalf("expected export path in notice, got %q", m.infoMessage)
	}
	if m.errorMessage != "" {
		t.Fatalf("unexpected error %q", m.errorMessage)
	}
	badges := strings.Join(m.jobStatusBadges(), " ")
	if !strings.Contains(badges, "Export") {
		t.Fatalf("expected export badge, got %q", badges)
	}
}

func TestOutlineJobWritesFile(t *testing.T) {
	m := newTestModel(t)
	m.applySnapshot(doneSnapshot(1, "<h2>Currents</h2><p>Notes.</p>"))
	msg, err := outlineJob(m.renderer)(context.Background())
	if err != nil {
		t.Fatalf("outline job: %v", err)
	}
	res := msg.(exportResultMsg)
	if !res.outline || !strings.HasSuffix(res.result.Path, "currents-outline.pdf") || res.result.Pages < 1 {
		t.Fatalf("unexpected outline result %+v", res)
	}
}

func TestPrintFailureSurfacesError(t *testing.T) {
	m := newTestModel(t)
	m.Update(printResultMsg{err: errors.New("lp: no default destination")})
	if !strings.Contains(m.errorMessage, "no default destination") {
		t.Fatalf("expected printer error, got %q", m.errorMessage)
	}
	m.Update(printResultMsg{err: preview.ErrDocumentUnavailable})
	if !strings.Contains(m.errorMessage, "Nothing to print") {
		t.Fatalf("expected unavailable notice, got %q", m.errorMessage)
	}
}
