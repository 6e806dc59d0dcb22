// Package tui is the interactive front-end: a composer for queries, a live
// progress line while notes are generated, and a scrollable terminal
// projection of the sandboxed document with print and export actions.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/notegen/internal/pipeline"
	"github.com/csheth/notegen/internal/preview"
)

// Submitter is the slice of the pipeline the TUI drives.
type Submitter interface {
	Submit(query string) bool
	Close()
}

// Config wires runtime collaborators into the TUI program.
type Config struct {
	Pipeline      Submitter
	Snapshots     *Mailbox
	Renderer      *preview.Renderer
	PreviewURL    string
	ActionTimeout time.Duration
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Renderer == nil {
		config.Renderer = preview.NewRenderer(preview.Options{})
	}

	composer := textarea.New()
	composer.Placeholder = composerPlaceholder
	composer.ShowLineNumbers = false
	composer.CharLimit = 2000
	composer.SetWidth(70)
	composer.SetHeight(3)
	composer.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	composer.Focus()

	searchInput := textinput.New()
	searchInput.Placeholder = "Search within the notes…"
	searchInput.CharLimit = 120
	searchInput.Width = 60

	paletteInput := textinput.New()
	paletteInput.Placeholder = "Type to filter commands…"
	paletteInput.CharLimit = 60
	paletteInput.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	return &model{
		config:         config,
		renderer:       config.Renderer,
		stage:          stageInput,
		layout:         newPageLayout(),
		composer:       composer,
		searchInput:    searchInput,
		paletteInput:   paletteInput,
		spinner:        spin,
		viewport:       vp,
		jobs:           newJobBus(config.ActionTimeout),
		jobStates:      map[jobKind]jobSnapshot{},
		sectionAnchors: map[string]int{},
		searchMatchIdx: -1,
		viewportDirty:  true,
		infoMessage:    "Describe a topic and press Enter to generate notes.",
	}
}

type model struct {
	config   Config
	renderer *preview.Renderer
	stage    stage
	layout   pageLayout

	composer     textarea.Model
	searchInput  textinput.Model
	paletteInput textinput.Model
	spinner      spinner.Model
	viewport     viewport.Model
	spinning     bool

	jobs      *jobBus
	jobStates map[jobKind]jobSnapshot

	snapshot pipeline.Snapshot
	history  []historyEntry

	viewportContent string
	viewportDirty   bool
	lineCount       int
	sectionAnchors  map[string]int
	resetScroll     bool

	searchQuery    string
	searchMatches  []matchRange
	searchMatchIdx int

	paletteMatches []paletteCommand
	paletteCursor  int
	paletteReturn  stage

	suggestionIdx int

	infoMessage  string
	errorMessage string
	helpVisible  bool
	quitting     bool
}

type printResultMsg struct {
	title string
	err   error
}

type exportResultMsg struct {
	outline bool
	result  preview.ExportResult
	err     error
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForSnapshot(m.config.Snapshots))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.stage == stageLoading || m.jobsRunning() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		m.spinning = false
		return m, nil
	case snapshotMsg:
		cmd := m.applySnapshot(msg.snapshot)
		return m, tea.Batch(cmd, waitForSnapshot(m.config.Snapshots))
	case jobSignalMsg:
		m.jobStates[msg.Snapshot.Kind] = msg.Snapshot
		return m, m.startSpinner()
	case jobResultEnvelope:
		m.jobStates[msg.Snapshot.Kind] = msg.Snapshot
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case printResultMsg:
		m.handlePrintResult(msg)
		return m, nil
	case exportResultMsg:
		m.handleExportResult(msg)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		if m.stage == stageDisplay {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}
	return m, nil
}

func (m *model) resize(width, height int) {
	m.layout.Update(width, height, m.renderer.Fullscreen())
	m.viewport.Width = m.layout.viewportWidth
	m.viewport.Height = m.layout.viewportHeight
	m.composer.SetWidth(m.layout.viewportWidth)
	m.composer.SetHeight(m.layout.composerHeight)
	m.markViewportDirty()
}

// applySnapshot mirrors the pipeline state. Older generations can only arrive
// out of order if the mailbox is bypassed, and are ignored.
func (m *model) applySnapshot(s pipeline.Snapshot) tea.Cmd {
	if s.Generation < m.snapshot.Generation {
		return nil
	}
	prev := m.snapshot
	m.snapshot = s
	changed := s.Generation != prev.Generation || s.Status != prev.Status
	if changed {
		m.renderer.Load(s.HTML, s.References)
		m.resetScroll = true
		m.markViewportDirty()
	}

	switch s.Status {
	case pipeline.StatusLoading:
		m.stage = stageLoading
		m.errorMessage = ""
		if s.Progress != "" {
			m.infoMessage = s.Progress
		}
		return m.startSpinner()
	case pipeline.StatusDone:
		if !changed {
			return nil
		}
		m.stage = stageDisplay
		m.composer.Blur()
		m.errorMessage = ""
		refs := len(s.References)
		m.infoMessage = fmt.Sprintf("Notes ready with %d reference(s). f: full screen • p: print • e: export • r: new query", refs)
		m.recordHistory("notes", fmt.Sprintf("%s (%d references, %s)", titleOr(m.renderer.Document().Title, "Notes ready"), refs, elapsed(s)))
	case pipeline.StatusErrored:
		if !changed {
			return nil
		}
		m.stage = stageDisplay
		m.composer.Blur()
		m.errorMessage = s.ErrorMessage
		m.infoMessage = "Press r to try another query."
		m.recordHistory("error", s.ErrorMessage)
	}
	return nil
}

func (m *model) startSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return m, m.quit()
	case "ctrl+k":
		if m.stage != stagePalette {
			return m, m.actionOpenPaletteCmd()
		}
	}

	switch m.stage {
	case stagePalette:
		return m, m.handlePaletteKey(key)
	case stageSearch:
		return m, m.handleSearchKey(key)
	}
	if m.composer.Focused() {
		cmd, _ := m.processComposerKey(key)
		return m, cmd
	}
	return m.handleDisplayKey(key)
}

// processComposerKey routes keys while the composer has focus. Enter submits;
// Alt+Enter inserts a newline; Tab cycles the suggested topics.
func (m *model) processComposerKey(key tea.KeyMsg) (tea.Cmd, bool) {
	switch key.Type {
	case tea.KeyEnter:
		if key.Alt {
			break
		}
		return m.actionSubmitCmd(), true
	case tea.KeyTab:
		return m.cycleSuggestion(), true
	case tea.KeyEsc:
		if strings.TrimSpace(m.composer.Value()) != "" {
			m.composer.Reset()
			m.infoMessage = "Composer cleared."
			return nil, true
		}
		if m.renderer.Document().Ready() && m.stage != stageLoading {
			m.composer.Blur()
			m.stage = stageDisplay
			m.infoMessage = "Back to the notes. Press r to write a new query."
			return nil, true
		}
		return nil, true
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	return cmd, true
}

func (m *model) actionSubmitCmd() tea.Cmd {
	query := strings.TrimSpace(m.composer.Value())
	if query == "" {
		m.errorMessage = "Type a topic before pressing Enter."
		return nil
	}
	if m.config.Pipeline == nil || !m.config.Pipeline.Submit(query) {
		m.errorMessage = "Notes service unavailable. Set NOTEGEN_API_URL or --api-url."
		return nil
	}
	m.composer.Reset()
	m.errorMessage = ""
	m.stage = stageLoading
	m.infoMessage = "Submitting…"
	m.clearSearch()
	m.recordHistory("query", query)
	return m.startSpinner()
}

func (m *model) handleDisplayKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		if m.renderer.Fullscreen() {
			return m, m.actionToggleFullscreenCmd()
		}
		if m.searchQuery != "" {
			m.clearSearch()
			m.infoMessage = "Cleared search filter."
			return m, nil
		}
		return m, m.quit()
	case "f":
		return m, m.actionToggleFullscreenCmd()
	case "p":
		return m, m.actionPrintCmd()
	case "e":
		return m, m.actionExportCmd()
	case "o":
		return m, m.actionOutlineCmd()
	case "b":
		return m, m.actionShowPreviewCmd()
	case "/":
		return m, m.actionSearchCmd()
	case "n":
		m.advanceSearch(1)
	case "N":
		m.advanceSearch(-1)
	case "g":
		m.scrollToTop()
	case "G":
		m.scrollToBottom()
	case "]":
		m.jumpToRelativeSection(1)
	case "[":
		m.jumpToRelativeSection(-1)
	case "r", "i":
		return m, m.actionNewQueryCmd()
	case "?":
		return m, m.actionToggleHelpCmd()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleSearchKey(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		m.stage = stageDisplay
		m.searchInput.Blur()
		return nil
	case tea.KeyEnter:
		m.stage = stageDisplay
		m.applySearch(m.searchInput.Value())
		return nil
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(key)
	return cmd
}

func (m *model) handlePrintResult(msg printResultMsg) {
	if msg.err != nil {
		m.errorMessage = actionErrorText("print", msg.err)
		m.recordHistory("error", m.errorMessage)
		return
	}
	m.errorMessage = ""
	m.infoMessage = fmt.Sprintf("Sent %q to the printer.", titleOr(msg.title, "notes"))
	m.recordHistory("print", m.infoMessage)
}

func (m *model) handleExportResult(msg exportResultMsg) {
	action := "export"
	if msg.outline {
		action = "outline export"
	}
	if msg.err != nil {
		m.errorMessage = actionErrorText(action, msg.err)
		m.recordHistory("error", m.errorMessage)
		return
	}
	m.errorMessage = ""
	m.infoMessage = fmt.Sprintf("Saved %s (%d page(s)).", msg.result.Path, msg.result.Pages)
	m.recordHistory(action, m.infoMessage)
}

func (m *model) recordHistory(kind, content string) {
	m.history = append(m.history, historyEntry{Kind: kind, Content: previewText(content, queryPreviewLimit), At: time.Now()})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *model) quit() tea.Cmd {
	m.quitting = true
	if m.config.Pipeline != nil {
		m.config.Pipeline.Close()
	}
	if m.config.Snapshots != nil {
		m.config.Snapshots.Close()
	}
	return tea.Quit
}

func elapsed(s pipeline.Snapshot) string {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return "done"
	}
	return s.CompletedAt.Sub(s.StartedAt).Round(100 * time.Millisecond).String()
}

func titleOr(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return title
}
