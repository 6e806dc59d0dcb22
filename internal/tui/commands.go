package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/notegen/internal/preview"
)

type actionID int

const (
	actionNewQuery actionID = iota
	actionToggleFullscreen
	actionPrint
	actionExport
	actionOutline
	actionShowPreview
	actionSearch
	actionToggleHelp
	actionSuggest
)

type paletteCommand struct {
	action      actionID
	title       string
	shortcut    string
	description string
}

var paletteCommands = []paletteCommand{
	{actionNewQuery, "New query", "r", "Focus the composer and ask about another topic."},
	{actionToggleFullscreen, "Toggle full screen", "f", "Show the notes across the whole terminal."},
	{actionPrint, "Print", "p", "Render the sandboxed document headlessly and send it to the printer."},
	{actionExport, "Export PDF", "e", "Render the sandboxed document to a PDF in the export directory."},
	{actionOutline, "Export outline PDF", "o", "Write a text-only PDF without a browser."},
	{actionShowPreview, "Browser preview", "b", "Show the address of the sandboxed browser preview."},
	{actionSearch, "Search notes", "/", "Highlight matches inside the notes."},
	{actionToggleHelp, "Toggle cheatsheet", "?", "Show or hide the key legend."},
}

// suggestionCommands lists the topic suggestions as palette entries; the
// description carries the topic.
func suggestionCommands() []paletteCommand {
	cmds := make([]paletteCommand, 0, len(topicSuggestions))
	for _, topic := range topicSuggestions {
		cmds = append(cmds, paletteCommand{actionSuggest, "Suggested topic", "tab", topic})
	}
	return cmds
}

func printJob(renderer *preview.Renderer) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		title := renderer.Document().Title
		err := renderer.Print(ctx)
		return printResultMsg{title: title, err: err}, err
	}
}

func exportJob(renderer *preview.Renderer) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		res, err := renderer.Export(ctx)
		return exportResultMsg{result: res, err: err}, err
	}
}

func outlineJob(renderer *preview.Renderer) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		res, err := renderer.ExportOutline()
		return exportResultMsg{outline: true, result: res, err: err}, err
	}
}

func (m *model) documentReady() bool {
	return m.stage != stageLoading && m.renderer.Document().Ready()
}

func (m *model) commandAvailable(action actionID) bool {
	switch action {
	case actionToggleFullscreen, actionPrint, actionExport, actionOutline, actionSearch:
		return m.documentReady()
	case actionShowPreview:
		return m.config.PreviewURL != ""
	default:
		return true
	}
}

func (m *model) runAction(action actionID) tea.Cmd {
	switch action {
	case actionNewQuery:
		return m.actionNewQueryCmd()
	case actionToggleFullscreen:
		return m.actionToggleFullscreenCmd()
	case actionPrint:
		return m.actionPrintCmd()
	case actionExport:
		return m.actionExportCmd()
	case actionOutline:
		return m.actionOutlineCmd()
	case actionShowPreview:
		return m.actionShowPreviewCmd()
	case actionSearch:
		return m.actionSearchCmd()
	case actionToggleHelp:
		return m.actionToggleHelpCmd()
	}
	return nil
}

func (m *model) requireDocument(verb string) bool {
	if m.documentReady() {
		return true
	}
	m.errorMessage = actionErrorText(verb, preview.ErrDocumentUnavailable)
	return false
}

func (m *model) actionPrintCmd() tea.Cmd {
	if !m.requireDocument("print") {
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = "Rendering for the printer…"
	return m.jobs.Start(jobKindPrint, printJob(m.renderer))
}

func (m *model) actionExportCmd() tea.Cmd {
	if !m.requireDocument("export") {
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = fmt.Sprintf("Exporting PDF to %s…", m.renderer.ExportDir())
	return m.jobs.Start(jobKindExport, exportJob(m.renderer))
}

func (m *model) actionOutlineCmd() tea.Cmd {
	if !m.requireDocument("outline export") {
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = "Writing outline PDF…"
	return m.jobs.Start(jobKindOutline, outlineJob(m.renderer))
}

func (m *model) actionToggleFullscreenCmd() tea.Cmd {
	if !m.renderer.Fullscreen() && !m.requireDocument("show") {
		return nil
	}
	on := m.renderer.ToggleFullscreen()
	m.layout.Update(m.layout.windowWidth, m.layout.windowHeight, on)
	m.viewport.Width = m.layout.viewportWidth
	m.viewport.Height = m.layout.viewportHeight
	m.markViewportDirty()
	if on {
		m.infoMessage = "Full screen. Press f or Esc to return."
	} else {
		m.infoMessage = "Left full screen."
	}
	return nil
}

func (m *model) actionShowPreviewCmd() tea.Cmd {
	if m.config.PreviewURL == "" {
		m.infoMessage = "Browser preview is disabled."
		return nil
	}
	m.infoMessage = fmt.Sprintf("Sandboxed preview: %s", m.config.PreviewURL)
	return nil
}

func (m *model) actionNewQueryCmd() tea.Cmd {
	if m.renderer.Fullscreen() {
		m.actionToggleFullscreenCmd()
	}
	if !m.snapshot.Status.Terminal() {
		m.stage = stageInput
	}
	m.errorMessage = ""
	m.infoMessage = "Type a new topic and press Enter. Esc returns to the notes."
	return m.composer.Focus()
}

// useSuggestion loads topic into the composer without submitting it.
func (m *model) useSuggestion(topic string) tea.Cmd {
	cmd := m.actionNewQueryCmd()
	m.composer.SetValue(topic)
	m.composer.CursorEnd()
	m.infoMessage = "Suggested topic loaded. Press Enter to generate notes."
	return cmd
}

// cycleSuggestion steps through the suggestions while the composer is empty
// or still holds one of them; typed text is never replaced.
func (m *model) cycleSuggestion() tea.Cmd {
	current := strings.TrimSpace(m.composer.Value())
	if current != "" && !slices.Contains(topicSuggestions, current) {
		return nil
	}
	topic := topicSuggestions[m.suggestionIdx%len(topicSuggestions)]
	m.suggestionIdx++
	return m.useSuggestion(topic)
}

func (m *model) actionSearchCmd() tea.Cmd {
	if !m.requireDocument("search") {
		return nil
	}
	m.stage = stageSearch
	m.searchInput.SetValue(m.searchQuery)
	return m.searchInput.Focus()
}

func (m *model) actionToggleHelpCmd() tea.Cmd {
	m.helpVisible = !m.helpVisible
	if m.helpVisible {
		m.infoMessage = "Cheatsheet open. Press ? to hide."
	} else {
		m.infoMessage = "Cheatsheet hidden."
	}
	return nil
}

func (m *model) actionOpenPaletteCmd() tea.Cmd {
	m.paletteReturn = m.stage
	m.stage = stagePalette
	m.composer.Blur()
	m.paletteInput.SetValue("")
	m.paletteCursor = 0
	m.filterPalette("")
	return m.paletteInput.Focus()
}

func (m *model) closePalette() {
	m.stage = m.paletteReturn
	m.paletteInput.Blur()
	if m.stage == stageInput {
		m.composer.Focus()
	}
}

func (m *model) filterPalette(query string) {
	query = strings.ToLower(strings.TrimSpace(query))
	m.paletteMatches = m.paletteMatches[:0]
	for _, cmd := range append(paletteCommands, suggestionCommands()...) {
		if !m.commandAvailable(cmd.action) {
			continue
		}
		haystack := strings.ToLower(cmd.title + " " + cmd.description)
		if query == "" || strings.Contains(haystack, query) {
			m.paletteMatches = append(m.paletteMatches, cmd)
		}
	}
	if m.paletteCursor >= len(m.paletteMatches) {
		m.paletteCursor = 0
	}
}

func (m *model) handlePaletteKey(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "esc", "ctrl+k":
		m.closePalette()
		return nil
	case "up", "ctrl+p":
		if m.paletteCursor > 0 {
			m.paletteCursor--
		}
		return nil
	case "down", "ctrl+n":
		if m.paletteCursor < len(m.paletteMatches)-1 {
			m.paletteCursor++
		}
		return nil
	case "enter":
		if len(m.paletteMatches) == 0 {
			m.closePalette()
			return nil
		}
		chosen := m.paletteMatches[m.paletteCursor]
		m.closePalette()
		if chosen.action == actionSuggest {
			return m.useSuggestion(chosen.description)
		}
		return m.runAction(chosen.action)
	}
	var cmd tea.Cmd
	m.paletteInput, cmd = m.paletteInput.Update(key)
	m.filterPalette(m.paletteInput.Value())
	return cmd
}

func actionErrorText(verb string, err error) string {
	if errors.Is(err, preview.ErrDocumentUnavailable) {
		return fmt.Sprintf("Nothing to %s yet. Submit a query and wait for the notes.", verb)
	}
	return fmt.Sprintf("%s failed: %v", strings.ToUpper(verb[:1])+verb[1:], err)
}
