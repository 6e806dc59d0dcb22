package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/notegen/internal/pipeline"
)

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	if m.renderer.Fullscreen() {
		return m.viewFullscreen()
	}
	switch m.stage {
	case stageInput, stageLoading, stageDisplay:
		return m.viewMain()
	case stageSearch:
		return m.viewSearch()
	case stagePalette:
		return m.viewPalette()
	default:
		return ""
	}
}

func (m *model) viewMain() string {
	m.refreshViewportIfDirty()
	body := m.renderStackedDisplay()
	return joinNonEmpty([]string{body, m.composerPanel(), m.footerView()})
}

func (m *model) viewFullscreen() string {
	m.refreshViewportIfDirty()
	hint := helperStyle.Render("f / Esc: exit full screen • p: print • e: export • o: outline • / search")
	return m.viewport.View() + "\n" + hint
}

func (m *model) renderStackedDisplay() string {
	parts := []string{m.heroView()}
	parts = append(parts, m.viewport.View())
	if status := m.searchStatusLine(); status != "" {
		parts = append(parts, helperStyle.Render(status))
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if m.stage == stageLoading || m.jobsRunning() {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, progressStyle.Render(message))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView())
		parts = append(parts, m.helpView())
	}
	return joinNonEmpty(parts)
}

func (m *model) composerPanel() string {
	header := sectionHeaderStyle.Render("Composer")
	if !m.composer.Focused() {
		header = helperStyle.Render("Composer (press r to write a new query)")
	}
	return joinNonEmpty([]string{
		header,
		m.composer.View(),
		m.suggestionsView(),
		helperStyle.Render(m.composerHelpText()),
	})
}

// suggestionsView lists the topic suggestions until the first query.
func (m *model) suggestionsView() string {
	if m.snapshot.Generation != 0 || !m.composer.Focused() {
		return ""
	}
	lines := []string{helperStyle.Render("Suggestions (Tab to cycle, Ctrl+K to pick):")}
	for _, topic := range topicSuggestions {
		lines = append(lines, helperStyle.Render("  • "+topic))
	}
	return strings.Join(lines, "\n")
}

func (m *model) composerHelpText() string {
	if m.composer.Focused() {
		return "Enter: generate • Alt+Enter: new line • Esc: clear • Ctrl+K: commands • Ctrl+C: quit"
	}
	return "f: full screen • p: print • e: export • o: outline • /: search • ?: cheatsheet • Esc: quit"
}

func (m *model) footerView() string {
	footer := []string{m.sessionMeterView()}
	if len(m.history) > 0 {
		lines := []string{sectionHeaderStyle.Render("Session Log")}
		for _, entry := range m.history {
			label := historyLabel(entry.Kind)
			style := helperStyle
			if entry.Kind == "error" {
				style = errorStyle
			}
			lines = append(lines, style.Render(fmt.Sprintf("%s %s: %s", entry.At.Format("15:04:05"), label, entry.Content)))
		}
		footer = append(footer, strings.Join(lines, "\n"))
	}
	return joinNonEmpty(footer)
}

func (m *model) viewSearch() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Search Notes"))
	b.WriteRune('\n')
	b.WriteString(m.searchInput.View())
	b.WriteRune('\n')
	b.WriteString(helperStyle.Render("Press Enter to apply search, Esc to cancel."))
	return joinNonEmpty([]string{m.frameWithHero(b.String()), m.footerView()})
}

func (m *model) viewPalette() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Command Palette"))
	b.WriteRune('\n')
	b.WriteString(m.paletteInput.View())
	b.WriteRune('\n')
	b.WriteString(helperStyle.Render("Enter to run, Esc to cancel."))
	b.WriteRune('\n')
	b.WriteRune('\n')
	if len(m.paletteMatches) == 0 {
		b.WriteString(helperStyle.Render("No commands match this filter."))
	} else {
		for idx, cmd := range m.paletteMatches {
			label := fmt.Sprintf("  %s  [%s]", cmd.title, cmd.shortcut)
			if idx == m.paletteCursor {
				label = currentLineStyle.Render("▸ " + cmd.title + "  [" + cmd.shortcut + "]")
			}
			b.WriteString(label)
			b.WriteRune('\n')
			b.WriteString(helperStyle.Render("   " + cmd.description))
			b.WriteRune('\n')
		}
	}
	return joinNonEmpty([]string{m.frameWithHero(b.String()), m.footerView()})
}

func (m *model) heroView() string {
	logo := renderLogo()
	if m.snapshot.Generation == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, logo, taglineStyle.Render(heroTagline))
	}

	query := heroTitleStyle.Render(wordwrap.String(previewText(m.snapshot.Query, queryPreviewLimit), 48))
	meta := []string{helperStyle.Render("Status: " + statusLabel(m.snapshot.Status))}
	if title := m.renderer.Document().Title; title != "" && m.snapshot.Status == pipeline.StatusDone {
		meta = append(meta, helperStyle.Render("Title: "+previewText(title, 48)))
	}
	if m.snapshot.RequestID != "" {
		meta = append(meta, helperStyle.Render("Request: "+m.snapshot.RequestID))
	}
	content := strings.Join(append([]string{query}, meta...), "\n")
	summary := heroBoxStyle.Render(content)
	panel := lipgloss.JoinHorizontal(lipgloss.Top, logo, heroSummaryStyle.Render(summary))
	return lipgloss.JoinVertical(lipgloss.Left, panel, taglineStyle.Render(heroTagline))
}

func (m *model) frameWithHero(body string) string {
	return joinNonEmpty([]string{m.heroView(), body})
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func statusLabel(status pipeline.Status) string {
	switch status {
	case pipeline.StatusLoading:
		return "Generating…"
	case pipeline.StatusDone:
		return "Ready"
	case pipeline.StatusErrored:
		return "Failed"
	default:
		return "Idle"
	}
}

func (m *model) sessionMeterView() string {
	doc := m.renderer.Document()
	stats := []string{
		fmt.Sprintf("Status %s", statusLabel(m.snapshot.Status)),
		fmt.Sprintf("References %d", len(doc.References)),
	}
	if m.renderer.Fullscreen() {
		stats = append(stats, "Full screen")
	}
	if m.config.PreviewURL != "" {
		stats = append(stats, "Preview "+m.config.PreviewURL)
	}
	stats = append(stats, m.jobStatusBadges()...)
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"↑/↓", "Scroll"},
		{"[/]", "Jump sections"},
		{"f", "Full screen"},
		{"p", "Print"},
		{"e", "Export PDF"},
		{"o", "Outline PDF"},
		{"/", "Search"},
		{"n/N", "Next/prev match"},
		{"g/G", "Top or bottom"},
		{"r", "New query"},
		{"b", "Browser preview"},
		{"Ctrl+K", "Command palette"},
	}
	rows := []string{sectionHeaderStyle.Render("Navigation Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description)
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func (m *model) helpView() string {
	lines := []string{
		sectionHeaderStyle.Render("How it works"),
		helperStyle.Render("• the notes are rendered from HTML into plain text here; nothing in the document runs in your terminal."),
		helperStyle.Render("• print and export lay the document out in a throwaway headless browser with scripts disabled."),
		helperStyle.Render("• the browser preview serves the document inside a sandboxed frame with a locked-down CSP."),
		helperStyle.Render("• submitting a new query while one is running discards the older answer when it arrives."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func renderLogo() string {
	if len(logoArtLines) == 0 {
		return ""
	}
	width := 0
	lineRunes := make([][]rune, len(logoArtLines))
	for i, line := range logoArtLines {
		runes := []rune(line)
		lineRunes[i] = runes
		if len(runes) > width {
			width = len(runes)
		}
	}
	width++
	height := len(logoArtLines) + 1

	type cell struct {
		r     rune
		style lipgloss.Style
	}

	grid := make([][]cell, height)
	for i := range grid {
		grid[i] = make([]cell, width)
	}
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r != ' ' && y+1 < height && x+1 < width {
				grid[y+1][x+1] = cell{r: r, style: logoShadowStyle}
			}
		}
	}
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r != ' ' {
				grid[y][x] = cell{r: r, style: logoFaceStyle}
			}
		}
	}

	lines := make([]string, height)
	for y, row := range grid {
		var b strings.Builder
		for _, c := range row {
			if c.r == 0 {
				b.WriteRune(' ')
				continue
			}
			b.WriteString(c.style.Render(string(c.r)))
		}
		lines[y] = b.String()
	}
	return logoContainerStyle.Render(strings.Join(lines, "\n"))
}

var (
	sectionHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	linkStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Underline(true)
	searchHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("190"))
	searchCurrentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("229"))

	heroAccentColor        = lipgloss.Color("#2ec4b6")
	heroInkColor           = lipgloss.Color("#02201d")
	heroTextColor          = lipgloss.Color("#e8fffb")
	heroSecondaryTextColor = lipgloss.Color("#8fe3d8")

	heroTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	heroBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(heroAccentColor).Foreground(heroTextColor).Background(heroInkColor).Padding(1, 2)
	heroSummaryStyle   = lipgloss.NewStyle().PaddingLeft(2)
	taglineStyle       = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	helpBoxStyle       = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
	currentLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	logoFaceStyle      = lipgloss.NewStyle().Bold(true).Foreground(heroTextColor).Background(heroInkColor)
	logoShadowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#011210"))
	logoContainerStyle = lipgloss.NewStyle().Padding(0, 1)
	logoArtLines       = []string{
		"███╗   ██╗   ██████╗   ████████╗  ███████╗   ██████╗   ███████╗  ███╗   ██╗  ",
		"████╗  ██║  ██╔═══██╗  ╚══██╔══╝  ██╔════╝  ██╔════╝   ██╔════╝  ████╗  ██║  ",
		"██╔██╗ ██║  ██║   ██║     ██║     █████╗    ██║  ███╗  █████╗    ██╔██╗ ██║  ",
		"██║╚██╗██║  ██║   ██║     ██║     ██╔══╝    ██║   ██║  ██╔══╝    ██║╚██╗██║  ",
		"██║ ╚████║  ╚██████╔╝     ██║     ███████╗  ╚██████╔╝  ███████╗  ██║ ╚████║  ",
		"╚═╝  ╚═══╝   ╚═════╝      ╚═╝     ╚══════╝   ╚═════╝   ╚══════╝  ╚═╝  ╚═══╝  ",
	}
)
