package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/notegen/internal/pipeline"
	"github.com/csheth/notegen/internal/preview"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	composerHeight int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		composerHeight: 3,
	}
}

// Update sizes the notes viewport. Full screen gives it everything but the
// hint line.
func (l *pageLayout) Update(width, height int, fullscreen bool) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	l.composerHeight = 3
	if fullscreen {
		l.viewportHeight = height - 2
		if l.viewportHeight < 5 {
			l.viewportHeight = 5
		}
		return
	}
	// hero, status lines, composer header and help, meter and session log
	const chrome = 22
	contentHeight := height - chrome - l.composerHeight
	if contentHeight < 6 {
		contentHeight = 6
	}
	l.viewportHeight = contentHeight
}

type displayView struct {
	content string
	anchors map[string]int
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

func (m *model) buildDisplayContent() displayView {
	cb := &contentBuilder{}
	anchors := map[string]int{}
	doc := m.renderer.Document()

	anchors[anchorNotes] = cb.Line()
	cb.WriteString(sectionHeaderStyle.Render(titleOr(doc.Title, "Notes")))
	cb.WriteRune('\n')
	switch {
	case m.snapshot.Status == pipeline.StatusLoading:
		cb.WriteString(helperStyle.Render(wordwrap.String(fmt.Sprintf("Generating notes for %q. This usually takes about two minutes.", previewText(m.snapshot.Query, queryPreviewLimit)), m.wrapWidth(2))))
		cb.WriteRune('\n')
	case doc.Ready():
		cb.WriteString(m.renderer.Terminal(m.wrapWidth(2)))
		cb.WriteRune('\n')
	default:
		cb.WriteString(helperStyle.Render("No notes yet."))
		cb.WriteRune('\n')
	}

	refs := preview.DisplayReferences(doc.References)
	if len(refs) > 0 {
		cb.WriteRune('\n')
		anchors[anchorReferences] = cb.Line()
		cb.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("References (%d)", len(refs))))
		cb.WriteRune('\n')
		wrap := m.wrapWidth(6)
		for idx, ref := range refs {
			cb.WriteString(fmt.Sprintf(" %d. ", idx+1))
			cb.WriteString(indentContinuation(wordwrap.String(ref.Title, wrap), "    "))
			cb.WriteRune('\n')
			if ref.Linkable && ref.Href != ref.Title {
				cb.WriteString("    ")
				cb.WriteString(linkStyle.Render(ref.Href))
				cb.WriteRune('\n')
			}
		}
	}

	return displayView{content: cb.String(), anchors: anchors}
}

func (m *model) buildIdleContent() displayView {
	cb := &contentBuilder{}
	cb.WriteString(sectionHeaderStyle.Render("Ask for notes in the Composer"))
	cb.WriteRune('\n')
	cb.WriteString(helperStyle.Render("Describe a topic below and press Enter. Alt+Enter adds a line break."))
	cb.WriteRune('\n')
	cb.WriteString(helperStyle.Render("The document and its references show up here once the service answers."))
	cb.WriteRune('\n')
	return displayView{content: cb.String(), anchors: map[string]int{}}
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewportDirty = false
	prevYOffset := m.viewport.YOffset
	var view displayView
	if m.snapshot.Generation == 0 {
		view = m.buildIdleContent()
	} else {
		view = m.buildDisplayContent()
	}
	m.viewportContent = view.content
	m.sectionAnchors = view.anchors
	m.lineCount = len(splitLinesPreserve(view.content))

	content := view.content
	if m.searchQuery != "" {
		m.searchMatches = findMatches(content, m.searchQuery)
		if len(m.searchMatches) == 0 {
			m.searchMatchIdx = -1
		} else if m.searchMatchIdx < 0 || m.searchMatchIdx >= len(m.searchMatches) {
			m.searchMatchIdx = 0
		}
		content = highlightMatches(content, m.searchMatches, m.searchMatchIdx)
	} else {
		m.searchMatches = nil
		m.searchMatchIdx = -1
	}
	m.viewport.SetContent(content)
	if m.resetScroll {
		prevYOffset = 0
		m.resetScroll = false
	}
	m.viewport.SetYOffset(m.clampYOffset(prevYOffset))
	if m.searchQuery != "" && len(m.searchMatches) > 0 && m.searchMatchIdx >= 0 {
		m.scrollToCurrentMatch()
	}
}

func (m *model) clampYOffset(offset int) int {
	maxOffset := m.lineCount - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

func (m *model) scrollToTop() {
	m.refreshViewportIfDirty()
	m.viewport.SetYOffset(0)
	m.infoMessage = "Jumped to top."
}

func (m *model) scrollToBottom() {
	m.refreshViewportIfDirty()
	m.viewport.SetYOffset(m.clampYOffset(m.lineCount))
	m.infoMessage = "Jumped to bottom."
}

func (m *model) jumpToSection(anchor string) {
	m.refreshViewportIfDirty()
	line, ok := m.sectionAnchors[anchor]
	if !ok {
		m.infoMessage = fmt.Sprintf("No %s in this document.", sectionLabel(anchor))
		return
	}
	m.viewport.SetYOffset(m.clampYOffset(line))
	m.infoMessage = fmt.Sprintf("Jumped to %s.", sectionLabel(anchor))
}

func (m *model) jumpToRelativeSection(delta int) {
	m.refreshViewportIfDirty()
	available := m.availableSections()
	if len(available) == 0 {
		m.infoMessage = "Nothing to jump to yet."
		return
	}
	current := 0
	for idx, anchor := range available {
		if m.sectionAnchors[anchor] <= m.viewport.YOffset {
			current = idx
		}
	}
	target := current + delta
	if target < 0 {
		target = 0
	}
	if target >= len(available) {
		target = len(available) - 1
	}
	m.jumpToSection(available[target])
}

func (m *model) availableSections() []string {
	var out []string
	for _, anchor := range sectionSequence {
		if _, ok := m.sectionAnchors[anchor]; ok {
			out = append(out, anchor)
		}
	}
	return out
}

func sectionLabel(anchor string) string {
	switch anchor {
	case anchorNotes:
		return "notes"
	case anchorReferences:
		return "references"
	default:
		return "section"
	}
}

func (m *model) applySearch(query string) {
	query = strings.TrimSpace(query)
	m.searchInput.Blur()
	m.searchQuery = query
	if query == "" {
		m.searchMatches = nil
		m.searchMatchIdx = -1
		m.searchInput.SetValue("")
	} else {
		m.searchMatchIdx = 0
	}
	m.markViewportDirty()
	m.refreshViewportIfDirty()
	switch {
	case query == "":
		m.infoMessage = "Cleared search filter."
	case len(m.searchMatches) == 0:
		m.infoMessage = fmt.Sprintf("No matches for %q.", query)
	default:
		m.infoMessage = fmt.Sprintf("%d match(es) for %q. n / N to cycle.", len(m.searchMatches), query)
	}
}

func (m *model) clearSearch() {
	m.searchQuery = ""
	m.searchMatches = nil
	m.searchMatchIdx = -1
	m.searchInput.SetValue("")
	m.searchInput.Blur()
	m.markViewportDirty()
}

func (m *model) advanceSearch(delta int) {
	if m.searchQuery == "" {
		m.infoMessage = "Start a search with / first."
		return
	}
	if len(m.searchMatches) == 0 {
		m.infoMessage = fmt.Sprintf("No matches for %q.", m.searchQuery)
		return
	}
	count := len(m.searchMatches)
	m.searchMatchIdx = (m.searchMatchIdx + delta) % count
	if m.searchMatchIdx < 0 {
		m.searchMatchIdx += count
	}
	m.infoMessage = fmt.Sprintf("Match %d/%d for %q.", m.searchMatchIdx+1, count, m.searchQuery)
	m.markViewportDirty()
	m.refreshViewportIfDirty()
}

func (m *model) scrollToCurrentMatch() {
	if len(m.searchMatches) == 0 || m.searchMatchIdx < 0 || m.searchMatchIdx >= len(m.searchMatches) {
		return
	}
	match := m.searchMatches[m.searchMatchIdx]
	line := lineNumberAtOffset(m.viewportContent, match.start)
	m.viewport.SetYOffset(m.clampYOffset(line - 1))
}

func (m *model) searchStatusLine() string {
	if m.searchQuery == "" {
		return ""
	}
	if len(m.searchMatches) == 0 {
		return fmt.Sprintf("Search %q: no matches", m.searchQuery)
	}
	return fmt.Sprintf("Search %q: match %d/%d", m.searchQuery, m.searchMatchIdx+1, len(m.searchMatches))
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func indentContinuation(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

func splitLinesPreserve(content string) []string {
	if content == "" {
		return []string{""}
	}
	return strings.Split(content, "\n")
}

type matchRange struct {
	start int
	end   int
}

func findMatches(content, query string) []matchRange {
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)
	if lowerQuery == "" {
		return nil
	}
	var matches []matchRange
	searchIdx := 0
	for {
		idx := strings.Index(lowerContent[searchIdx:], lowerQuery)
		if idx == -1 {
			break
		}
		start := searchIdx + idx
		end := start + len(lowerQuery)
		matches = append(matches, matchRange{start: start, end: end})
		searchIdx = end
		if searchIdx >= len(content) {
			break
		}
	}
	return matches
}

func highlightMatches(content string, matches []matchRange, current int) string {
	if len(matches) == 0 {
		return content
	}
	var b strings.Builder
	pos := 0
	for idx, match := range matches {
		if match.start > len(content) {
			break
		}
		if match.start > pos {
			b.WriteString(content[pos:match.start])
		}
		segmentEnd := match.end
		if segmentEnd > len(content) {
			segmentEnd = len(content)
		}
		segment := content[match.start:segmentEnd]
		if idx == current {
			b.WriteString(searchCurrentStyle.Render(segment))
		} else {
			b.WriteString(searchHighlightStyle.Render(segment))
		}
		pos = segmentEnd
	}
	if pos < len(content) {
		b.WriteString(content[pos:])
	}
	return b.String()
}

func lineNumberAtOffset(content string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n")
}

func previewText(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func historyLabel(kind string) string {
	switch kind {
	case "query":
		return "You"
	case "notes":
		return "Notes"
	case "print", "export", "outline export":
		return "System"
	case "error":
		return "Error"
	default:
		return kind
	}
}
