package preview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"

	"github.com/csheth/notegen/internal/references"
)

// ErrDocumentUnavailable is returned by print and export when nothing is
// loaded.
var ErrDocumentUnavailable = errors.New("preview: no document loaded")

// ExportResult describes a written PDF.
type ExportResult struct {
	Path  string
	Pages int
}

// Options wires a Renderer.
type Options struct {
	Engine    Engine
	Printer   Printer
	ExportDir string
}

// Renderer holds the document on display. It is safe for concurrent use by
// the TUI and the preview server.
type Renderer struct {
	engine    Engine
	printer   Printer
	exportDir string

	mu         sync.RWMutex
	doc        Document
	fullscreen bool
}

// NewRenderer builds an empty renderer. Missing collaborators default to a
// headless Chrome engine, the lp spooler and the user's documents directory.
func NewRenderer(opts Options) *Renderer {
	engine := opts.Engine
	if engine == nil {
		engine = ChromeEngine{}
	}
	printer := opts.Printer
	if printer == nil {
		printer = SpoolPrinter{}
	}
	dir := opts.ExportDir
	if dir == "" {
		dir = DefaultExportDir()
	}
	return &Renderer{engine: engine, printer: printer, exportDir: dir}
}

// DefaultExportDir is where exports land unless configured otherwise.
func DefaultExportDir() string {
	if xdg.UserDirs.Documents != "" {
		return filepath.Join(xdg.UserDirs.Documents, "notegen")
	}
	return filepath.Join(xdg.DataHome, "notegen", "exports")
}

// Load replaces the current document wholesale.
func (r *Renderer) Load(html string, refs []references.Reference) {
	doc := NewDocument(html, refs)
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()
}

// Document returns the current document.
func (r *Renderer) Document() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

// ToggleFullscreen flips the presentation flag and returns its new value.
func (r *Renderer) ToggleFullscreen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fullscreen = !r.fullscreen
	return r.fullscreen
}

func (r *Renderer) Fullscreen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fullscreen
}

// ExportDir is the directory Export writes into.
func (r *Renderer) ExportDir() string { return r.exportDir }

// RenderPDF lays the current document out with the engine.
func (r *Renderer) RenderPDF(ctx context.Context) ([]byte, Document, error) {
	doc := r.Document()
	if !doc.Ready() {
		return nil, doc, ErrDocumentUnavailable
	}
	data, err := r.engine.RenderPDF(ctx, doc.Page())
	if err != nil {
		return nil, doc, err
	}
	return data, doc, nil
}

// Print renders the document and sends it to the print queue.
func (r *Renderer) Print(ctx context.Context) error {
	data, doc, err := r.RenderPDF(ctx)
	if err != nil {
		return err
	}
	if err := r.printer.Print(ctx, data, doc.Title); err != nil {
		return fmt.Errorf("print: %w", err)
	}
	log.Printf("[preview] sent %q to the print queue (%d bytes)", doc.FileName(".pdf"), len(data))
	return nil
}

// Export renders the document to a PDF file in the export directory.
func (r *Renderer) Export(ctx context.Context) (ExportResult, error) {
	data, doc, err := r.RenderPDF(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	return r.write(doc.FileName(".pdf"), data)
}

// ExportOutline writes the text-only rendition of the document.
func (r *Renderer) ExportOutline() (ExportResult, error) {
	doc := r.Document()
	if !doc.Ready() {
		return ExportResult{}, ErrDocumentUnavailable
	}
	data, err := OutlinePDF(doc)
	if err != nil {
		return ExportResult{}, err
	}
	return r.write(doc.FileName("-outline.pdf"), data)
}

func (r *Renderer) write(name string, data []byte) (ExportResult, error) {
	pages, err := CountPages(data)
	if err != nil {
		return ExportResult{}, fmt.Errorf("verify export: %w", err)
	}
	if err := os.MkdirAll(r.exportDir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(r.exportDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ExportResult{}, fmt.Errorf("write export: %w", err)
	}
	log.Printf("[preview] exported %s (%d pages)", path, pages)
	return ExportResult{Path: path, Pages: pages}, nil
}

// Terminal returns the document projected to wrapped Markdown.
func (r *Renderer) Terminal(width int) string {
	doc := r.Document()
	if !doc.Ready() {
		return ""
	}
	return TerminalText(doc.HTML, width)
}
