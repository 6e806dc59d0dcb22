package preview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/csheth/notegen/internal/references"
)

const sampleHTML = `<h1>Ocean Tides</h1><p>The moon pulls the water.</p><script>alert(1)</script>`

// fakeEngine lays pages out with the outline renderer so tests get a real PDF
// without a browser.
type fakeEngine struct {
	mu    sync.Mutex
	pages []string
	err   error
}

func (f *fakeEngine) RenderPDF(_ context.Context, page string) ([]byte, error) {
	f.mu.Lock()
	f.pages = append(f.pages, page)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return OutlinePDF(NewDocument(page, nil))
}

type fakePrinter struct {
	data  []byte
	title string
	err   error
}

func (f *fakePrinter) Print(_ context.Context, pdf []byte, title string) error {
	f.data = pdf
	f.title = title
	return f.err
}

func newTestRenderer(t *testing.T) (*Renderer, *fakeEngine, *fakePrinter) {
	t.Helper()
	engine := &fakeEngine{}
	printer := &fakePrinter{}
	r := NewRenderer(Options{Engine: engine, Printer: printer, ExportDir: t.TempDir()})
	return r, engine, printer
}

func TestNewDocumentDerivesTitle(t *testing.T) {
	cases := map[string]string{
		"<title>Tab</title><h1>Head</h1>": "Tab",
		"<h1>  Ocean \n Tides </h1>":      "Ocean Tides",
		"<h2>Second</h2><p>body</p>":      "Second",
		"<p>no headings here</p>":         "",
		"":                                "",
	}
	for raw, want := range cases {
		if got := NewDocument(raw, nil).Title; got != want {
			t.Fatalf("title of %q = %q, want %q", raw, got, want)
		}
	}
}

func TestDocumentPageWrapsFragments(t *testing.T) {
	page := NewDocument(sampleHTML, nil).Page()
	if !strings.HasPrefix(page, "<!DOCTYPE html>") {
		t.Fatalf("expected doctype, got %q", page[:20])
	}
	if !strings.Contains(page, "<title>Ocean Tides</title>") {
		t.Fatalf("expected title in page: %s", page)
	}
}

func TestDocumentPageCarriesContentPolicy(t *testing.T) {
	policy := `<meta http-equiv="Content-Security-Policy" content="default-src &#39;none&#39;; img-src https: data:; style-src &#39;unsafe-inline&#39;; font-src https: data:"/>`
	cases := map[string]string{
		"fragment":      sampleHTML,
		"full document": `<!DOCTYPE html><html><head><title>T</title></head><body><img src="http://lan.local/x.png"></body></html>`,
		"no head":       `<html><body><p>x</p></body></html>`,
		"meta refresh":  `<html><head><meta http-equiv="Refresh" content="0;url=http://127.0.0.1:9/"></head><body>x</body></html>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			page := NewDocument(raw, nil).Page()
			head := strings.Index(page, "<head>")
			if head < 0 || !strings.HasPrefix(page[head+len("<head>"):], policy) {
				t.Fatalf("policy must open the head:\n%s", page)
			}
			if strings.Contains(strings.ToLower(page), "refresh") {
				t.Fatalf("meta refresh survived:\n%s", page)
			}
		})
	}
	if !strings.HasSuffix(DocumentCSP, ContentPolicy) {
		t.Fatalf("served and embedded policies diverged: %q", DocumentCSP)
	}
}

func TestDocumentFileName(t *testing.T) {
	if got := NewDocument(sampleHTML, nil).FileName(".pdf"); got != "ocean-tides.pdf" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := NewDocument("<p>x</p>", nil).FileName(".pdf"); got != "preview.pdf" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}

func TestDisplayReferencesStripsMarkup(t *testing.T) {
	refs := []references.Reference{
		{Title: `<b>Bold</b> &amp; <img src=x onerror=alert(1)>plain`, Href: "https://example.com/a"},
		{Title: "Local", Href: "javascript:alert(1)"},
		{Title: "", Href: "http://example.org"},
	}
	got := DisplayReferences(refs)
	if len(got) != 3 {
		t.Fatalf("expected 3 references, got %d", len(got))
	}
	if got[0].Title != "Bold & plain" || !got[0].Linkable {
		t.Fatalf("unexpected first reference: %+v", got[0])
	}
	if got[1].Linkable {
		t.Fatalf("javascript URL must not be linkable: %+v", got[1])
	}
	if got[2].Title != "http://example.org" {
		t.Fatalf("empty title should fall back to href, got %q", got[2].Title)
	}
}

func TestRendererLoadReplacesDocument(t *testing.T) {
	r, _, _ := newTestRenderer(t)
	if r.Document().Ready() {
		t.Fatalf("new renderer should be empty")
	}
	r.Load(sampleHTML, []references.Reference{{Title: "A", Href: "https://a"}})
	r.Load("<h2>Second</h2>", nil)
	doc := r.Document()
	if doc.Title != "Second" || len(doc.References) != 0 {
		t.Fatalf("expected wholesale replacement, got %+v", doc)
	}
}

func TestRendererToggleFullscreen(t *testing.T) {
	r, _, _ := newTestRenderer(t)
	if !r.ToggleFullscreen() || !r.Fullscreen() {
		t.Fatalf("expected fullscreen on")
	}
	if r.ToggleFullscreen() || r.Fullscreen() {
		t.Fatalf("expected fullscreen off")
	}
}

func TestRendererActionsRequireDocument(t *testing.T) {
	r, engine, printer := newTestRenderer(t)
	if err := r.Print(context.Background()); !errors.Is(err, ErrDocumentUnavailable) {
		t.Fatalf("print: expected ErrDocumentUnavailable, got %v", err)
	}
	if _, err := r.Export(context.Background()); !errors.Is(err, ErrDocumentUnavailable) {
		t.Fatalf("export: expected ErrDocumentUnavailable, got %v", err)
	}
	if _, err := r.ExportOutline(); !errors.Is(err, ErrDocumentUnavailable) {
		t.Fatalf("outline: expected ErrDocumentUnavailable, got %v", err)
	}
	if len(engine.pages) != 0 || printer.data != nil {
		t.Fatalf("nothing should reach the engine or printer")
	}
}

func TestRendererExportWritesPDF(t *testing.T) {
	r, engine, _ := newTestRenderer(t)
	r.Load(sampleHTML, nil)

	res, err := r.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Pages < 1 {
		t.Fatalf("expected at least one page, got %d", res.Pages)
	}
	if filepath.Base(res.Path) != "ocean-tides.pdf" || filepath.Dir(res.Path) != r.ExportDir() {
		t.Fatalf("unexpected export path %q", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("export is not a PDF")
	}
	if len(engine.pages) != 1 || !strings.Contains(engine.pages[0], `http-equiv="Content-Security-Policy"`) {
		t.Fatalf("engine should receive the confined page, got %v", engine.pages)
	}
}

func TestRendererExportSurfacesEngineError(t *testing.T) {
	r, engine, _ := newTestRenderer(t)
	engine.err = errors.New("chrome missing")
	r.Load(sampleHTML, nil)
	if _, err := r.Export(context.Background()); err == nil || !strings.Contains(err.Error(), "chrome missing") {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestRendererPrintSpoolsRenderedPDF(t *testing.T) {
	r, _, printer := newTestRenderer(t)
	r.Load(sampleHTML, nil)
	if err := r.Print(context.Background()); err != nil {
		t.Fatalf("print: %v", err)
	}
	if printer.title != "Ocean Tides" {
		t.Fatalf("unexpected print title %q", printer.title)
	}
	if pages, err := CountPages(printer.data); err != nil || pages < 1 {
		t.Fatalf("printer received an unreadable PDF: pages=%d err=%v", pages, err)
	}
}

func TestRendererExportOutline(t *testing.T) {
	r, engine, _ := newTestRenderer(t)
	long := "<h1>Long</h1>" + strings.Repeat("<p>Paragraph of notes about tides and currents.</p>", 200)
	r.Load(long, []references.Reference{{Title: "Source", Href: "https://example.com"}})
	res, err := r.ExportOutline()
	if err != nil {
		t.Fatalf("outline: %v", err)
	}
	if res.Pages < 2 {
		t.Fatalf("expected multiple pages, got %d", res.Pages)
	}
	if !strings.HasSuffix(res.Path, "long-outline.pdf") {
		t.Fatalf("unexpected outline path %q", res.Path)
	}
	if len(engine.pages) != 0 {
		t.Fatalf("outline export must not use the engine")
	}
}

func TestCountPagesRejectsGarbage(t *testing.T) {
	if _, err := CountPages([]byte("not a pdf")); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestTerminalProjection(t *testing.T) {
	r, _, _ := newTestRenderer(t)
	if got := r.Terminal(80); got != "" {
		t.Fatalf("empty renderer should project to nothing, got %q", got)
	}
	r.Load(sampleHTML, nil)
	got := r.Terminal(80)
	if !strings.Contains(got, "# Ocean Tides") || !strings.Contains(got, "The moon pulls the water.") {
		t.Fatalf("unexpected projection:\n%s", got)
	}
	if strings.Contains(got, "alert(1)") {
		t.Fatalf("script content leaked into projection:\n%s", got)
	}
}

func TestTerminalTextWraps(t *testing.T) {
	got := TerminalText("<p>"+strings.Repeat("word ", 40)+"</p>", 20)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 20 {
			t.Fatalf("line exceeds width: %q", line)
		}
	}
}

func newTestServer(t *testing.T) (*Renderer, *httptest.Server) {
	t.Helper()
	r, _, _ := newTestRenderer(t)
	srv := NewServer(r, ServerOptions{Gatherer: prometheus.NewRegistry()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return r, ts
}

func TestServerDocumentCarriesSandboxHeaders(t *testing.T) {
	r, ts := newTestServer(t)
	r.Load(sampleHTML, nil)

	resp, err := http.Get(ts.URL + "/document")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Security-Policy"); got != DocumentCSP {
		t.Fatalf("unexpected CSP %q", got)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Security-Policy"), "sandbox") {
		t.Fatalf("document must be sandboxed")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff")
	}
	if resp.Header.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("expected no-referrer")
	}
}

func TestServerActionsConflictWithoutDocument(t *testing.T) {
	_, ts := newTestServer(t)
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/document"},
		{http.MethodPost, "/print"},
		{http.MethodGet, "/export.pdf"},
		{http.MethodGet, "/outline.pdf"},
	} {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("%s %s: expected 409, got %d", tc.method, tc.path, resp.StatusCode)
		}
		if body["error"] != ErrDocumentUnavailable.Error() {
			t.Fatalf("%s %s: unexpected error body %v", tc.method, tc.path, body)
		}
	}
}

func TestServerPrintRefusesCrossOriginRequests(t *testing.T) {
	_, ts := newTestServer(t)
	self := strings.TrimPrefix(ts.URL, "http://")
	for _, tc := range []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"foreign origin", map[string]string{"Origin": "http://evil.example"}, http.StatusForbidden},
		{"opaque origin", map[string]string{"Origin": "null"}, http.StatusForbidden},
		{"foreign referer", map[string]string{"Referer": "http://evil.example/page"}, http.StatusForbidden},
		{"cross-site fetch", map[string]string{"Sec-Fetch-Site": "cross-site", "Origin": ts.URL}, http.StatusForbidden},
		{"same-site fetch", map[string]string{"Sec-Fetch-Site": "same-site"}, http.StatusForbidden},
		{"own origin", map[string]string{"Origin": ts.URL}, http.StatusConflict},
		{"own referer", map[string]string{"Referer": "http://" + self + "/"}, http.StatusConflict},
		{"same-origin fetch", map[string]string{"Sec-Fetch-Site": "same-origin", "Origin": "null"}, http.StatusConflict},
		{"no browser headers", nil, http.StatusConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/print", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("post print: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestAwaitLoadWaitsForLoadEvent(t *testing.T) {
	loaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- awaitLoad(context.Background(), loaded, time.Minute) }()

	select {
	case err := <-done:
		t.Fatalf("returned before the load event: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	loaded <- struct{}{}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("load event did not release the wait")
	}

	if err := awaitLoad(context.Background(), make(chan struct{}), 10*time.Millisecond); err != nil {
		t.Fatalf("settle timeout should print anyway, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := awaitLoad(ctx, make(chan struct{}), time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAllowRequestAdmitsOnlySecureSubresources(t *testing.T) {
	for _, tc := range []struct {
		url  string
		kind network.ResourceType
		want bool
	}{
		{"https://cdn.example/tide.png", network.ResourceTypeImage, true},
		{"data:image/png;base64,AAAA", network.ResourceTypeImage, true},
		{"https://fonts.example/a.woff2", network.ResourceTypeFont, true},
		{"http://cdn.example/tide.png", network.ResourceTypeImage, false},
		{"https://evil.example/", network.ResourceTypeDocument, false},
		{"file:///etc/passwd", network.ResourceTypeImage, false},
		{"http://169.254.169.254/latest", network.ResourceTypeXHR, false},
		{"https:///nohost", network.ResourceTypeImage, false},
		{"::bad", network.ResourceTypeImage, false},
	} {
		if got := allowRequest(tc.url, tc.kind); got != tc.want {
			t.Errorf("allowRequest(%q, %s) = %v, want %v", tc.url, tc.kind, got, tc.want)
		}
	}
}

func TestServerHostPageEmbedsSandboxedFrame(t *testing.T) {
	r, ts := newTestServer(t)
	r.Load(sampleHTML, []references.Reference{
		{Title: "<i>Tide</i> tables", Href: "https://example.com/tides"},
		{Title: "Bad", Href: "javascript:alert(1)"},
	})

	resp, err := http.Get(ts.URL + "/?full=1")
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read host: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `<iframe sandbox src="/document"`) {
		t.Fatalf("host page must embed a sandboxed frame:\n%s", body)
	}
	if !strings.Contains(body, `class="full"`) {
		t.Fatalf("expected full screen layout")
	}
	if strings.Contains(body, "alert(1)") {
		t.Fatalf("document content must not be inlined into the host page")
	}

	resp2, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	defer resp2.Body.Close()
	raw, err = io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("read host: %v", err)
	}
	body = string(raw)
	if !strings.Contains(body, `href="https://example.com/tides"`) || !strings.Contains(body, "Tide tables") {
		t.Fatalf("expected linkable reference:\n%s", body)
	}
	if strings.Contains(body, "javascript:") {
		t.Fatalf("non-web reference must not be linked:\n%s", body)
	}
}

func TestServerOutlineDownload(t *testing.T) {
	r, ts := newTestServer(t)
	r.Load(sampleHTML, nil)
	resp, err := http.Get(ts.URL + "/outline.pdf")
	if err != nil {
		t.Fatalf("get outline: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "ocean-tides-outline.pdf") {
		t.Fatalf("unexpected disposition %q", resp.Header.Get("Content-Disposition"))
	}
}

func TestServerHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
