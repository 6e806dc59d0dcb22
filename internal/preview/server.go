package preview

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DocumentCSP confines the generated document: no scripts, no forms, no
// plugins, a unique origin and only remote images, fonts and inline styles.
const DocumentCSP = "sandbox; " + ContentPolicy

const hostCSP = "default-src 'none'; frame-src 'self'; style-src 'unsafe-inline'; form-action 'self'"

var hostPage = template.Must(template.New("host").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Title}}{{.Title}}{{else}}notegen preview{{end}}</title>
<style>
body { margin: 0; font-family: system-ui, sans-serif; color: #1f2933; }
header { display: flex; gap: 12px; align-items: center; padding: 8px 16px; border-bottom: 1px solid #d9e2ec; }
header form { margin: 0; }
main { display: flex; height: calc(100vh - 50px); }
iframe { flex: 1; border: 0; }
aside { width: 280px; overflow: auto; padding: 12px 16px; border-left: 1px solid #d9e2ec; font-size: 14px; }
.full iframe { position: fixed; inset: 0; width: 100vw; height: 100vh; background: #fff; }
.empty { padding: 24px; color: #627d98; }
</style>
</head>
<body{{if .Full}} class="full"{{end}}>
<header>
<strong>{{if .Title}}{{.Title}}{{else}}notegen{{end}}</strong>
{{if .Ready}}
<form method="post" action="/print"><button type="submit">Print</button></form>
<a href="/export.pdf">Export PDF</a>
<a href="/outline.pdf">Outline PDF</a>
{{end}}
{{if .Full}}<a href="/">Exit full screen</a>{{else}}<a href="/?full=1">Full screen</a>{{end}}
</header>
{{if .Notice}}<p class="empty">{{.Notice}}</p>{{end}}
<main>
{{if .Ready}}<iframe sandbox src="/document" title="Generated notes" referrerpolicy="no-referrer"></iframe>{{else}}<p class="empty">No notes yet. Submit a query in the terminal.</p>{{end}}
{{if and .References (not .Full)}}
<aside>
<h3>References</h3>
<ul>
{{range .References}}<li>{{if .Linkable}}<a href="{{.Href}}" target="_blank" rel="noopener noreferrer">{{.Title}}</a>{{else}}{{.Title}}{{end}}</li>
{{end}}</ul>
</aside>
{{end}}
</main>
</body>
</html>
`))

type hostView struct {
	Title      string
	Ready      bool
	Full       bool
	Notice     string
	References []DisplayReference
}

// ServerOptions configures the preview server.
type ServerOptions struct {
	Addr     string
	Gatherer prometheus.Gatherer
}

// Server exposes the renderer over loopback HTTP.
type Server struct {
	renderer *Renderer
	echo     *echo.Echo
	addr     string
}

// NewServer builds the routes but does not listen.
func NewServer(r *Renderer, opts ServerOptions) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{renderer: r, addr: opts.Addr}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s: %v", code, req.Method, req.URL.Path, err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/", s.host)
	e.GET("/document", s.document)
	e.POST("/print", s.print, sameOrigin)
	e.GET("/export.pdf", s.exportPDF)
	e.GET("/outline.pdf", s.outlinePDF)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.echo = e
	return s
}

// Handler returns the routes for embedding or tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address and serves in the background. It
// returns the base URL.
func (s *Server) Start() (string, error) {
	addr := s.addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("preview listen: %w", err)
	}
	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[preview] server stopped: %v", err)
		}
	}()
	base := "http://" + ln.Addr().String()
	log.Printf("[preview] serving on %s", base)
	return base, nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) host(c echo.Context) error {
	doc := s.renderer.Document()
	view := hostView{
		Title:      doc.Title,
		Ready:      doc.Ready(),
		Full:       c.QueryParam("full") == "1",
		Notice:     c.QueryParam("notice"),
		References: DisplayReferences(doc.References),
	}
	h := c.Response().Header()
	h.Set("Content-Security-Policy", hostCSP)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return hostPage.Execute(c.Response(), view)
}

func (s *Server) document(c echo.Context) error {
	doc := s.renderer.Document()
	if !doc.Ready() {
		return echo.NewHTTPError(http.StatusConflict, ErrDocumentUnavailable.Error())
	}
	setSandboxHeaders(c)
	return c.HTML(http.StatusOK, doc.Page())
}

func (s *Server) print(c echo.Context) error {
	if err := s.renderer.Print(c.Request().Context()); err != nil {
		return actionError(err)
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
	}
	return c.Redirect(http.StatusSeeOther, "/?notice=Sent+to+printer")
}

func (s *Server) exportPDF(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()
	data, doc, err := s.renderer.RenderPDF(ctx)
	if err != nil {
		return actionError(err)
	}
	return sendPDF(c, doc.FileName(".pdf"), data)
}

func (s *Server) outlinePDF(c echo.Context) error {
	doc := s.renderer.Document()
	if !doc.Ready() {
		return actionError(ErrDocumentUnavailable)
	}
	data, err := OutlinePDF(doc)
	if err != nil {
		return actionError(err)
	}
	return sendPDF(c, doc.FileName("-outline.pdf"), data)
}

func sendPDF(c echo.Context, name string, data []byte) error {
	setSandboxHeaders(c)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

func setSandboxHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set("Content-Security-Policy", DocumentCSP)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}

// sameOrigin refuses state-changing requests a browser sent on behalf of
// another site. Requests without any browser provenance headers pass.
func sameOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !fromSameOrigin(c.Request()) {
			return echo.NewHTTPError(http.StatusForbidden, "cross-origin request refused")
		}
		return next(c)
	}
}

func fromSameOrigin(req *http.Request) bool {
	if site := req.Header.Get("Sec-Fetch-Site"); site != "" {
		return site == "same-origin" || site == "none"
	}
	origin := req.Header.Get(echo.HeaderOrigin)
	if origin == "null" {
		return false
	}
	if origin != "" {
		return sameHost(origin, req.Host)
	}
	if referer := req.Referer(); referer != "" {
		return sameHost(referer, req.Host)
	}
	return true
}

func sameHost(raw, host string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func actionError(err error) error {
	if errors.Is(err, ErrDocumentUnavailable) {
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
}

func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return accept == echo.MIMEApplicationJSON
}
