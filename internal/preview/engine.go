package preview

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ledongthuc/pdf"
)

const (
	defaultRenderTimeout = 45 * time.Second
	loadSettleTimeout    = 15 * time.Second
)

// Engine lays out an HTML page and prints it to PDF.
type Engine interface {
	RenderPDF(ctx context.Context, page string) ([]byte, error)
}

// ChromeEngine renders in a fresh headless Chrome per call. Scripts are
// disabled before the document is injected, every request passes through a
// gate that only admits https and data subresources, and the page has no
// opener, no host frame and no shared profile.
type ChromeEngine struct {
	ExecPath string
	Timeout  time.Duration
}

func (e ChromeEngine) RenderPDF(ctx context.Context, document string) ([]byte, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("incognito", true),
	)
	if e.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.ExecPath))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var armed atomic.Bool
	loaded := make(chan struct{}, 1)
	chromedp.ListenTarget(bctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go gateRequest(bctx, ev)
		case *page.EventLoadEventFired:
			if armed.Load() {
				select {
				case loaded <- struct{}{}:
				default:
				}
			}
		}
	})

	var out []byte
	err := chromedp.Run(bctx,
		emulation.SetScriptExecutionDisabled(true),
		chromedp.Navigate("about:blank"),
		fetch.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			armed.Store(true)
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return awaitLoad(ctx, loaded, loadSettleTimeout)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11).
				WithMarginTop(1).
				WithMarginBottom(1).
				WithMarginLeft(1).
				WithMarginRight(1).
				Do(ctx)
			out = buf
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("headless render: %w", err)
	}
	return out, nil
}

// awaitLoad blocks until loaded fires so subresources are in place before
// printing. After settle it gives up and prints whatever has laid out.
func awaitLoad(ctx context.Context, loaded <-chan struct{}, settle time.Duration) error {
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-loaded:
		return nil
	case <-timer.C:
		log.Printf("[preview] no load event after %s, printing current layout", settle)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func gateRequest(ctx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	ectx := cdp.WithExecutor(ctx, c.Target)
	if allowRequest(ev.Request.URL, ev.ResourceType) {
		_ = fetch.ContinueRequest(ev.RequestID).Do(ectx)
		return
	}
	log.Printf("[preview] blocked %s request to %s", ev.ResourceType, ev.Request.URL)
	_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
}

// allowRequest admits https and data subresources. Documents are refused
// outright, which rules out navigation and frames.
func allowRequest(raw string, kind network.ResourceType) bool {
	if kind == network.ResourceTypeDocument {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "https":
		return u.Host != ""
	case "data":
		return true
	}
	return false
}

// CountPages parses data and returns its page count.
func CountPages(data []byte) (pages int, err error) {
	// The parser panics on some truncated xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return reader.NumPage(), nil
}
