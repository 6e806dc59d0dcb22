// Package preview displays generated notes without letting them touch
// anything else. The HTML is treated as hostile: it is served only under a
// sandbox CSP inside a script-less iframe, printed and exported from a
// throwaway headless browser with scripting disabled, and projected to plain
// Markdown for the terminal.
package preview

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/csheth/notegen/internal/references"
)

const defaultTitle = "preview"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Document is the HTML currently on display plus what was derived from it.
type Document struct {
	HTML       string
	Title      string
	References []references.Reference
}

// NewDocument derives a title from raw. The markup is kept verbatim.
func NewDocument(raw string, refs []references.Reference) Document {
	return Document{
		HTML:       raw,
		Title:      extractTitle(raw),
		References: append([]references.Reference{}, refs...),
	}
}

// Ready reports whether there is anything to print or export.
func (d Document) Ready() bool {
	return strings.TrimSpace(d.HTML) != ""
}

// ContentPolicy caps what the document may load once rendered: no scripts,
// frames, forms or plain-http fetches.
const ContentPolicy = "default-src 'none'; img-src https: data:; style-src 'unsafe-inline'; font-src https: data:"

// Page returns a complete HTML page. Fragments are wrapped in a skeleton.
// Every page carries ContentPolicy as the first element of its head and
// loses any meta refresh, so renderers that load it without response headers
// stay as confined as the browser preview.
func (d Document) Page() string {
	raw := d.HTML
	lower := strings.ToLower(raw)
	if !strings.Contains(lower, "<html") && !strings.Contains(lower, "<!doctype") {
		title := d.Title
		if title == "" {
			title = defaultTitle
		}
		raw = fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n%s\n</body></html>\n",
			html.EscapeString(title), raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return confinedPage("<pre>" + html.EscapeString(d.HTML) + "</pre>")
	}
	doc.Find("meta[http-equiv]").Each(func(_ int, meta *goquery.Selection) {
		if v, _ := meta.Attr("http-equiv"); strings.EqualFold(strings.TrimSpace(v), "refresh") {
			meta.Remove()
		}
	})
	doc.Find("head").First().PrependHtml(policyMeta())
	out, err := doc.Html()
	if err != nil {
		return confinedPage("<pre>" + html.EscapeString(d.HTML) + "</pre>")
	}
	return out
}

func policyMeta() string {
	return fmt.Sprintf(`<meta http-equiv="Content-Security-Policy" content="%s">`, html.EscapeString(ContentPolicy))
}

func confinedPage(body string) string {
	return "<!DOCTYPE html><html><head>" + policyMeta() + "</head><body>" + body + "</body></html>"
}

// FileName returns a filesystem friendly name with the given extension.
func (d Document) FileName(ext string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(d.Title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" {
		slug = defaultTitle
	}
	return slug + ext
}

func extractTitle(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	for _, sel := range []string{"title", "h1", "h2"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

// DisplayReference is a reference made safe for display.
type DisplayReference struct {
	Title    string
	Href     string
	Linkable bool
}

var (
	titlePolicyOnce sync.Once
	titlePolicy     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	titlePolicyOnce.Do(func() {
		titlePolicy = bluemonday.StrictPolicy()
	})
	return titlePolicy
}

// DisplayReferences strips markup from titles and only marks http(s) links as
// followable.
func DisplayReferences(refs []references.Reference) []DisplayReference {
	out := make([]DisplayReference, 0, len(refs))
	for _, ref := range refs {
		title := html.UnescapeString(strings.TrimSpace(strictPolicy().Sanitize(ref.Title)))
		href := strings.TrimSpace(ref.Href)
		if title == "" {
			title = href
		}
		out = append(out, DisplayReference{Title: title, Href: href, Linkable: isWebURL(href)})
	}
	return out
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
