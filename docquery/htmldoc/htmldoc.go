// Package htmldoc implements docquery.Document over a parsed HTML snapshot.
//
// It backs offline runs against saved pages and the synthetic fixtures in
// tests. Locators are CSS selectors (cascadia). Visibility is a static
// heuristic: hidden attribute, inline display:none / visibility:hidden,
// hidden inputs and non-rendered tags, checked on the node and its ancestors.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/locguard/docquery"
)

// Document is a static docquery.Document.
type Document struct {
	mu     sync.RWMutex
	doc    *goquery.Document
	url    string
	pages  map[string][]byte
	client *http.Client
	logger *slog.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Document) { d.logger = l } }

// WithHTTPClient sets the client used by Navigate for http(s) URLs.
func WithHTTPClient(c *http.Client) Option { return func(d *Document) { d.client = c } }

// WithPage registers an in-memory page served by Navigate for url.
func WithPage(url, body string) Option {
	return func(d *Document) { d.pages[url] = []byte(body) }
}

// New creates an empty Document. Call Navigate or Load before querying.
func New(opts ...Option) *Document {
	d := &Document{pages: make(map[string][]byte)}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	return d
}

// FromString parses body as the current page.
func FromString(body string, opts ...Option) (*Document, error) {
	d := New(opts...)
	if err := d.Load(strings.NewReader(body), ""); err != nil {
		return nil, err
	}
	return d, nil
}

// Open parses the HTML file at path as the current page.
func Open(path string, opts ...Option) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: open: %w", err)
	}
	defer f.Close()
	d := New(opts...)
	if err := d.Load(f, "file://"+path); err != nil {
		return nil, err
	}
	return d, nil
}

// Load replaces the current page with the HTML read from r.
func (d *Document) Load(r io.Reader, url string) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("htmldoc: parse: %w", err)
	}
	d.mu.Lock()
	d.doc = doc
	d.url = url
	d.mu.Unlock()
	return nil
}

// URL returns the URL of the current page.
func (d *Document) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

func (d *Document) current() (*goquery.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.doc == nil {
		return nil, fmt.Errorf("htmldoc: no page loaded")
	}
	return d.doc, nil
}

// Query implements docquery.Document.
func (d *Document) Query(ctx context.Context, locator string) ([]docquery.Element, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := compile(locator); err != nil {
		return nil, err
	}
	doc, err := d.current()
	if err != nil {
		return nil, err
	}
	return wrap(d, doc.Find(locator)), nil
}

// Count implements docquery.Document.
func (d *Document) Count(ctx context.Context, locator string) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	if err := compile(locator); err != nil {
		return 0, err
	}
	doc, err := d.current()
	if err != nil {
		return 0, err
	}
	return doc.Find(locator).Length(), nil
}

// WaitFor implements docquery.Document. A snapshot never changes, so an
// absent locator times out immediately.
func (d *Document) WaitFor(ctx context.Context, locator string, _ time.Duration) error {
	n, err := d.Count(ctx, locator)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: waiting for %q", docquery.ErrTimeout, locator)
	}
	return nil
}

// Navigate implements docquery.Document. Registered pages are served first,
// then file:// URLs and bare paths are read from disk, then http(s) URLs are
// fetched.
func (d *Document) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = docquery.LongTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.mu.RLock()
	body, ok := d.pages[url]
	d.mu.RUnlock()
	if ok {
		return d.Load(bytes.NewReader(body), url)
	}

	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return d.fetch(ctx, url)
	default:
		path := strings.TrimPrefix(url, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("htmldoc: navigate %s: %w", url, err)
		}
		return d.Load(bytes.NewReader(data), url)
	}
}

func (d *Document) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("htmldoc: new request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: navigate %s", docquery.ErrTimeout, url)
		}
		return fmt.Errorf("htmldoc: navigate %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("htmldoc: navigate %s: http %d", url, resp.StatusCode)
	}
	d.logger.Debug("htmldoc: fetched", "url", url, "status", resp.StatusCode)
	return d.Load(resp.Body, url)
}

func compile(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("%w: empty", docquery.ErrInvalidLocator)
	}
	if _, err := cascadia.Compile(locator); err != nil {
		return fmt.Errorf("%w: %q: %v", docquery.ErrInvalidLocator, locator, err)
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", docquery.ErrTimeout, err)
	}
	return nil
}

func wrap(d *Document, sel *goquery.Selection) []docquery.Element {
	out := make([]docquery.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{doc: d, sel: s})
	})
	return out
}

// Element is a single matched node of a snapshot.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

func (e *Element) node() *html.Node {
	if len(e.sel.Nodes) == 0 {
		return nil
	}
	return e.sel.Nodes[0]
}

// Visible implements docquery.Element.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	for n := e.node(); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hiddenNode(n) {
			return false, nil
		}
	}
	return e.node() != nil, nil
}

// Text implements docquery.Element. Whitespace is collapsed.
func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

// Attribute implements docquery.Element.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// Query implements docquery.Element.
func (e *Element) Query(ctx context.Context, locator string) ([]docquery.Element, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := compile(locator); err != nil {
		return nil, err
	}
	return wrap(e.doc, e.sel.Find(locator)), nil
}

// Describe implements docquery.Element.
func (e *Element) Describe(ctx context.Context, depth int) (docquery.Ancestry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	doc, err := e.doc.current()
	if err != nil {
		return nil, err
	}
	root := doc.Selection.Nodes[0]

	var anc docquery.Ancestry
	n := e.node()
	for i := 0; n != nil && n.Type == html.ElementNode && i <= depth; i++ {
		anc = append(anc, describeNode(root, n))
		n = n.Parent
	}
	return anc, nil
}
