package roddoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/locguard/docquery"
)

// describeScript serialises the element (this) and its ancestors. The depth
// argument bounds the walk.
const describeScript = `function (depth) {
	const out = [];
	let el = this;
	for (let i = 0; el && el.nodeType === 1 && i <= depth; i++, el = el.parentElement) {
		const attrs = {};
		for (const a of el.attributes) attrs[a.name] = a.value;
		const classes = Array.from(el.classList);
		const siblingClassCounts = {};
		const parent = el.parentElement;
		if (parent) {
			for (const sib of parent.children) {
				if (sib === el) continue;
				for (const c of classes) {
					if (sib.classList.contains(c)) siblingClassCounts[c] = (siblingClassCounts[c] || 0) + 1;
				}
			}
		}
		let idCount = 0;
		if (el.id) {
			try { idCount = document.querySelectorAll('#' + CSS.escape(el.id)).length; } catch (e) { idCount = 0; }
		}
		out.push({
			tag: el.tagName.toLowerCase(),
			attrs: attrs,
			classes: classes,
			siblingClassCounts: siblingClassCounts,
			idCount: idCount,
			childElements: el.children.length
		});
	}
	return JSON.stringify(out);
}`

// Document is a live docquery.Document backed by one rod page.
type Document struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewDocument wraps an existing rod page.
func NewDocument(page *rod.Page, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{page: page, logger: logger}
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.page }

// Close closes the tab.
func (d *Document) Close() error {
	if d.page != nil {
		return d.page.Close()
	}
	return nil
}

// Query implements docquery.Document. It does not wait for the locator.
func (d *Document) Query(ctx context.Context, locator string) ([]docquery.Element, error) {
	els, err := d.page.Context(ctx).Elements(locator)
	if err != nil {
		return nil, classify(err, locator)
	}
	return wrap(els), nil
}

// Count implements docquery.Document.
func (d *Document) Count(ctx context.Context, locator string) (int, error) {
	res, err := d.page.Context(ctx).Eval(`(sel) => document.querySelectorAll(sel).length`, locator)
	if err != nil {
		return 0, classify(err, locator)
	}
	return res.Value.Int(), nil
}

// WaitFor implements docquery.Document.
func (d *Document) WaitFor(ctx context.Context, locator string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = docquery.ShortTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := d.page.Context(ctx).Element(locator); err != nil {
		return classify(err, locator)
	}
	return nil
}

// Navigate implements docquery.Document.
func (d *Document) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = docquery.LongTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := d.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return classify(err, url)
	}
	if err := p.WaitLoad(); err != nil {
		if docquery.IsTimeout(err) {
			return fmt.Errorf("%w: load %s", docquery.ErrTimeout, url)
		}
		d.logger.Warn("roddoc: wait load", "url", url, "error", err)
	}
	return nil
}

func classify(err error, what string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", docquery.ErrTimeout, what)
	}
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) && strings.Contains(evalErr.Error(), "is not a valid selector") {
		return fmt.Errorf("%w: %q", docquery.ErrInvalidLocator, what)
	}
	return fmt.Errorf("roddoc: %s: %w", what, err)
}

func wrap(els rod.Elements) []docquery.Element {
	out := make([]docquery.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

// Element is a live docquery.Element.
type Element struct {
	el *rod.Element
}

// Visible implements docquery.Element.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	v, err := e.el.Context(ctx).Visible()
	if err != nil {
		return false, classify(err, "visible")
	}
	return v, nil
}

// Text implements docquery.Element.
func (e *Element) Text(ctx context.Context) (string, error) {
	t, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classify(err, "text")
	}
	return strings.Join(strings.Fields(t), " "), nil
}

// Attribute implements docquery.Element.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, classify(err, "attribute "+name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Query implements docquery.Element.
func (e *Element) Query(ctx context.Context, locator string) ([]docquery.Element, error) {
	els, err := e.el.Context(ctx).Elements(locator)
	if err != nil {
		return nil, classify(err, locator)
	}
	return wrap(els), nil
}

// Describe implements docquery.Element.
func (e *Element) Describe(ctx context.Context, depth int) (docquery.Ancestry, error) {
	res, err := e.el.Context(ctx).Eval(describeScript, depth)
	if err != nil {
		return nil, classify(err, "describe")
	}
	var anc docquery.Ancestry
	if err := json.Unmarshal([]byte(res.Value.Str()), &anc); err != nil {
		return nil, fmt.Errorf("roddoc: decode ancestry: %w", err)
	}
	return anc, nil
}
