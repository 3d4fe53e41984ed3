// Package docquery defines the document-query capability that locguard
// consumes: resolve a locator, count matches, read visibility, text and
// attributes, wait for a selector and navigate, all with bounded timeouts.
//
// locguard never drives a browser itself. A caller hands it a Document,
// either a live page (roddoc) or a parsed snapshot (htmldoc).
package docquery

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a wait or navigation exceeds its deadline.
	ErrTimeout = errors.New("docquery: timeout")

	// ErrInvalidLocator is returned when a locator cannot be compiled.
	ErrInvalidLocator = errors.New("docquery: invalid locator")
)

// Default timeouts. Short applies to optional or speculative probes, Long to
// page-load and navigation preconditions.
const (
	ShortTimeout = 3 * time.Second
	LongTimeout  = 45 * time.Second
)

// Document is the live (or snapshot) document a run operates on.
type Document interface {
	// Query resolves a locator against the whole document.
	Query(ctx context.Context, locator string) ([]Element, error)

	// Count returns the number of matches for a locator.
	Count(ctx context.Context, locator string) (int, error)

	// WaitFor blocks until the locator matches at least one element or the
	// timeout elapses (ErrTimeout).
	WaitFor(ctx context.Context, locator string, timeout time.Duration) error

	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
}

// Element is one matched node.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)

	// Query resolves a locator among the element's descendants.
	Query(ctx context.Context, locator string) ([]Element, error)

	// Describe serialises the element and up to depth ancestors.
	Describe(ctx context.Context, depth int) (Ancestry, error)
}

// Node is the serialised description of one element, free of any live
// document handle.
type Node struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attrs"`
	Classes    []string          `json:"classes"`

	// SiblingClassCounts maps each class of the node to the number of
	// sibling elements that also carry it.
	SiblingClassCounts map[string]int `json:"siblingClassCounts"`

	// IDCount is the number of elements in the document sharing the node's id.
	IDCount int `json:"idCount"`

	ChildElements int `json:"childElements"`
}

// Attr returns an attribute value.
func (n Node) Attr(name string) (string, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

// Ancestry is an element followed by its ancestors, nearest first.
type Ancestry []Node

// WithProbeTimeout derives a context bounded by d, or by ShortTimeout when d
// is not positive.
func WithProbeTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = ShortTimeout
	}
	return context.WithTimeout(ctx, d)
}

// IsTimeout reports whether err is a docquery or context deadline timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// FirstVisible reports the match count of locator and whether its first
// match is visible. Errors other than timeouts are returned; a timeout
// degrades to zero matches.
func FirstVisible(ctx context.Context, doc Document, locator string) (count int, visible bool, err error) {
	els, err := doc.Query(ctx, locator)
	if err != nil {
		if IsTimeout(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(els) == 0 {
		return 0, false, nil
	}
	v, err := els[0].Visible(ctx)
	if err != nil {
		if IsTimeout(err) {
			return len(els), false, nil
		}
		return len(els), false, err
	}
	return len(els), v, nil
}
