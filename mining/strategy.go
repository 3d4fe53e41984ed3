package mining

import (
	"context"
	"regexp"
	"strings"

	"github.com/hazyhaar/locguard/docquery"
)

// State records what a mined locator points at.
type State string

const (
	// StateText is a locator resolving to the readable value.
	StateText State = "text"

	// StateAction is a locator resolving to an action element standing in
	// for the value (access-gated email, phone request link).
	StateAction State = "action"
)

// Absence reasons recorded in Result.Missing.
const (
	ReasonNoCell      = "cell index out of range"
	ReasonNoCandidate = "no element yields a locator"
	ReasonNotVisible  = "no generated locator resolves to a visible match"
	ReasonNoAnchor    = "no anchor in cell"
	ReasonNoProfile   = "no profile link in cell"
	ReasonNoStrategy  = "unknown strategy"
)

type strategyFunc func(ctx context.Context, m *Miner, fd FieldDescriptor, cell docquery.Element) (Mined, string)

// strategies is the single place where extraction behaviour is chosen.
var strategies = map[Strategy]strategyFunc{
	PlainText:      minePlainText,
	AnchorText:     mineAnchorText,
	AlternateState: mineAlternateState,
	WellKnown:      mineWellKnown,
}

var (
	// actionText must open the element's text: "Access email", "Request
	// Mobile Number". A value that merely starts with the word does not count.
	actionText = regexp.MustCompile(`(?i)^(access|reveal|request|show|unlock|get)\b`)

	valuePatterns = map[string]*regexp.Regexp{
		"email":            regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`),
		"phoneRequestLink": regexp.MustCompile(`\+?[0-9][0-9\s().-]{6,}[0-9]`),
	}

	wellKnown = map[string]string{
		"linkedIn": LinkedInLocator,
	}
)

func minePlainText(ctx context.Context, m *Miner, fd FieldDescriptor, cell docquery.Element) (Mined, string) {
	els, err := m.query(ctx, cell, "*")
	if err != nil || len(els) == 0 {
		return Mined{}, ReasonNoCandidate
	}
	generated := false
	for _, el := range els {
		anc := m.describe(ctx, el)
		if len(anc) == 0 || !interactiveOrLeaf(anc[0]) {
			continue
		}
		loc, ok := Generate(anc, m.gen)
		if !ok {
			continue
		}
		generated = true
		if m.visible(ctx, loc) {
			return Mined{Locator: loc, State: StateText}, ""
		}
	}
	if generated {
		return Mined{}, ReasonNotVisible
	}
	return Mined{}, ReasonNoCandidate
}

func mineAnchorText(ctx context.Context, m *Miner, fd FieldDescriptor, cell docquery.Element) (Mined, string) {
	anchors, err := m.query(ctx, cell, "a")
	if err != nil || len(anchors) == 0 {
		return Mined{}, ReasonNoAnchor
	}
	for _, a := range anchors {
		loc, ok := Generate(m.describe(ctx, a), m.gen)
		if !ok {
			continue
		}
		nested, _ := m.query(ctx, a, "*")
		for _, el := range nested {
			anc := m.describe(ctx, el)
			if len(anc) == 0 {
				continue
			}
			// Only the nested node itself: climbing would land on the anchor.
			inner, ok := Generate(anc[:1], m.gen)
			if !ok {
				continue
			}
			compound := loc + " " + inner
			if m.visible(ctx, compound) {
				return Mined{Locator: compound, State: StateText}, ""
			}
		}
		if m.visible(ctx, loc) {
			return Mined{Locator: loc, State: StateText}, ""
		}
	}
	return Mined{}, ReasonNotVisible
}

func mineAlternateState(ctx context.Context, m *Miner, fd FieldDescriptor, cell docquery.Element) (Mined, string) {
	pattern := valuePatterns[fd.Field]
	actions, _ := m.query(ctx, cell, `button, a, [role="button"]`)
	for _, el := range actions {
		text, _ := m.text(ctx, el)
		if !isActionText(text, pattern) {
			continue
		}
		if loc, ok := Generate(m.describe(ctx, el), m.gen); ok && m.visible(ctx, loc) {
			return Mined{Locator: loc, State: StateAction}, ""
		}
	}

	els, _ := m.query(ctx, cell, "*")
	for _, el := range els {
		anc := m.describe(ctx, el)
		if len(anc) == 0 || !interactiveOrLeaf(anc[0]) {
			continue
		}
		if pattern != nil {
			text, _ := m.text(ctx, el)
			if !pattern.MatchString(text) {
				continue
			}
		}
		if loc, ok := Generate(anc, m.gen); ok && m.visible(ctx, loc) {
			return Mined{Locator: loc, State: StateText}, ""
		}
	}
	return Mined{}, ReasonNoCandidate
}

// isActionText reports whether text reads as an action label rather than a
// revealed value.
func isActionText(text string, value *regexp.Regexp) bool {
	text = strings.TrimSpace(text)
	if !actionText.MatchString(text) || strings.Contains(text, "@") {
		return false
	}
	return value == nil || !value.MatchString(text)
}

func mineWellKnown(ctx context.Context, m *Miner, fd FieldDescriptor, cell docquery.Element) (Mined, string) {
	loc, ok := wellKnown[fd.Field]
	if !ok {
		return Mined{}, ReasonNoStrategy
	}
	els, err := m.query(ctx, cell, loc)
	if err != nil || len(els) == 0 {
		return Mined{}, ReasonNoProfile
	}
	return Mined{Locator: loc, State: StateText}, ""
}

var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
}

func interactiveOrLeaf(n docquery.Node) bool {
	if interactiveTags[n.Tag] || n.ChildElements == 0 {
		return true
	}
	role, _ := n.Attr("role")
	return role == "button" || role == "link"
}

// cellBoundary reports whether n is a table cell. Generated locators never
// climb to or past the cell.
func cellBoundary(n docquery.Node) bool {
	if n.Tag == "td" || n.Tag == "th" {
		return true
	}
	role, _ := n.Attr("role")
	return role == "cell" || role == "gridcell"
}
