package mining

import (
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/locguard/docquery"
)

// DefaultClassPrefix is the semantic class prefix of the target UI framework.
const DefaultClassPrefix = "zp_"

// DefaultTestIDAttributes are the stable test-identifier attributes, in
// priority order.
var DefaultTestIDAttributes = []string{"data-testid", "data-test-id", "data-test", "data-cy"}

// GeneratorOptions tunes Generate.
type GeneratorOptions struct {
	ClassPrefix      string
	TestIDAttributes []string

	// MaxAncestors bounds the upward walk when the element itself yields
	// nothing. Default 3.
	MaxAncestors int
}

func (o *GeneratorOptions) defaults() {
	if o.ClassPrefix == "" {
		o.ClassPrefix = DefaultClassPrefix
	}
	if len(o.TestIDAttributes) == 0 {
		o.TestIDAttributes = DefaultTestIDAttributes
	}
	if o.MaxAncestors <= 0 {
		o.MaxAncestors = 3
	}
}

var (
	cssIdent    = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)
	digitRun    = regexp.MustCompile(`[0-9]{4,}`)
	cssStringEs = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// Generate proposes a locator for the first node of anc, walking up through
// at most opts.MaxAncestors ancestors when the node yields no candidate.
// It returns false when nothing qualifies, which is a normal outcome.
//
// Priority at each node, first success wins: stable test-id attribute,
// non-volatile unique id, prefixed semantic class (disambiguated with a
// second prefixed class when siblings share the first), role attribute.
func Generate(anc docquery.Ancestry, opts GeneratorOptions) (string, bool) {
	opts.defaults()
	for i, n := range anc {
		if i > opts.MaxAncestors {
			break
		}
		if loc, ok := generateNode(n, opts); ok {
			return loc, true
		}
	}
	return "", false
}

func generateNode(n docquery.Node, opts GeneratorOptions) (string, bool) {
	tag := strings.ToLower(n.Tag)
	if tag == "" {
		return "", false
	}

	for _, attr := range opts.TestIDAttributes {
		if v, ok := n.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return tag + `[` + attr + `="` + cssStringEs.Replace(v) + `"]`, true
		}
	}

	if id, ok := n.Attr("id"); ok && stableID(id) && n.IDCount == 1 {
		return "#" + id, true
	}

	classes := prefixed(n.Classes, opts.ClassPrefix)
	if loc, ok := classLocator(n, classes); ok {
		return loc, true
	}

	if role, ok := n.Attr("role"); ok && strings.TrimSpace(role) != "" {
		sel := `[role="` + cssStringEs.Replace(role) + `"]`
		if len(classes) == 0 {
			return tag + sel, true
		}
		for _, c := range classes {
			sel += "." + c
		}
		return sel, true
	}
	return "", false
}

func stableID(id string) bool {
	if id == "" || strings.Contains(id, ":") || digitRun.MatchString(id) {
		return false
	}
	return cssIdent.MatchString(id)
}

// prefixed returns the classes carrying prefix, longest first. Ties keep
// document order.
func prefixed(classes []string, prefix string) []string {
	var out []string
	for _, c := range classes {
		if strings.HasPrefix(c, prefix) && cssIdent.MatchString(c) && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

func classLocator(n docquery.Node, classes []string) (string, bool) {
	if len(classes) == 0 {
		return "", false
	}
	primary := classes[0]
	if n.SiblingClassCounts[primary] == 0 {
		return "." + primary, true
	}

	// Siblings share the primary class: pick the remaining class that the
	// fewest siblings share.
	var second string
	best := -1
	for _, c := range classes[1:] {
		shared := n.SiblingClassCounts[c]
		if best < 0 || shared < best {
			second, best = c, shared
		}
	}
	if second == "" {
		return "", false
	}
	return "." + primary + "." + second, true
}
