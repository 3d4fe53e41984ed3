package mining

import (
	"testing"

	"github.com/hazyhaar/locguard/docquery"
)

func node(tag string, attrs map[string]string, classes ...string) docquery.Node {
	return docquery.Node{Tag: tag, Attributes: attrs, Classes: classes, SiblingClassCounts: map[string]int{}}
}

func TestGenerate_Priorities(t *testing.T) {
	shared := node("div", nil, "zp_cellPrimary", "zp_cell", "other")
	shared.SiblingClassCounts = map[string]int{"zp_cellPrimary": 3, "zp_cell": 1}

	lonely := node("li", map[string]string{"role": "row"}, "zp_item")
	lonely.SiblingClassCounts = map[string]int{"zp_item": 4}

	uniqueID := node("section", map[string]string{"id": "main"}, "zp_section")
	uniqueID.IDCount = 1

	dupID := node("section", map[string]string{"id": "main"})
	dupID.IDCount = 2

	volatile := node("div", map[string]string{"id": ":r1:"}, "zp_card")
	volatile.IDCount = 1

	digits := node("div", map[string]string{"id": "row-1234567", "role": "gridcell"})
	digits.IDCount = 1

	tests := []struct {
		name string
		anc  docquery.Ancestry
		want string
		ok   bool
	}{
		{"test id wins over id", docquery.Ancestry{func() docquery.Node {
			n := node("button", map[string]string{"data-testid": "save", "id": "btn"})
			n.IDCount = 1
			return n
		}()}, `button[data-testid="save"]`, true},
		{"test id quoting", docquery.Ancestry{node("div", map[string]string{"data-cy": `a"b`})}, `div[data-cy="a\"b"]`, true},
		{"unique id", docquery.Ancestry{uniqueID}, "#main", true},
		{"duplicate id falls through", docquery.Ancestry{dupID}, "", false},
		{"colon id is volatile", docquery.Ancestry{volatile}, ".zp_card", true},
		{"digit run id is volatile", docquery.Ancestry{digits}, `div[role="gridcell"]`, true},
		{"longest prefixed class", docquery.Ancestry{node("span", nil, "zp_a", "zp_longest", "x_longer_but_unprefixed")}, ".zp_longest", true},
		{"shared class disambiguated", docquery.Ancestry{shared}, ".zp_cellPrimary.zp_cell", true},
		{"shared class without second falls to role", docquery.Ancestry{lonely}, `[role="row"].zp_item`, true},
		{"nothing", docquery.Ancestry{node("span", nil, "plain")}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Generate(tt.anc, GeneratorOptions{})
			if ok != tt.ok || got != tt.want {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestGenerate_AncestorWalk(t *testing.T) {
	list := node("ul", map[string]string{"id": "list"})
	list.IDCount = 1
	plain := node("span", nil)

	got, ok := Generate(docquery.Ancestry{plain, node("li", nil), list}, GeneratorOptions{})
	if !ok || got != "#list" {
		t.Errorf("got (%q, %v), want #list", got, ok)
	}

	// Four ancestors up is out of reach.
	far := docquery.Ancestry{plain, plain, plain, plain, list}
	if got, ok := Generate(far, GeneratorOptions{}); ok {
		t.Errorf("got %q, want no locator beyond 3 ancestors", got)
	}
}

func TestGenerate_CustomPrefix(t *testing.T) {
	n := node("div", nil, "zp_card", "ui-card-body")
	got, ok := Generate(docquery.Ancestry{n}, GeneratorOptions{ClassPrefix: "ui-"})
	if !ok || got != ".ui-card-body" {
		t.Errorf("got (%q, %v), want .ui-card-body", got, ok)
	}
}
