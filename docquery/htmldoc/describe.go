package htmldoc

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/locguard/docquery"
)

func describeNode(root, n *html.Node) docquery.Node {
	node := docquery.Node{
		Tag:                n.Data,
		Attributes:         make(map[string]string, len(n.Attr)),
		SiblingClassCounts: make(map[string]int),
	}
	for _, a := range n.Attr {
		node.Attributes[a.Key] = a.Val
	}
	node.Classes = strings.Fields(node.Attributes["class"])

	if n.Parent != nil {
		for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib == n || sib.Type != html.ElementNode {
				continue
			}
			sibClasses := classSet(sib)
			for _, c := range node.Classes {
				if sibClasses[c] {
					node.SiblingClassCounts[c]++
				}
			}
		}
	}

	if id := node.Attributes["id"]; id != "" {
		node.IDCount = countID(root, id)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			node.ChildElements++
		}
	}
	return node
}

func classSet(n *html.Node) map[string]bool {
	set := make(map[string]bool)
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				set[c] = true
			}
		}
	}
	return set
}

func countID(n *html.Node, id string) int {
	count := 0
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				count++
				break
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countID(c, id)
	}
	return count
}

func hiddenNode(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Title, atom.Meta:
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "type":
			if n.DataAtom == atom.Input && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
