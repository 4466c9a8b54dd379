package browse

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// chromeTags hold page furniture that never belongs in readable text.
// Head is excluded too since the title is pulled out on its own.
var chromeTags = map[atom.Atom]struct{}{
	atom.Script:   {},
	atom.Style:    {},
	atom.Noscript: {},
	atom.Iframe:   {},
	atom.Svg:      {},
	atom.Head:     {},
	atom.Nav:      {},
	atom.Header:   {},
	atom.Footer:   {},
}

var blockTags = map[atom.Atom]struct{}{
	atom.P: {}, atom.Div: {}, atom.Section: {}, atom.Article: {},
	atom.Main: {}, atom.H1: {}, atom.H2: {}, atom.H3: {}, atom.H4: {},
	atom.H5: {}, atom.H6: {}, atom.Blockquote: {}, atom.Pre: {},
	atom.Ul: {}, atom.Ol: {}, atom.Table: {}, atom.Tr: {}, atom.Dl: {},
	atom.Dt: {}, atom.Dd: {}, atom.Figure: {}, atom.Figcaption: {},
	atom.Details: {}, atom.Summary: {}, atom.Hr: {},
}

// extractHTML turns a serialized page into its title and readable text.
func extractHTML(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}

	var w pageWalker
	w.visit(doc)
	return w.title, cleanWhitespace(w.text.String())
}

// pageWalker accumulates readable text in one pass over the DOM,
// grabbing the first <title> it meets along the way.
type pageWalker struct {
	title string
	text  strings.Builder
}

func (w *pageWalker) visit(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		if n.DataAtom == atom.Title && w.title == "" {
			w.title = strings.TrimSpace(flatText(n))
		}
		if _, skip := chromeTags[n.DataAtom]; skip {
			return
		}
		if _, block := blockTags[n.DataAtom]; block && w.text.Len() > 0 {
			w.text.WriteString("\n\n")
		}
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			w.text.WriteString(t)
			w.text.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.text.WriteByte('\n')
	}
}

// flatText concatenates every text node under n.
func flatText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(flatText(c))
	}
	return b.String()
}

// cleanWhitespace collapses runs of spaces inside each line and folds
// repeated blank lines into one.
func cleanWhitespace(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags recovers bare text from markup the parser rejected.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		if z.Next() == html.ErrorToken {
			return cleanWhitespace(b.String())
		}
		if t := z.Token(); t.Type == html.TextToken {
			b.WriteString(t.Data)
			b.WriteByte(' ')
		}
	}
}
