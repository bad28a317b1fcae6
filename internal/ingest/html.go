package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ahmedgfathy/contaboo/internal/quality"
)

// DefaultCardSelector matches the listing cards of common portal layouts.
const DefaultCardSelector = ".listing, .property, .property-card, [data-listing], article"

// HTMLImporter handles .html pages. Every listing card becomes one listing;
// a page without cards is one listing.
type HTMLImporter struct {
	Selector string
}

func (h *HTMLImporter) Format() string { return "html" }

// CanHandle returns true for HTML file extensions.
func (h *HTMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// Import parses an HTML file into listings. The analyzed input is the card
// markup; the stored message is its visible text.
func (h *HTMLImporter) Import(ctx context.Context, path string) ([]RawListing, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML %s: %w", path, err)
	}

	sel := h.Selector
	if sel == "" {
		sel = DefaultCardSelector
	}

	var listings []RawListing
	n := 0
	doc.Find(sel).Each(func(i int, s *goquery.Selection) {
		// nested matches belong to their outer card
		if s.ParentsFiltered(sel).Length() > 0 {
			return
		}
		n++
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		text := visibleText(s)
		if text == "" {
			return
		}
		listings = append(listings, RawListing{
			Message:       text,
			Input:         quality.Markup(markup),
			SourceFile:    absPath,
			SourceSection: fmt.Sprintf("card-%d", n),
		})
	})
	if n > 0 {
		return listings, nil
	}

	text := visibleText(doc.Find("body"))
	if text == "" {
		return nil, nil
	}
	return []RawListing{{
		Message:       text,
		Input:         quality.Markup(string(data)),
		SourceFile:    absPath,
		SourceLine:    1,
		SourceSection: "page",
	}}, nil
}

// blockElements end a line of visible text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true, atom.Tr: true, atom.Td: true,
	atom.Th: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true,
	atom.H6: true, atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Dt: true, atom.Dd: true,
}

// visibleText returns the whitespace-collapsed text a reader sees, one line
// per block element.
func visibleText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeVisible(&b, n)
	}
	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func writeVisible(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisible(b, c)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		b.WriteByte('\n')
	}
}

// MarkupText returns the visible text of an HTML fragment or document.
func MarkupText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}
	return visibleText(doc.Find("body"))
}
