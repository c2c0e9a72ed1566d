// Package parsers contains the generic page parsers registered by the server and the cli.
package parsers

import (
	"net/url"
	"strings"

	"sipac-backend/internal/sipac/parser"
	"sipac-backend/lib/htmlutil"
	"sipac-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	DocumentKey = "default"
	TableKey    = "table"
)

// Register adds the generic parsers to a registry.
func Register(r *parser.Registry, tableSelector string) {
	r.Register(DocumentKey, Document{})
	r.Register(TableKey, Table{Selector: tableSelector})
}

var messageSelector = strings.Join([]string{
	"#painel-erros li",
	"ul.erros li",
	"ul.info li",
	"ul.warning li",
	"div.alerta",
}, ", ")

func load(body string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		// goquery only fails when reading the input, an empty document keeps the
		// parsers total
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return doc
}

func pageTitle(doc *goquery.Document) string {
	for _, selector := range []string{"#conteudo h2", "h2", "h3", "title"} {
		text := htmlutil.SelectionText(doc.Find(selector).First())
		if text != "" {
			return text
		}
	}
	return ""
}

func messages(doc *goquery.Document) []string {
	out := []string{}
	doc.Find(messageSelector).Each(func(_ int, s *goquery.Selection) {
		text := htmlutil.SelectionText(s)
		if text != "" {
			out = append(out, text)
		}
	})
	return out
}

func isLabelCell(s *goquery.Selection) bool {
	return goquery.NodeName(s) == "th" || s.HasClass("rotulo") || s.HasClass("label")
}

// fields collects label/value pairs out of "th + td", "td.rotulo + td" and "dt + dd"
// layouts. The first occurrence of a key wins.
func fields(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	add := func(label, value *goquery.Selection) {
		key := textutil.CamelKey(htmlutil.SelectionText(label))
		if key == "" {
			return
		}
		if _, exists := out[key]; exists {
			return
		}
		out[key] = htmlutil.SelectionText(value)
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("th, td")
		for i := 0; i+1 < cells.Length(); i++ {
			label := cells.Eq(i)
			value := cells.Eq(i + 1)
			if isLabelCell(label) && !isLabelCell(value) {
				add(label, value)
				i++
			}
		}
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() > 0 {
			add(dt, dd)
		}
	})
	return out
}

// Document is the parser for single (non list) pages: title, portal messages, label/value
// fields and links.
type Document struct{}

func (Document) Parse(html string, sourceUrl string) parser.Result {
	doc := load(html)
	// an unparsable source url leaves the links unresolved
	base, _ := url.Parse(sourceUrl)

	return parser.Result{
		Data: map[string]any{
			"title":    pageTitle(doc),
			"messages": messages(doc),
			"fields":   fields(doc),
			"links":    htmlutil.GetAnchors(doc.Find("a[href]"), base),
		},
	}
}
