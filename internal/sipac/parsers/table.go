package parsers

import (
	"fmt"
	"regexp"
	"strconv"

	"sipac-backend/internal/sipac/parser"
	"sipac-backend/lib/htmlutil"
	"sipac-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const DefaultTableSelector = "table.listagem"

var (
	// matched against accent stripped text, "Página 2 de 7"
	pageRegex = regexp.MustCompile(`(?i)pagina\s*(\d+)\s*de\s*(\d+)`)
	// "15 registros encontrados", "1.204 resultado(s)"
	totalRegex = regexp.MustCompile(`(?i)(\d[\d.]*)\s+(?:registros?|resultados?|itens|item)(?:\(s\))?\b`)
)

// Table is the parser for list pages, every row of the listing table becomes an item keyed
// by its column header.
type Table struct {
	// Selector finds the listing table, defaults to DefaultTableSelector.
	Selector string
}

func (t Table) selector() string {
	if t.Selector == "" {
		return DefaultTableSelector
	}
	return t.Selector
}

func columnKeys(table *goquery.Selection) []string {
	headers := table.Find("thead tr").Last().ChildrenFiltered("th, td")
	if headers.Length() == 0 {
		headers = table.Find("tr").First().ChildrenFiltered("th")
	}

	keys := make([]string, headers.Length())
	seen := map[string]int{}
	headers.Each(func(i int, s *goquery.Selection) {
		key := textutil.CamelKey(htmlutil.SelectionText(s))
		if key == "" {
			key = "col" + strconv.Itoa(i)
		}
		seen[key]++
		if seen[key] > 1 {
			key = fmt.Sprintf("%s%d", key, seen[key])
		}
		keys[i] = key
	})
	return keys
}

func rows(table *goquery.Selection, keys []string) []any {
	items := []any{}
	body := table.Find("tbody tr")
	if body.Length() == 0 {
		body = table.Find("tr")
	}
	body.Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		// group headers and footers span the whole table
		if cells.Length() != len(keys) {
			return
		}
		item := make(map[string]any, len(keys))
		cells.Each(func(i int, cell *goquery.Selection) {
			item[keys[i]] = htmlutil.SelectionText(cell)
		})
		items = append(items, item)
	})
	return items
}

// pagination reads "Página X de Y" and the total count out of the page text. A list page
// without page markers is reported as a single page.
func pagination(text string, items int) *parser.Pagination {
	text = textutil.StripAccents(text)
	p := &parser.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: items}

	match := pageRegex.FindStringSubmatch(text)
	if match != nil {
		current, err1 := strconv.Atoi(match[1])
		total, err2 := strconv.Atoi(match[2])
		if err1 == nil && err2 == nil && current >= 1 && total >= current {
			p.CurrentPage = current
			p.TotalPages = total
		}
	}

	match = totalRegex.FindStringSubmatch(text)
	if match != nil {
		total, err := textutil.ParseCount(match[1])
		if err == nil {
			p.TotalItems = total
		}
	}
	return p
}

func (t Table) Parse(html string, sourceUrl string) parser.Result {
	doc := load(html)
	data := map[string]any{
		"title":    pageTitle(doc),
		"messages": messages(doc),
	}

	table := doc.Find(t.selector()).First()
	if table.Length() == 0 {
		data["columns"] = []string{}
		data[parser.ItemsKey] = []any{}
		return parser.Result{Data: data, Pagination: pagination(htmlutil.SelectionText(doc.Selection), 0)}
	}

	keys := columnKeys(table)
	items := rows(table, keys)
	data["columns"] = keys
	data[parser.ItemsKey] = items

	return parser.Result{
		Data:       data,
		Pagination: pagination(htmlutil.SelectionText(doc.Selection), len(items)),
	}
}
