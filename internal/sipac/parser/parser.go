// Package parser holds the contract between the fetch machinery and the page specific
// html extraction, along with the registry that maps parser keys to implementations.
package parser

// ItemsKey is the Result.Data key under which list pages store their rows.
const ItemsKey = "items"

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

// Result is the structured content of one page. Pagination is only set for list pages,
// a nil Pagination means the page is complete by itself.
type Result struct {
	Data       map[string]any `json:"data"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}

// Items returns the rows of a list page, nil when Data has no items.
func (r Result) Items() []any {
	switch items := r.Data[ItemsKey].(type) {
	case []any:
		return items
	case []map[string]any:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out
	}
	return nil
}

// Metadata returns a copy of Data without the items.
func (r Result) Metadata() map[string]any {
	out := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		if k == ItemsKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Parser extracts structured data out of a page.
//
// Parse must not fail on malformed or unexpected html, it returns whatever it could find
// and omits the rest.
type Parser interface {
	Parse(html string, sourceUrl string) Result
}

// Func adapts a plain function to a Parser.
type Func func(html string, sourceUrl string) Result

func (f Func) Parse(html string, sourceUrl string) Result {
	return f(html, sourceUrl)
}
