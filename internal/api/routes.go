package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Route maps an inbound path to a portal page.
type Route struct {
	Name string `json:"name"`
	// Path is a gorilla/mux path template, ex. "/processos/{id}".
	Path string `json:"path"`
	// Target is the portal url (absolute or relative to the portal base url), "{var}"
	// placeholders are replaced with the path variables.
	Target string `json:"target"`
	// Method is the method used against the portal, defaults to GET.
	Method    string `json:"method"`
	Parser    string `json:"parser"`
	Paginated bool   `json:"paginated"`
	PageField string `json:"page_field"`
	// Body holds fixed fields sent to the portal, inbound query and form values are
	// merged over them.
	Body map[string]string `json:"body"`
}

var reservedPaths = map[string]bool{
	"/healthz":         true,
	"/metrics":         true,
	"/session":         true,
	"/session/refresh": true,
}

var placeholderRegex = regexp.MustCompile(`\{([^{}:]+)(?::[^{}]*)?\}`)

func (r Route) validate() error {
	if r.Name == "" {
		return errors.New("route without name")
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route %q: path must start with /", r.Name)
	}
	if reservedPaths[r.Path] {
		return fmt.Errorf("route %q: path %q is reserved", r.Name, r.Path)
	}
	if r.Target == "" {
		return fmt.Errorf("route %q: empty target", r.Name)
	}
	switch strings.ToUpper(r.Method) {
	case "", http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("route %q: unsupported method %q", r.Name, r.Method)
	}
	return nil
}

// target fills the placeholders of Target with path variables, escaped for the part of
// the url they appear in.
func (r Route) target(vars map[string]string) string {
	fill := func(template string, escape func(string) string) string {
		return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
			name := placeholderRegex.FindStringSubmatch(match)[1]
			value, ok := vars[name]
			if !ok {
				return match
			}
			return escape(value)
		})
	}

	path, query, hasQuery := strings.Cut(r.Target, "?")
	out := fill(path, url.PathEscape)
	if hasQuery {
		out += "?" + fill(query, url.QueryEscape)
	}
	return out
}

// body merges the inbound query and form values over the fixed fields.
func (r Route) body(req *http.Request) url.Values {
	out := url.Values{}
	for k, v := range r.Body {
		out.Set(k, v)
	}
	for k, values := range req.Form {
		out[k] = append([]string(nil), values...)
	}
	return out
}
