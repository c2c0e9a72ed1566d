package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidRequest is returned before any network call for a request that cannot be sent.
var ErrInvalidRequest = errors.New("fetch: invalid request")

// Request describes one portal page. It is treated as a value, derived requests are made
// with Clone.
type Request struct {
	TargetUrl string
	// Method is GET or POST, defaults to GET.
	Method string
	// Body is merged into the query string of a GET, replacing parameters of the same name
	// already in TargetUrl, and form encoded for a POST.
	Body    url.Values
	Referer string
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Clone returns a copy of the request that shares no mutable state with r.
func (r Request) Clone() Request {
	out := r
	if r.Body != nil {
		out.Body = make(url.Values, len(r.Body))
		for k, v := range r.Body {
			out.Body[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Url returns the url that will actually be requested. For GET requests every body field
// replaces the query parameter of the same name, so a rewritten page number is the only
// one sent.
func (r Request) Url() (*url.URL, error) {
	u, err := url.Parse(r.TargetUrl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute: %q", ErrInvalidRequest, r.TargetUrl)
	}

	switch r.method() {
	case http.MethodGet:
		if len(r.Body) > 0 {
			query := u.Query()
			for k, values := range r.Body {
				query[k] = append([]string(nil), values...)
			}
			u.RawQuery = query.Encode()
		}
	case http.MethodPost:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, r.Method)
	}
	return u, nil
}
