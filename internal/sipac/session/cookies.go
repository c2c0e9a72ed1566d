package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie is a single name=value pair sent back to the portal.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// FromHTTP converts the cookies of a response, cookies the server asks to delete
// (Max-Age < 0) and nameless cookies are dropped.
func FromHTTP(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.MaxAge < 0 {
			continue
		}
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// MergeCookies merges cookie lists in order. Names are compared case-insensitively, a later
// cookie overwrites the value of an earlier cookie with the same name but keeps its position.
func MergeCookies(lists ...[]Cookie) []Cookie {
	var merged []Cookie
	index := map[string]int{}
	for _, list := range lists {
		for _, c := range list {
			key := strings.ToLower(c.Name)
			i, ok := index[key]
			if ok {
				merged[i] = c
				continue
			}
			index[key] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}

// CookieSet is the set of session cookies for the portal together with the absolute time
// it stops being usable.
type CookieSet struct {
	Cookies   []Cookie  `json:"cookies"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCookieSet creates a deduplicated CookieSet that expires `ttl` after `now`.
func NewCookieSet(now time.Time, ttl time.Duration, cookies ...[]Cookie) CookieSet {
	return CookieSet{
		Cookies:   MergeCookies(cookies...),
		ExpiresAt: now.Add(ttl),
	}
}

func (s CookieSet) Empty() bool {
	return len(s.Cookies) == 0
}

func (s CookieSet) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Get returns the value of the cookie with the given name (case-insensitive).
func (s CookieSet) Get(name string) (string, bool) {
	for _, c := range s.Cookies {
		if strings.EqualFold(c.Name, name) {
			return c.Value, true
		}
	}
	return "", false
}

// Names returns the cookie names in order, it is safe to log.
func (s CookieSet) Names() []string {
	names := make([]string, len(s.Cookies))
	for i, c := range s.Cookies {
		names[i] = c.Name
	}
	return names
}

// Strings returns the cookies in "name=value" form.
func (s CookieSet) Strings() []string {
	out := make([]string, len(s.Cookies))
	for i, c := range s.Cookies {
		out[i] = c.String()
	}
	return out
}

// Header renders the set as the value of a Cookie request header.
func (s CookieSet) Header() string {
	return strings.Join(s.Strings(), "; ")
}
