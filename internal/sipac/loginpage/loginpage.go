// Package loginpage knows what the CAS login page looks like. The same Detector is used to
// read the login form during authentication and to notice that a page fetch was answered
// with the login page (an expired session).
package loginpage

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"sipac-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var DefaultExpiredMarkers = []string{
	"sua sessão expirou",
	"sessão expirada",
	"efetue o login novamente",
}

var DefaultInvalidCredentialsMarkers = []string{
	"usuário e/ou senha inválidos",
	"credenciais inválidas",
	"invalid credentials",
}

var ErrMissingTokens = errors.New("login form is missing the lt/execution tokens")

// Tokens are the hidden inputs of the CAS login form that must be echoed back when
// posting credentials.
type Tokens struct {
	Lt        string
	Execution string
}

type Options struct {
	// LoginUrl is the CAS login endpoint, ex. https://autenticacao.ufrn.br/sso-server/login
	LoginUrl string
	// ExpiredMarkers are snippets of text that only appear on pages served to an expired
	// session, matched ignoring case and accents. Defaults to DefaultExpiredMarkers.
	ExpiredMarkers []string
	// InvalidCredentialsMarkers are snippets of text the login page shows after a rejected
	// username/password, matched like ExpiredMarkers. Defaults to DefaultInvalidCredentialsMarkers.
	InvalidCredentialsMarkers []string
}

type Detector struct {
	loginUrl           *url.URL
	expired            []string
	invalidCredentials []string
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = textutil.NormalizeName(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func NewDetector(opts Options) (Detector, error) {
	loginUrl, err := url.Parse(opts.LoginUrl)
	if err != nil {
		return Detector{}, fmt.Errorf("parse login url: %w", err)
	}
	if loginUrl.Host == "" {
		return Detector{}, fmt.Errorf("login url must be absolute: %q", opts.LoginUrl)
	}

	expired := opts.ExpiredMarkers
	if len(expired) == 0 {
		expired = DefaultExpiredMarkers
	}
	invalid := opts.InvalidCredentialsMarkers
	if len(invalid) == 0 {
		invalid = DefaultInvalidCredentialsMarkers
	}

	return Detector{
		loginUrl:           loginUrl,
		expired:            normalizeAll(expired),
		invalidCredentials: normalizeAll(invalid),
	}, nil
}

func (d Detector) LoginUrl() *url.URL {
	copied := *d.loginUrl
	return &copied
}

// IsLoginUrl reports whether u points to the CAS login endpoint.
func (d Detector) IsLoginUrl(u *url.URL) bool {
	if u == nil {
		return false
	}
	if !strings.EqualFold(u.Hostname(), d.loginUrl.Hostname()) {
		return false
	}
	return strings.HasPrefix(u.Path, d.loginUrl.Path)
}

// containsAny matches markers ignoring case, accents, whitespace and html entities, so
// "Sua sess&atilde;o\n expirou" still matches "sua sessão expirou".
func containsAny(body string, markers []string) bool {
	return textutil.MatchName(html.UnescapeString(body), markers)
}

func hasLoginForm(doc *goquery.Document) bool {
	return doc.Find("input[name=lt]").Length() > 0 &&
		doc.Find("input[name=execution]").Length() > 0
}

// IsLoginPage is the single check for "this response is the login page instead of the
// requested resource": the final url is the login endpoint, the body carries an expired
// session marker, or the body contains the CAS form fields.
func (d Detector) IsLoginPage(finalUrl *url.URL, body string) bool {
	if d.IsLoginUrl(finalUrl) {
		return true
	}
	if containsAny(body, d.expired) {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	return hasLoginForm(doc)
}

// HasInvalidCredentials reports whether the login page body says the credentials were rejected.
func (d Detector) HasInvalidCredentials(body string) bool {
	return containsAny(body, d.invalidCredentials)
}

// ParseTokens reads the lt/execution hidden inputs of the login form.
func (d Detector) ParseTokens(body string) (Tokens, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Tokens{}, fmt.Errorf("parse login page: %w", err)
	}
	tokens := Tokens{
		Lt:        doc.Find("input[name=lt]").AttrOr("value", ""),
		Execution: doc.Find("input[name=execution]").AttrOr("value", ""),
	}
	if tokens.Lt == "" || tokens.Execution == "" {
		return Tokens{}, ErrMissingTokens
	}
	return tokens, nil
}
