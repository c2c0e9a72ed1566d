// Package testutil contains a fake CAS server + portal used by the tests of the auth,
// fetch, pagination and service packages.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	Username = "joao.silva"
	Password = "s3nh4-correta"

	CountLoginPage   = "login_page"
	CountLoginPost   = "login_post"
	CountTicket      = "ticket"
	CountPage        = "page"
	CountRedirected  = "redirected"
	casLoginPath     = "/sso-server/login"
	casServicePath   = "/sipac/login/cas"
	portalLandingUrl = "/sipac/portal"
)

// Knobs inject failures into the fake portal, the zero value emulates a well-behaved portal.
type Knobs struct {
	// OmitTokens removes lt/execution from the login form.
	OmitTokens bool
	// LoginStatus overrides the status code returned for a valid credentials post.
	LoginStatus int
	// OmitTicketCookie skips the CASTGC cookie on the login redirect.
	OmitTicketCookie bool
	// TicketStatus overrides the status code returned by ticket validation.
	TicketStatus int
	// LoginDelay sleeps before answering the login page.
	LoginDelay time.Duration
	// LoginLatin1 serves the login pages encoded as ISO-8859-1.
	LoginLatin1 bool
	// BareContentType leaves the charset out of the Content-Type of the login pages.
	BareContentType bool
}

// Portal is an httptest server playing both the CAS login server and the portal.
type Portal struct {
	Server *httptest.Server

	mutex    sync.Mutex
	knobs    Knobs
	sessions map[string]bool
	tickets  map[string]bool
	counters map[string]int
	serial   int
}

// Configure changes the failure knobs of the portal.
func (p *Portal) Configure(fn func(k *Knobs)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	fn(&p.knobs)
}

func (p *Portal) currentKnobs() Knobs {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.knobs
}

func NewPortal() *Portal {
	p := &Portal{
		sessions: map[string]bool{},
		tickets:  map[string]bool{},
		counters: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(casLoginPath, p.handleLogin)
	mux.HandleFunc(casServicePath, p.handleTicket)
	mux.HandleFunc(portalLandingUrl, p.Protect(func(w http.ResponseWriter, r *http.Request) {
		WriteLatin1(w, "<html><body><h1>Portal Administrativo</h1></body></html>")
	}))
	p.Server = httptest.NewServer(mux)

	return p
}

func (p *Portal) Close() {
	p.Server.Close()
}

// URL resolves a path against the server url.
func (p *Portal) URL(path string) string {
	return p.Server.URL + path
}

func (p *Portal) ServiceUrl() string {
	return p.URL(casServicePath)
}

func (p *Portal) LoginUrl() string {
	return p.URL(casLoginPath) + "?service=" + url.QueryEscape(p.ServiceUrl())
}

func (p *Portal) count(name string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.counters[name]++
}

// Count returns how many times a given kind of request was served.
func (p *Portal) Count(name string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.counters[name]
}

// Requests returns the total amount of requests that reached the server.
func (p *Portal) Requests() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	total := 0
	for _, n := range p.counters {
		total += n
	}
	return total
}

func (p *Portal) next(prefix string) string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.serial++
	return fmt.Sprintf("%s-%d", prefix, p.serial)
}

// ExpireSessions invalidates every portal session handed out so far.
func (p *Portal) ExpireSessions() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions = map[string]bool{}
}

// Sessions returns the amount of live portal sessions.
func (p *Portal) Sessions() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.sessions)
}

func (p *Portal) validSession(r *http.Request) bool {
	cookie, err := r.Cookie("JSESSIONID")
	if err != nil {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sessions[cookie.Value]
}

const loginFormTemplate = `<!DOCTYPE html>
<html lang="pt-br">
<head><meta charset="UTF-8"><title>Autenticação Integrada</title></head>
<body>
%s
<form id="fm1" method="post">
  <input name="username" type="text" value="" />
  <input name="password" type="password" value="" />
  %s
  <input type="hidden" name="_eventId" value="submit" />
</form>
</body>
</html>`

func (p *Portal) loginForm(message string) string {
	tokens := `<input type="hidden" name="lt" value="LT-42" />
  <input type="hidden" name="execution" value="e1s1" />`
	if p.currentKnobs().OmitTokens {
		tokens = ""
	}
	return fmt.Sprintf(loginFormTemplate, message, tokens)
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p.count(CountLoginPage)
		if delay := p.currentKnobs().LoginDelay; delay > 0 {
			time.Sleep(delay)
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: p.next("CAS"), Path: casLoginPath})
		p.writeLogin(w, p.loginForm(""))
	case http.MethodPost:
		p.count(CountLoginPost)
		knobs := p.currentKnobs()
		err := r.ParseForm()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("lt") != "LT-42" || r.PostForm.Get("execution") != "e1s1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.PostForm.Get("username") != Username || r.PostForm.Get("password") != Password {
			p.writeLogin(w, p.loginForm(`<div class="errors">Usuário e/ou senha inválidos</div>`))
			return
		}
		if knobs.LoginStatus != 0 {
			w.WriteHeader(knobs.LoginStatus)
			return
		}
		if !knobs.OmitTicketCookie {
			http.SetCookie(w, &http.Cookie{Name: "CASTGC", Value: p.next("TGT"), Path: "/sso-server"})
		}
		ticket := p.next("ST")
		p.mutex.Lock()
		p.tickets[ticket] = true
		p.mutex.Unlock()

		location := r.URL.Query().Get("service")
		if location == "" {
			location = p.ServiceUrl()
		}
		http.Redirect(w, r, location+"?ticket="+ticket, http.StatusFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (p *Portal) writeLogin(w http.ResponseWriter, body string) {
	knobs := p.currentKnobs()
	name := "UTF-8"
	encoded := []byte(body)
	if knobs.LoginLatin1 {
		name = "ISO-8859-1"
		latin1, err := charmap.ISO8859_1.NewEncoder().String(body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		encoded = []byte(latin1)
	}
	if knobs.BareContentType {
		w.Header().Set("Content-Type", "text/html")
	} else {
		w.Header().Set("Content-Type", "text/html; charset="+name)
	}
	w.Write(encoded)
}

func (p *Portal) handleTicket(w http.ResponseWriter, r *http.Request) {
	p.count(CountTicket)
	if status := p.currentKnobs().TicketStatus; status != 0 {
		w.WriteHeader(status)
		return
	}
	if !strings.Contains(r.Header.Get("Cookie"), "CASTGC=") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ticket := r.URL.Query().Get("ticket")
	p.mutex.Lock()
	valid := p.tickets[ticket]
	delete(p.tickets, ticket)
	p.mutex.Unlock()
	if !valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	session := p.next("APP")
	p.mutex.Lock()
	p.sessions[session] = true
	p.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: session, Path: "/"})
	http.Redirect(w, r, portalLandingUrl, http.StatusFound)
}

// Protect wraps a handler so it is only served to a valid portal session, other requests
// are redirected to the CAS login page like the real portal does.
func (p *Portal) Protect(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.validSession(r) {
			p.count(CountRedirected)
			http.Redirect(w, r, p.LoginUrl(), http.StatusFound)
			return
		}
		p.count(CountPage)
		handler(w, r)
	}
}

// Handle registers a protected portal page.
func (p *Portal) Handle(path string, handler http.HandlerFunc) {
	p.Server.Config.Handler.(*http.ServeMux).HandleFunc(path, p.Protect(handler))
}

// HandlePublic registers a page that is served regardless of the session.
func (p *Portal) HandlePublic(path string, handler http.HandlerFunc) {
	p.Server.Config.Handler.(*http.ServeMux).HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		p.count(CountPage)
		handler(w, r)
	})
}

// WriteLatin1 writes an html body encoded as ISO-8859-1 like the portal does.
func WriteLatin1(w http.ResponseWriter, body string) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
	w.Write([]byte(encoded))
}
