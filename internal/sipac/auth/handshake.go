package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sipac-backend/internal/sipac/session"
)

const (
	report_handshake_login_page  = "handshake.login-page"
	report_handshake_credentials = "handshake.credentials"
	report_handshake_ticket      = "handshake.ticket"
)

func cookieHeader(cookies ...[]session.Cookie) string {
	return session.CookieSet{Cookies: session.MergeCookies(cookies...)}.Header()
}

// handshake runs the CAS login from the login form to the portal session cookie.
//
// 1. GET login page -> cookies + lt/execution
// 2. POST credentials (no redirects) -> 302 to the ticket url + ticket granting cookie
// 3. GET ticket url (no redirects) -> 302 + portal session cookies
func (m *Manager) handshake(ctx context.Context) (session.CookieSet, error) {
	loginUrl := m.detector.LoginUrl()

	res, err := m.http.R().
		SetContext(ctx).
		Get(loginUrl.String())
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("get login page: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return session.CookieSet{}, fmt.Errorf(
			"%w: login page returned status %d",
			ErrLoginPageParse, res.StatusCode(),
		)
	}
	body, err := m.decoder.DecodeResponse(res.Header().Get("Content-Type"), res.Body())
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("%w: %w", ErrLoginPageParse, err)
	}
	tokens, err := m.detector.ParseTokens(body)
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("%w: %w", ErrLoginPageParse, err)
	}
	initial := session.FromHTTP(res.Cookies())
	m.tel.ReportDebug(report_handshake_login_page, session.CookieSet{Cookies: initial}.Names())

	form := url.Values{
		"username":  {m.opts.Username},
		"password":  {m.opts.Password},
		"lt":        {tokens.Lt},
		"execution": {tokens.Execution},
		"_eventId":  {"submit"},
		"submit":    {"Entrar"},
	}
	res, err = m.http.R().
		SetContext(ctx).
		SetHeader("Cookie", cookieHeader(initial)).
		SetFormDataFromValues(form).
		Post(loginUrl.String())
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("post credentials: %w", err)
	}

	switch res.StatusCode() {
	case http.StatusFound:
	case http.StatusOK:
		body, err := m.decoder.DecodeResponse(res.Header().Get("Content-Type"), res.Body())
		if err != nil {
			return session.CookieSet{}, fmt.Errorf("%w: %w", ErrAuthenticationRejected, err)
		}
		if m.detector.HasInvalidCredentials(body) {
			return session.CookieSet{}, ErrInvalidCredentials
		}
		if m.detector.IsLoginPage(res.RawResponse.Request.URL, body) {
			return session.CookieSet{}, fmt.Errorf("%w: login page served again", ErrAuthenticationRejected)
		}
		return session.CookieSet{}, fmt.Errorf("%w: credentials post was not redirected", ErrAuthenticationRejected)
	default:
		return session.CookieSet{}, fmt.Errorf(
			"%w: credentials post returned status %d",
			ErrAuthenticationRejected, res.StatusCode(),
		)
	}

	location := res.Header().Get("Location")
	if location == "" {
		return session.CookieSet{}, fmt.Errorf("%w: login redirect has no location", ErrTicketGrant)
	}
	ticketUrl, err := loginUrl.Parse(location)
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("%w: parse ticket url: %w", ErrTicketGrant, err)
	}
	granted := session.FromHTTP(res.Cookies())
	_, hasTicketCookie := session.CookieSet{Cookies: granted}.Get(m.opts.TicketCookie)
	if !hasTicketCookie {
		return session.CookieSet{}, fmt.Errorf("%w: missing %s cookie", ErrTicketGrant, m.opts.TicketCookie)
	}
	m.tel.ReportDebug(report_handshake_credentials, session.CookieSet{Cookies: granted}.Names())

	res, err = m.http.R().
		SetContext(ctx).
		SetHeader("Cookie", cookieHeader(initial, granted)).
		Get(ticketUrl.String())
	if err != nil {
		return session.CookieSet{}, fmt.Errorf("validate ticket: %w", err)
	}
	if res.StatusCode() != http.StatusFound {
		return session.CookieSet{}, fmt.Errorf(
			"%w: ticket validation returned status %d",
			ErrTicketGrant, res.StatusCode(),
		)
	}
	final := session.FromHTTP(res.Cookies())
	m.tel.ReportDebug(
		report_handshake_ticket,
		session.CookieSet{Cookies: final}.Names(),
		res.Header().Get("Location"),
	)

	return session.NewCookieSet(m.time.Now(), m.opts.CookieTTL, initial, granted, final), nil
}
