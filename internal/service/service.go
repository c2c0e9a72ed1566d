// Package service is the inbound surface of the scraper: it turns page requests into
// fetches, aggregations and session operations.
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sipac-backend/internal/components/assert"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"
	"sipac-backend/internal/sipac/parsers"
	"sipac-backend/internal/sipac/session"
)

// Sessions is the part of the auth manager the service depends on.
type Sessions interface {
	Authenticate(ctx context.Context) (session.CookieSet, error)
	Invalidate(ctx context.Context)
}

type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, p parser.Parser, callerAttempt int) (parser.Result, error)
}

type Aggregator interface {
	FetchAll(ctx context.Context, req fetch.Request, p parser.Parser, pageField string) (paginate.ListResult, error)
}

type PageRequest struct {
	// TargetUrl is either absolute or relative to the portal base url.
	TargetUrl string
	Method    string
	Body      url.Values
	Referer   string
	// Parser is a registry key, defaults to the document parser.
	Parser string
	// PageField overrides the aggregator's page field for list requests.
	PageField string
}

// SessionInfo describes the current session without exposing cookie values.
type SessionInfo struct {
	Cookies   []string  `json:"cookies"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ServiceOptions struct {
	BaseUrl    string
	Parsers    *parser.Registry
	Sessions   Sessions
	Fetcher    Fetcher
	Aggregator Aggregator
}

type Service struct {
	baseUrl    *url.URL
	parsers    *parser.Registry
	sessions   Sessions
	fetcher    Fetcher
	aggregator Aggregator
}

func NewService(opts ServiceOptions) (Service, error) {
	assert.NotNil(opts.Parsers)
	assert.NotNil(opts.Sessions)
	assert.NotNil(opts.Fetcher)
	assert.NotNil(opts.Aggregator)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return Service{}, fmt.Errorf("parse base url: %w", err)
	}
	if !baseUrl.IsAbs() {
		return Service{}, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	return Service{
		baseUrl:    baseUrl,
		parsers:    opts.Parsers,
		sessions:   opts.Sessions,
		fetcher:    opts.Fetcher,
		aggregator: opts.Aggregator,
	}, nil
}

func (s Service) resolve(req PageRequest) (fetch.Request, parser.Parser, error) {
	if req.TargetUrl == "" {
		return fetch.Request{}, nil, fmt.Errorf("%w: empty target url", fetch.ErrInvalidRequest)
	}
	target, err := url.Parse(req.TargetUrl)
	if err != nil {
		return fetch.Request{}, nil, fmt.Errorf("%w: %w", fetch.ErrInvalidRequest, err)
	}

	key := req.Parser
	if key == "" {
		key = parsers.DocumentKey
	}
	p, err := s.parsers.Resolve(key)
	if err != nil {
		return fetch.Request{}, nil, err
	}

	resolved := s.baseUrl.ResolveReference(target)
	// session cookies must never leave the portal
	if !strings.EqualFold(resolved.Host, s.baseUrl.Host) {
		return fetch.Request{}, nil, fmt.Errorf(
			"%w: %q is outside of the portal %q",
			fetch.ErrInvalidRequest, resolved.Host, s.baseUrl.Host,
		)
	}

	return fetch.Request{
		TargetUrl: resolved.String(),
		Method:    req.Method,
		Body:      req.Body,
		Referer:   req.Referer,
	}, p, nil
}

// FetchPage fetches a single page and returns its parsed content untouched.
func (s Service) FetchPage(ctx context.Context, req PageRequest) (parser.Result, error) {
	fetchReq, p, err := s.resolve(req)
	if err != nil {
		return parser.Result{}, err
	}
	return s.fetcher.Fetch(ctx, fetchReq, p, 0)
}

// FetchPaginatedList fetches every page of a list and returns the concatenated items.
func (s Service) FetchPaginatedList(ctx context.Context, req PageRequest) (paginate.ListResult, error) {
	if req.Parser == "" {
		req.Parser = parsers.TableKey
	}
	fetchReq, p, err := s.resolve(req)
	if err != nil {
		return paginate.ListResult{}, err
	}
	return s.aggregator.FetchAll(ctx, fetchReq, p, req.PageField)
}

// ForceReauthenticate discards the cached session and logs in again.
func (s Service) ForceReauthenticate(ctx context.Context) (SessionInfo, error) {
	set, err := s.sessions.Authenticate(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{Cookies: set.Names(), ExpiresAt: set.ExpiresAt}, nil
}

// Logout drops the cached session.
func (s Service) Logout(ctx context.Context) {
	s.sessions.Invalidate(ctx)
}
