// Package auth owns the single logical session against the portal. It performs the CAS
// handshake, caches the resulting cookies in a session.Store and hands them out to the
// fetchers, which only ever read cookies or ask for an invalidation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sipac-backend/internal/components/assert"
	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/sipac/httpclient"
	"sipac-backend/internal/sipac/loginpage"
	"sipac-backend/internal/sipac/session"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sipac/auth")

const (
	report_manager_cookies      = "manager.cookies"
	report_manager_authenticate = "manager.authenticate"
	report_manager_invalidate   = "manager.invalidate"
	report_manager_refresh      = "manager.refresh"
)

// State is the position of the manager in its Idle -> Authenticating -> Authenticated cycle.
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	Username string
	Password string
	// RetryLimit bounds both the attempt number callers may pass to Cookies and the
	// consecutive authentication failures, defaults to 3.
	RetryLimit int
	// CookieTTL is how long a freshly authenticated cookie set is trusted, defaults to 30 minutes.
	CookieTTL time.Duration
	// TicketCookie is the CAS ticket granting cookie, defaults to CASTGC.
	TicketCookie string
	// FailureCooldown is how long the consecutive failure counter is kept after the latest
	// failure, once it passes authentication is attempted again. Defaults to 10 minutes.
	FailureCooldown time.Duration
	// LoginCharset decodes CAS login pages whose Content-Type names no charset, defaults
	// to utf-8.
	LoginCharset string
	Http         httpclient.Options
}

func (o Options) withDefaults() Options {
	if o.RetryLimit <= 0 {
		o.RetryLimit = 3
	}
	if o.CookieTTL <= 0 {
		o.CookieTTL = time.Minute * 30
	}
	if o.FailureCooldown <= 0 {
		o.FailureCooldown = time.Minute * 10
	}
	if o.TicketCookie == "" {
		o.TicketCookie = "CASTGC"
	}
	if o.LoginCharset == "" {
		o.LoginCharset = "utf-8"
	}
	return o
}

// Manager is the only writer of the session store. Cache reads, invalidations and writes
// happen under one mutex, so a caller can never receive a set that is concurrently being
// cleared and concurrent cache misses result in a single handshake.
//
// Forced handshakes (Authenticate, Refresh) run outside of that mutex, one at a time, so
// cache hits are served while a refresh is in flight.
type Manager struct {
	opts     Options
	http     *resty.Client
	decoder  httpclient.Decoder
	detector loginpage.Detector
	store    session.Store
	time     chrono.TimeAPI
	tel      telemetry.API

	mutex  sync.Mutex
	forced sync.Mutex
	state  atomic.Int32
}

func NewManager(
	store session.Store,
	detector loginpage.Detector,
	time chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) (*Manager, error) {
	assert.NotNil(store)
	assert.NotNil(time)
	assert.NotNil(tel)

	opts = opts.withDefaults()
	tel = telemetry.NewScopedAPI("sipac_auth", tel)

	decoder, err := httpclient.NewDecoder(opts.LoginCharset)
	if err != nil {
		return nil, err
	}

	httpOpts := opts.Http
	httpOpts.FollowRedirects = false

	return &Manager{
		opts:     opts,
		http:     httpclient.New(httpOpts, tel),
		decoder:  decoder,
		detector: detector,
		store:    store,
		time:     time,
		tel:      tel,
	}, nil
}

func (m *Manager) RetryLimit() int {
	return m.opts.RetryLimit
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// Cookies returns the cached session cookies, performing a full authentication when there
// are none. `attempt` is the caller's retry number, no authentication is made once it (or
// the amount of consecutive failed authentications) reaches the retry limit.
func (m *Manager) Cookies(ctx context.Context, attempt int) (session.CookieSet, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	set, err := m.store.Get(ctx)
	if err == nil {
		sessionCacheLookups.WithLabelValues("hit").Inc()
		return set, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		m.tel.ReportBroken(report_manager_cookies, fmt.Errorf("store get: %w", err))
	}
	sessionCacheLookups.WithLabelValues("miss").Inc()

	failures, err := m.store.Failures(ctx)
	if err != nil {
		m.tel.ReportBroken(report_manager_cookies, fmt.Errorf("store failures: %w", err))
	}
	if attempt >= m.opts.RetryLimit || failures >= m.opts.RetryLimit {
		return session.CookieSet{}, fmt.Errorf(
			"%w: attempt %d, %d consecutive failures, limit %d",
			ErrAuthenticationExhausted, attempt, failures, m.opts.RetryLimit,
		)
	}

	set, err = m.authenticate(ctx)
	return m.commitLocked(ctx, set, err)
}

// Authenticate performs a full authentication regardless of the cached cookies and of
// the failure counter. The previous set keeps being served until the new one is stored.
func (m *Manager) Authenticate(ctx context.Context) (session.CookieSet, error) {
	m.forced.Lock()
	defer m.forced.Unlock()

	set, err := m.authenticate(ctx)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.commitLocked(ctx, set, err)
}

// authenticate runs the handshake without touching the store.
func (m *Manager) authenticate(ctx context.Context) (session.CookieSet, error) {
	ctx, span := tracer.Start(ctx, "manager:authenticate")
	defer span.End()

	m.state.Store(int32(StateAuthenticating))

	set, err := m.handshake(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		return session.CookieSet{}, err
	}
	span.SetAttributes(attribute.Int("auth.cookies", len(set.Cookies)))
	return set, nil
}

// commitLocked stores the outcome of a handshake, it must be called with the mutex held.
func (m *Manager) commitLocked(ctx context.Context, set session.CookieSet, err error) (session.CookieSet, error) {
	if err != nil {
		// no half-valid cookie set may survive a failed handshake
		clearErr := m.store.ClearCookies(ctx)
		if clearErr != nil {
			m.tel.ReportBroken(report_manager_authenticate, fmt.Errorf("store clear: %w", clearErr))
		}
		failures, countErr := m.store.AddFailure(ctx, m.opts.FailureCooldown)
		if countErr != nil {
			m.tel.ReportBroken(report_manager_authenticate, fmt.Errorf("store add failure: %w", countErr))
		}
		m.state.Store(int32(StateIdle))
		authAttempts.WithLabelValues("failure").Inc()

		if errors.Is(err, ErrInvalidCredentials) {
			m.tel.ReportWarning(report_manager_authenticate, err, failures)
		} else {
			m.tel.ReportBroken(report_manager_authenticate, err, failures)
		}
		return session.CookieSet{}, err
	}

	storeErr := m.store.Set(ctx, set)
	if storeErr != nil {
		m.tel.ReportBroken(report_manager_authenticate, fmt.Errorf("store set: %w", storeErr))
	}
	m.state.Store(int32(StateAuthenticated))
	authAttempts.WithLabelValues("success").Inc()
	m.tel.ReportDebug(report_manager_authenticate, set.Names(), set.ExpiresAt)

	return set, nil
}

// Invalidate drops the cached cookies and resets the failure counter. It is idempotent
// and never fails, store errors are only reported.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	err := m.store.Clear(ctx)
	if err != nil {
		m.tel.ReportBroken(report_manager_invalidate, fmt.Errorf("store clear: %w", err))
	}
	m.state.Store(int32(StateIdle))
	sessionInvalidations.Inc()
}

// Refresh proactively authenticates, failures are reported and swallowed.
func (m *Manager) Refresh(ctx context.Context) {
	_, err := m.Authenticate(ctx)
	if err != nil {
		m.tel.ReportWarning(report_manager_refresh, err)
	}
}

// ScheduleRefresh registers Refresh on a cron spec (ex. "0 7-18 * * 1-5" for every hour of
// business hours on weekdays), each run is bounded by `timeout`.
func (m *Manager) ScheduleRefresh(cron chrono.CronAPI, spec string, timeout time.Duration) error {
	return cron.Cron(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		m.Refresh(ctx)
	})
}
