// Package fetch requests portal pages with the cached session cookies, recovering from
// expired sessions by invalidating and retrying.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sipac-backend/internal/components/assert"
	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/sipac/httpclient"
	"sipac-backend/internal/sipac/loginpage"
	"sipac-backend/internal/sipac/parser"
	"sipac-backend/internal/sipac/session"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sipac/fetch")

const (
	report_orchestrator_fetch     = "orchestrator.fetch"
	report_orchestrator_expired   = "orchestrator.expired"
	report_orchestrator_exhausted = "orchestrator.exhausted"
)

// Sessions is the part of the auth manager the orchestrator depends on.
type Sessions interface {
	Cookies(ctx context.Context, attempt int) (session.CookieSet, error)
	Invalidate(ctx context.Context)
	RetryLimit() int
}

type Options struct {
	// RetryLimit is the amount of tries made for a request that keeps hitting an expired
	// session, defaults to the retry limit of the session manager.
	RetryLimit int
	// BackoffBase is the linear backoff unit between tries, defaults to 500ms.
	BackoffBase time.Duration
	// Charset of portal pages whose Content-Type names none, defaults to iso-8859-1.
	Charset string
	Http    httpclient.Options
}

type Orchestrator struct {
	sessions Sessions
	detector loginpage.Detector
	http     *resty.Client
	decoder  httpclient.Decoder
	tel      telemetry.API

	retryLimit  int
	backoffBase time.Duration
}

func NewOrchestrator(
	sessions Sessions,
	detector loginpage.Detector,
	tel telemetry.API,
	opts Options,
) (*Orchestrator, error) {
	assert.NotNil(sessions)
	assert.NotNil(tel)

	if opts.RetryLimit <= 0 {
		opts.RetryLimit = sessions.RetryLimit()
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Millisecond * 500
	}
	if opts.Charset == "" {
		opts.Charset = httpclient.DefaultCharset
	}

	decoder, err := httpclient.NewDecoder(opts.Charset)
	if err != nil {
		return nil, err
	}

	tel = telemetry.NewScopedAPI("sipac_fetch", tel)
	httpOpts := opts.Http
	httpOpts.FollowRedirects = true

	return &Orchestrator{
		sessions:    sessions,
		detector:    detector,
		http:        httpclient.New(httpOpts, tel),
		decoder:     decoder,
		tel:         tel,
		retryLimit:  opts.RetryLimit,
		backoffBase: opts.BackoffBase,
	}, nil
}

// Fetch requests a page and hands it to `p`. When the portal answers with the login page the
// cached session is invalidated and the request is retried with fresh cookies, up to the
// retry limit with linear backoff. Any other failure ends the call immediately.
//
// `callerAttempt` is the retry number of the caller (ex. the pagination aggregator), it is
// only carried into errors and telemetry.
func (o *Orchestrator) Fetch(ctx context.Context, req Request, p parser.Parser, callerAttempt int) (parser.Result, error) {
	assert.NotNil(p)

	method := req.method()
	target, err := req.Url()
	if err != nil {
		return parser.Result{}, err
	}

	ctx, span := tracer.Start(ctx, "orchestrator:fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("fetch.url", target.String()),
		attribute.String("fetch.method", method),
		attribute.Int("fetch.caller_attempt", callerAttempt),
	)

	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	// `attempt` is the last attempt actually made
	exhausted := func(attempt int, cause error) (parser.Result, error) {
		fetchExhausted.Inc()
		span.RecordError(cause)
		span.SetStatus(codes.Error, "fetch exhausted")
		err := &FetchExhaustedError{
			Url:           target.String(),
			Method:        method,
			Attempts:      attempt + 1,
			CallerAttempt: callerAttempt,
			Err:           cause,
		}
		o.tel.ReportWarning(report_orchestrator_exhausted, err)
		return parser.Result{}, err
	}

	attempt := 0
	for {
		span.SetAttributes(attribute.Int("fetch.attempts", attempt+1))

		cookies, err := o.sessions.Cookies(ctx, attempt)
		if err != nil {
			return exhausted(attempt, err)
		}

		o.tel.ReportDebug(report_orchestrator_fetch, method, target.String(), attempt, callerAttempt)
		body, err := o.do(ctx, method, target.String(), req, cookies)
		if err == nil {
			fetchAttempts.WithLabelValues("success").Inc()
			return p.Parse(body, target.String()), nil
		}
		if !errors.Is(err, ErrSessionExpired) {
			fetchAttempts.WithLabelValues("error").Inc()
			return exhausted(attempt, err)
		}

		fetchAttempts.WithLabelValues("expired").Inc()
		o.tel.ReportWarning(report_orchestrator_expired, target.String(), attempt)
		o.sessions.Invalidate(ctx)

		if attempt+1 >= o.retryLimit {
			return exhausted(attempt, err)
		}
		attempt++

		err = chrono.Sleep(ctx, chrono.LinearBackoff(o.backoffBase, attempt))
		if err != nil {
			return exhausted(attempt-1, err)
		}
	}
}

// do performs a single request, it returns ErrSessionExpired when the portal served the
// login page.
func (o *Orchestrator) do(
	ctx context.Context,
	method, target string,
	req Request,
	cookies session.CookieSet,
) (string, error) {
	r := o.http.R().
		SetContext(ctx).
		SetHeader("Cookie", cookies.Header())
	if req.Referer != "" {
		r.SetHeader("Referer", req.Referer)
	}

	var res *resty.Response
	var err error
	switch method {
	case http.MethodPost:
		res, err = r.SetFormDataFromValues(req.Body).Post(target)
	default:
		res, err = r.Get(target)
	}
	if err != nil {
		return "", err
	}

	body, err := o.decoder.DecodeResponse(res.Header().Get("Content-Type"), res.Body())
	if err != nil {
		return "", err
	}

	finalUrl := res.RawResponse.Request.URL
	if o.detector.IsLoginPage(finalUrl, body) {
		return "", fmt.Errorf("%w: served %s", ErrSessionExpired, finalUrl.String())
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return "", fmt.Errorf("unexpected status %d from %s", res.StatusCode(), finalUrl.String())
	}

	return body, nil
}
