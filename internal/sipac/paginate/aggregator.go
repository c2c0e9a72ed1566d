// Package paginate replays a list request across every page reported by its first page and
// concatenates the items.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"sipac-backend/internal/components/assert"
	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/parser"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sipac/paginate")

var (
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sipac_paginate_pages_total",
		Help: "Total number of list pages fetched by the aggregator",
	})
	pageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sipac_paginate_page_retries_total",
		Help: "Total number of list page retries",
	})
	aggregationsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sipac_paginate_exhausted_total",
		Help: "Total number of aggregations aborted by a failing page",
	})
)

const (
	report_aggregator_page_field = "aggregator.page-field"
	report_aggregator_page       = "aggregator.page"
	report_aggregator_exhausted  = "aggregator.exhausted"
)

// Fetcher is satisfied by *fetch.Orchestrator.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, p parser.Parser, callerAttempt int) (parser.Result, error)
}

// PaginationExhaustedError aborts a whole aggregation, no partial list is ever returned.
type PaginationExhaustedError struct {
	Page int
	Err  error
}

func (e *PaginationExhaustedError) Error() string {
	return fmt.Sprintf("pagination exhausted at page %d: %v", e.Page, e.Err)
}

func (e *PaginationExhaustedError) Unwrap() error {
	return e.Err
}

type ListData struct {
	Items      []any              `json:"items"`
	Pagination *parser.Pagination `json:"pagination"`
}

// ListResult is the concatenation of every page of a list, Metadata is the first page's
// data without its items.
type ListResult struct {
	Metadata map[string]any `json:"metadata"`
	Data     ListData       `json:"data"`
}

type Options struct {
	// PageField is the body field holding the page number, defaults to "page".
	PageField string
	// PageRetries is the amount of extra tries for pages 2..N, defaults to 2 and a negative
	// value disables them. It is independent from the session retry limit of the
	// orchestrator.
	PageRetries int
	// PageBackoff is the linear backoff unit between page retries, defaults to 1 second.
	PageBackoff time.Duration
}

type Aggregator struct {
	fetcher Fetcher
	tel     telemetry.API
	opts    Options
}

func NewAggregator(fetcher Fetcher, tel telemetry.API, opts Options) *Aggregator {
	assert.NotNil(fetcher)
	assert.NotNil(tel)

	if opts.PageField == "" {
		opts.PageField = "page"
	}
	if opts.PageRetries < 0 {
		opts.PageRetries = 0
	} else if opts.PageRetries == 0 {
		opts.PageRetries = 2
	}
	if opts.PageBackoff <= 0 {
		opts.PageBackoff = time.Second
	}

	return &Aggregator{
		fetcher: fetcher,
		tel:     telemetry.NewScopedAPI("sipac_paginate", tel),
		opts:    opts,
	}
}

// FetchAll fetches the first page and, when it reports more than one page, every other
// page in order. `pageField` overrides Options.PageField when not empty.
func (a *Aggregator) FetchAll(ctx context.Context, req fetch.Request, p parser.Parser, pageField string) (ListResult, error) {
	if pageField == "" {
		pageField = a.opts.PageField
	}

	ctx, span := tracer.Start(ctx, "aggregator:fetch-all")
	defer span.End()

	first, err := a.fetcher.Fetch(ctx, req, p, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "first page failed")
		return ListResult{}, err
	}
	pagesFetched.Inc()

	result := ListResult{
		Metadata: first.Metadata(),
		Data: ListData{
			Items:      first.Items(),
			Pagination: first.Pagination,
		},
	}
	if result.Data.Items == nil {
		result.Data.Items = []any{}
	}
	if first.Pagination == nil || first.Pagination.TotalPages <= 1 {
		return result, nil
	}

	total := first.Pagination.TotalPages
	span.SetAttributes(attribute.Int("paginate.total_pages", total))

	referer := req.TargetUrl
	firstUrl, err := req.Url()
	if err == nil {
		referer = firstUrl.String()
	}

	// a GET list may carry the page number in its url, the body value replaces it
	inUrl := err == nil && firstUrl.Query().Has(pageField)
	if req.Body.Get(pageField) == "" && !inUrl {
		a.tel.ReportWarning(report_aggregator_page_field, "page field missing from the first request", pageField)
	}

	for page := 2; page <= total; page++ {
		pageReq := req.Clone()
		if pageReq.Body == nil {
			pageReq.Body = url.Values{}
		}
		pageReq.Body.Set(pageField, strconv.Itoa(page))
		pageReq.Referer = referer

		res, err := a.fetchPage(ctx, pageReq, p, page)
		if err != nil {
			aggregationsExhausted.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "page exhausted")
			a.tel.ReportWarning(report_aggregator_exhausted, err)
			return ListResult{}, err
		}
		result.Data.Items = append(result.Data.Items, res.Items()...)
	}

	return result, nil
}

// fetchPage fetches one page with its own retry budget.
func (a *Aggregator) fetchPage(ctx context.Context, req fetch.Request, p parser.Parser, page int) (parser.Result, error) {
	for attempt := 0; ; attempt++ {
		res, err := a.fetcher.Fetch(ctx, req, p, attempt)
		if err == nil {
			pagesFetched.Inc()
			return res, nil
		}

		a.tel.ReportDebug(report_aggregator_page, page, attempt, err)
		if attempt >= a.opts.PageRetries || !retryable(ctx, err) {
			return parser.Result{}, &PaginationExhaustedError{Page: page, Err: err}
		}

		pageRetries.Inc()
		err = chrono.Sleep(ctx, chrono.LinearBackoff(a.opts.PageBackoff, attempt+1))
		if err != nil {
			return parser.Result{}, &PaginationExhaustedError{Page: page, Err: err}
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, fetch.ErrInvalidRequest)
}
