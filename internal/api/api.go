// Package api exposes the scraper over http with a configurable route table.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sipac-backend/internal/components/assert"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	report_api_request = "api.request"
	report_api_encode  = "api.encode"
	report_api_error   = "api.error"
)

// Service is satisfied by service.Service.
type Service interface {
	FetchPage(ctx context.Context, req service.PageRequest) (parser.Result, error)
	FetchPaginatedList(ctx context.Context, req service.PageRequest) (paginate.ListResult, error)
	ForceReauthenticate(ctx context.Context) (service.SessionInfo, error)
	Logout(ctx context.Context)
}

type Options struct {
	// AccessToken protects every route except /healthz and /metrics when set, clients
	// send it as "Authorization: Bearer <token>".
	AccessToken string
	Routes      []Route
}

type api struct {
	svc Service
	tel telemetry.API
}

// NewRouter mounts the configured routes along with the session, health and metrics
// endpoints.
func NewRouter(svc Service, tel telemetry.API, opts Options) (*mux.Router, error) {
	assert.NotNil(svc)
	assert.NotNil(tel)

	a := api{svc: svc, tel: telemetry.NewScopedAPI("api", tel)}

	router := mux.NewRouter()
	router.Use(a.logRequests)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(verifyAccessToken(opts.AccessToken))

	protected.HandleFunc("/session/refresh", a.refreshSession).Methods(http.MethodPost)
	protected.HandleFunc("/session", a.deleteSession).Methods(http.MethodDelete)

	names := map[string]bool{}
	for _, route := range opts.Routes {
		err := route.validate()
		if err != nil {
			return nil, err
		}
		if names[route.Name] {
			return nil, fmt.Errorf("route %q defined twice", route.Name)
		}
		names[route.Name] = true

		protected.
			HandleFunc(route.Path, a.page(route)).
			Methods(http.MethodGet, http.MethodPost).
			Name(route.Name)
	}

	return router, nil
}

func (a api) writeJson(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		a.tel.ReportWarning(report_api_encode, err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (a api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= 500 {
		a.tel.ReportWarning(report_api_error, r.URL.Path, status, err)
	}
	a.writeJson(w, status, errorBody{Error: err.Error()})
}

func (a api) healthz(w http.ResponseWriter, r *http.Request) {
	a.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a api) refreshSession(w http.ResponseWriter, r *http.Request) {
	info, err := a.svc.ForceReauthenticate(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJson(w, http.StatusOK, info)
}

func (a api) deleteSession(w http.ResponseWriter, r *http.Request) {
	a.svc.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a api) page(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		if err != nil {
			a.writeJson(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		req := service.PageRequest{
			TargetUrl: route.target(mux.Vars(r)),
			Method:    route.Method,
			Body:      route.body(r),
			Parser:    route.Parser,
			PageField: route.PageField,
		}

		if route.Paginated {
			result, err := a.svc.FetchPaginatedList(r.Context(), req)
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			a.writeJson(w, http.StatusOK, result)
			return
		}

		result, err := a.svc.FetchPage(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		a.writeJson(w, http.StatusOK, result)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.tel.ReportDebug(report_api_request, r.Method, r.URL.Path, rec.status, time.Since(start).String())
	})
}

func verifyAccessToken(accessToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if accessToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.Split(r.Header.Get("Authorization"), " ")
			if len(token) != 2 || token[1] != accessToken {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(errorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
