package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/auth"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	requests []service.PageRequest
	err      error
	logouts  int
}

func (s *stubService) FetchPage(ctx context.Context, req service.PageRequest) (parser.Result, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return parser.Result{}, s.err
	}
	return parser.Result{Data: map[string]any{"title": "Processo"}}, nil
}

func (s *stubService) FetchPaginatedList(ctx context.Context, req service.PageRequest) (paginate.ListResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return paginate.ListResult{}, s.err
	}
	return paginate.ListResult{
		Metadata: map[string]any{"title": "Processos"},
		Data: paginate.ListData{
			Items:      []any{map[string]any{"numero": "1"}, map[string]any{"numero": "2"}},
			Pagination: &parser.Pagination{CurrentPage: 1, TotalPages: 2, TotalItems: 2},
		},
	}, nil
}

func (s *stubService) ForceReauthenticate(ctx context.Context) (service.SessionInfo, error) {
	if s.err != nil {
		return service.SessionInfo{}, s.err
	}
	return service.SessionInfo{
		Cookies:   []string{"JSESSIONID", "CASTGC"},
		ExpiresAt: time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC),
	}, nil
}

func (s *stubService) Logout(ctx context.Context) {
	s.logouts++
}

var testRoutes = []Route{
	{
		Name:   "processo",
		Path:   "/processos/{id}",
		Target: "protocolo/processo.jsf?id={id}",
		Parser: "default",
	},
	{
		Name:      "processos",
		Path:      "/processos",
		Target:    "protocolo/lista.jsf",
		Method:    http.MethodPost,
		Parser:    "table",
		Paginated: true,
		PageField: "pagina",
		Body:      map[string]string{"pagina": "1", "tipo": "todos"},
	},
}

func newServer(t *testing.T, svc *stubService, token string) *httptest.Server {
	router, err := NewRouter(svc, telemetry.NewRecorder(), Options{
		AccessToken: token,
		Routes:      testRoutes,
	})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func decode(t *testing.T, res *http.Response, out any) {
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func TestPageRoute(t *testing.T) {
	svc := &stubService{}
	server := newServer(t, svc, "")

	res, err := http.Get(server.URL + "/processos/23077.000123")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body parser.Result
	decode(t, res, &body)
	require.Equal(t, "Processo", body.Data["title"])
	require.Nil(t, body.Pagination)

	require.Len(t, svc.requests, 1)
	require.Equal(t, "protocolo/processo.jsf?id=23077.000123", svc.requests[0].TargetUrl)
	require.Equal(t, "default", svc.requests[0].Parser)
}

func TestPaginatedRoute(t *testing.T) {
	svc := &stubService{}
	server := newServer(t, svc, "")

	res, err := http.PostForm(server.URL+"/processos?ano=2024", url.Values{"tipo": {"abertos"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body paginate.ListResult
	decode(t, res, &body)
	require.Len(t, body.Data.Items, 2)
	require.Equal(t, 2, body.Data.Pagination.TotalPages)

	req := svc.requests[0]
	require.Equal(t, "pagina", req.PageField)
	require.Equal(t, http.MethodPost, req.Method)
	diff := cmp.Diff(url.Values{
		"pagina": {"1"},
		"tipo":   {"abertos"},
		"ano":    {"2024"},
	}, req.Body)
	require.Empty(t, diff)
}

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: limit 3", auth.ErrAuthenticationExhausted), status: http.StatusUnauthorized},
		{
			err:    &fetch.FetchExhaustedError{Attempts: 1, Err: auth.ErrInvalidCredentials},
			status: http.StatusUnauthorized,
		},
		{err: fmt.Errorf("%w: \"x\"", parser.ErrParserNotFound), status: http.StatusInternalServerError},
		{err: fmt.Errorf("%w: empty target url", fetch.ErrInvalidRequest), status: http.StatusBadRequest},
		{
			err:    &fetch.FetchExhaustedError{Attempts: 3, Err: fetch.ErrSessionExpired},
			status: http.StatusBadGateway,
		},
		{
			err: &paginate.PaginationExhaustedError{
				Page: 2,
				Err:  &fetch.FetchExhaustedError{Attempts: 1, Err: fmt.Errorf("unexpected status 500")},
			},
			status: http.StatusBadGateway,
		},
		{err: fmt.Errorf("%w: status 403", auth.ErrTicketGrant), status: http.StatusBadGateway},
		{
			err:    &fetch.FetchExhaustedError{Attempts: 1, Err: context.DeadlineExceeded},
			status: http.StatusGatewayTimeout,
		},
	}

	for _, test := range testCases {
		t.Run(test.err.Error(), func(t *testing.T) {
			svc := &stubService{err: test.err}
			server := newServer(t, svc, "")

			res, err := http.Get(server.URL + "/processos/1")
			require.NoError(t, err)
			require.Equal(t, test.status, res.StatusCode)

			var body errorBody
			decode(t, res, &body)
			require.Equal(t, test.err.Error(), body.Error)
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	svc := &stubService{}
	server := newServer(t, svc, "")

	res, err := http.Post(server.URL+"/session/refresh", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var info service.SessionInfo
	decode(t, res, &info)
	require.Equal(t, []string{"JSESSIONID", "CASTGC"}, info.Cookies)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/session", nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, 1, svc.logouts)
}

func TestAccessToken(t *testing.T) {
	svc := &stubService{}
	server := newServer(t, svc, "segredo")

	res, err := http.Get(server.URL + "/processos/1")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Empty(t, svc.requests)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/processos/1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer segredo")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	// health and metrics stay public
	for _, path := range []string{"/healthz", "/metrics"} {
		res, err := http.Get(server.URL + path)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode, path)
	}
}

func TestInvalidRoutes(t *testing.T) {
	testCases := []struct {
		name   string
		routes []Route
	}{
		{name: "no name", routes: []Route{{Path: "/x", Target: "x"}}},
		{name: "relative path", routes: []Route{{Name: "x", Path: "x", Target: "x"}}},
		{name: "reserved path", routes: []Route{{Name: "x", Path: "/metrics", Target: "x"}}},
		{name: "no target", routes: []Route{{Name: "x", Path: "/x"}}},
		{name: "bad method", routes: []Route{{Name: "x", Path: "/x", Target: "x", Method: "PUT"}}},
		{name: "duplicate", routes: []Route{
			{Name: "x", Path: "/x", Target: "x"},
			{Name: "x", Path: "/y", Target: "y"},
		}},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewRouter(&stubService{}, telemetry.NewRecorder(), Options{Routes: test.routes})
			require.Error(t, err)
		})
	}
}

func TestRouteTarget(t *testing.T) {
	route := Route{Target: "https://sipac.ufrn.br/sipac/{tipo}/ver.jsf?id={id:[0-9]+}&q={busca}&x={ausente}"}
	require.Equal(
		t,
		"https://sipac.ufrn.br/sipac/processo%20antigo/ver.jsf?id=42&q=a%26b+c&x={ausente}",
		route.target(map[string]string{"tipo": "processo antigo", "id": "42", "busca": "a&b c"}),
	)
	require.Equal(t, route.Target, route.target(nil))
}
