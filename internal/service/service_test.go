package service

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/sipac/auth"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"
	"sipac-backend/internal/sipac/parsers"
	"sipac-backend/internal/sipac/session"
	"sipac-backend/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/single.html
var singleHtml string

func testConfig(portal *testutil.Portal) Config {
	return Config{
		Portal: PortalConfig{
			BaseUrl:  portal.URL("/sipac/"),
			LoginUrl: portal.LoginUrl(),
		},
		Auth: AuthConfig{
			Username:   testutil.Username,
			Password:   testutil.Password,
			RetryLimit: 3,
		},
		Fetch:      FetchConfig{BackoffMs: 1},
		Pagination: PaginationConfig{PageField: "pagina", PageBackoffMs: 1},
	}
}

func newStack(t *testing.T, configure func(cfg *Config)) (Stack, *testutil.Portal) {
	portal := testutil.NewPortal()
	t.Cleanup(portal.Close)

	cfg := testConfig(portal)
	if configure != nil {
		configure(&cfg)
	}

	clock := testutil.NewClock(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))
	stack, err := Build(cfg, session.NewMemoryStore(time.Hour, clock), clock, telemetry.NewRecorder())
	require.NoError(t, err)
	return stack, portal
}

// listHandler serves a 3 page listing with 5, 4 and 6 rows.
func listHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	page, err := strconv.Atoi(r.Form.Get("pagina"))
	if err != nil || page < 1 || page > 3 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	counts := []int{5, 4, 6}

	var rows strings.Builder
	for i := 0; i < counts[page-1]; i++ {
		fmt.Fprintf(&rows, "<tr><td>%d-%d</td><td>Situação %d</td></tr>", page, i, i)
	}
	testutil.WriteLatin1(w, fmt.Sprintf(`<html><body><div id="conteudo">
		<h2>Processos</h2>
		<table class="listagem">
			<caption>15 registros encontrados</caption>
			<thead><tr><th>Número</th><th>Situação</th></tr></thead>
			<tbody>%s</tbody>
		</table>
		<div>Página %d de 3</div>
	</div></body></html>`, rows.String(), page))
}

func TestFetchPageSinglePage(t *testing.T) {
	stack, portal := newStack(t, nil)
	portal.Handle("/list", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteLatin1(w, singleHtml)
	})

	target := portal.URL("/list?x=1")
	result, err := stack.Service.FetchPage(context.Background(), PageRequest{
		TargetUrl: target,
		Method:    http.MethodGet,
		Parser:    parsers.DocumentKey,
	})
	require.NoError(t, err)
	require.Nil(t, result.Pagination)

	// the parser's data is returned verbatim
	expected := parsers.Document{}.Parse(singleHtml, target)
	require.Empty(t, cmp.Diff(expected.Data, result.Data))
	require.Equal(t, "Dados do Servidor", result.Data["title"])
}

func TestFetchPageRelativeUrl(t *testing.T) {
	stack, portal := newStack(t, nil)
	portal.Handle("/sipac/portal/detalhe", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteLatin1(w, "<h2>Detalhe</h2>")
	})

	result, err := stack.Service.FetchPage(context.Background(), PageRequest{
		TargetUrl: "portal/detalhe",
	})
	require.NoError(t, err)
	require.Equal(t, "Detalhe", result.Data["title"])
}

func TestFetchPageUnknownParser(t *testing.T) {
	stack, portal := newStack(t, nil)

	_, err := stack.Service.FetchPage(context.Background(), PageRequest{
		TargetUrl: "portal",
		Parser:    "boletim",
	})
	require.ErrorIs(t, err, parser.ErrParserNotFound)
	require.Equal(t, 0, portal.Requests())
}

func TestFetchPageInvalidTarget(t *testing.T) {
	stack, portal := newStack(t, nil)

	for _, target := range []string{"", "https://exemplo.com/roubar-cookies", "http://[::1"} {
		_, err := stack.Service.FetchPage(context.Background(), PageRequest{TargetUrl: target})
		require.ErrorIs(t, err, fetch.ErrInvalidRequest, target)
	}
	require.Equal(t, 0, portal.Requests())
}

func TestFetchPaginatedList(t *testing.T) {
	stack, portal := newStack(t, nil)
	portal.Handle("/sipac/processos/lista", listHandler)

	result, err := stack.Service.FetchPaginatedList(context.Background(), PageRequest{
		TargetUrl: "processos/lista",
		Method:    http.MethodPost,
		Body:      url.Values{"pagina": {"1"}},
	})
	require.NoError(t, err)

	require.Len(t, result.Data.Items, 15)
	first := result.Data.Items[0].(map[string]any)
	last := result.Data.Items[14].(map[string]any)
	require.Equal(t, "1-0", first["numero"])
	require.Equal(t, "Situação 0", first["situacao"])
	require.Equal(t, "3-5", last["numero"])

	require.Equal(t, &parser.Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 15}, result.Data.Pagination)
	require.Equal(t, "Processos", result.Metadata["title"])
	require.NotContains(t, result.Metadata, parser.ItemsKey)

	// one login for the whole aggregation
	require.Equal(t, 1, portal.Count(testutil.CountTicket))
	require.Equal(t, 3, portal.Count(testutil.CountPage))
}

func TestFetchPaginatedListGetPageInUrl(t *testing.T) {
	stack, portal := newStack(t, nil)
	portal.Handle("/sipac/processos/lista", listHandler)

	result, err := stack.Service.FetchPaginatedList(context.Background(), PageRequest{
		TargetUrl: "processos/lista?pagina=1",
		Method:    http.MethodGet,
	})
	require.NoError(t, err)

	require.Len(t, result.Data.Items, 15)
	var numbers []string
	for _, item := range result.Data.Items {
		numbers = append(numbers, item.(map[string]any)["numero"].(string))
	}
	require.Equal(t, "1-4", numbers[4])
	require.Equal(t, "2-0", numbers[5])
	require.Equal(t, "2-3", numbers[8])
	require.Equal(t, "3-0", numbers[9])
	require.Equal(t, "3-5", numbers[14])
	require.Equal(t, 3, portal.Count(testutil.CountPage))
}

func TestFetchPaginatedListPageFailure(t *testing.T) {
	stack, portal := newStack(t, func(cfg *Config) {
		cfg.Pagination.PageRetries = 1
	})
	portal.Handle("/sipac/processos/lista", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err == nil && r.Form.Get("pagina") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		listHandler(w, r)
	})

	result, err := stack.Service.FetchPaginatedList(context.Background(), PageRequest{
		TargetUrl: "processos/lista",
		Method:    http.MethodPost,
		Body:      url.Values{"pagina": {"1"}},
	})

	var exhausted *paginate.PaginationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Page)
	var fetchErr *fetch.FetchExhaustedError
	require.ErrorAs(t, err, &fetchErr)
	require.Nil(t, result.Data.Items)
}

func TestForceReauthenticate(t *testing.T) {
	stack, portal := newStack(t, nil)
	ctx := context.Background()

	info, err := stack.Service.ForceReauthenticate(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"JSESSIONID", "CASTGC"}, info.Cookies)
	require.Equal(t, 1, portal.Count(testutil.CountTicket))

	_, err = stack.Service.ForceReauthenticate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, portal.Count(testutil.CountTicket))
}

func TestForceReauthenticateInvalidCredentials(t *testing.T) {
	stack, _ := newStack(t, func(cfg *Config) {
		cfg.Auth.Password = "senha-errada"
	})

	_, err := stack.Service.ForceReauthenticate(context.Background())
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	stack, portal := newStack(t, nil)
	ctx := context.Background()
	req := PageRequest{TargetUrl: "portal"}

	_, err := stack.Service.FetchPage(ctx, req)
	require.NoError(t, err)
	stack.Service.Logout(ctx)
	_, err = stack.Service.FetchPage(ctx, req)
	require.NoError(t, err)

	require.Equal(t, 2, portal.Count(testutil.CountTicket))
}

func TestBuildRequiresCredentials(t *testing.T) {
	portal := testutil.NewPortal()
	defer portal.Close()

	cfg := testConfig(portal)
	cfg.Auth.Password = ""
	clock := testutil.NewClock(time.Now())
	_, err := Build(cfg, session.NewMemoryStore(time.Hour, clock), clock, telemetry.NewRecorder())
	require.Error(t, err)
}
