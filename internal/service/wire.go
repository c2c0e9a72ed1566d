package service

import (
	"errors"
	"fmt"
	"time"

	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/sipac/auth"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/httpclient"
	"sipac-backend/internal/sipac/loginpage"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"
	"sipac-backend/internal/sipac/parsers"
	"sipac-backend/internal/sipac/session"
	"sipac-backend/lib/restyutil"
)

// Stack is a fully wired scraper.
type Stack struct {
	Service Service
	Manager *auth.Manager
	Parsers *parser.Registry
}

// Build wires the session manager, the orchestrator, the aggregator and the parsers
// together from configuration.
func Build(cfg Config, store session.Store, clock chrono.TimeAPI, tel telemetry.API) (Stack, error) {
	if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
		return Stack{}, errors.New("auth.username and auth.password are required")
	}

	detector, err := loginpage.NewDetector(loginpage.Options{
		LoginUrl:                  cfg.Portal.LoginUrl,
		ExpiredMarkers:            cfg.Portal.ExpiredMarkers,
		InvalidCredentialsMarkers: cfg.Portal.InvalidCredentialsMarkers,
	})
	if err != nil {
		return Stack{}, err
	}

	httpOpts := httpclient.Options{
		Timeout:          seconds(cfg.Http.TimeoutSeconds),
		UserAgent:        cfg.Http.UserAgent,
		CloudflareBypass: cfg.Http.CloudflareBypass,
	}
	if cfg.Http.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.Http.DumpDir)
		if err != nil {
			return Stack{}, fmt.Errorf("http dump dir: %w", err)
		}
		httpOpts.Dump = output
	}

	manager, err := auth.NewManager(store, detector, clock, tel, auth.Options{
		Username:        cfg.Auth.Username,
		Password:        cfg.Auth.Password,
		RetryLimit:      cfg.Auth.RetryLimit,
		CookieTTL:       minutes(cfg.Auth.CookieTtlMinutes),
		FailureCooldown: minutes(cfg.Auth.FailureCooldownMinutes),
		TicketCookie:    cfg.Auth.TicketCookie,
		LoginCharset:    cfg.Portal.LoginCharset,
		Http:            httpOpts,
	})
	if err != nil {
		return Stack{}, err
	}

	orchestrator, err := fetch.NewOrchestrator(manager, detector, tel, fetch.Options{
		BackoffBase: milliseconds(cfg.Fetch.BackoffMs),
		Charset:     cfg.Portal.Charset,
		Http:        httpOpts,
	})
	if err != nil {
		return Stack{}, err
	}

	aggregator := paginate.NewAggregator(orchestrator, tel, paginate.Options{
		PageField:   cfg.Pagination.PageField,
		PageRetries: cfg.Pagination.PageRetries,
		PageBackoff: milliseconds(cfg.Pagination.PageBackoffMs),
	})

	registry := parser.NewRegistry()
	parsers.Register(registry, cfg.Parsers.TableSelector)

	svc, err := NewService(ServiceOptions{
		BaseUrl:    cfg.Portal.BaseUrl,
		Parsers:    registry,
		Sessions:   manager,
		Fetcher:    orchestrator,
		Aggregator: aggregator,
	})
	if err != nil {
		return Stack{}, err
	}

	return Stack{
		Service: svc,
		Manager: manager,
		Parsers: registry,
	}, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func milliseconds(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
