package api

import (
	"context"
	"errors"
	"net/http"

	"sipac-backend/internal/sipac/auth"
	"sipac-backend/internal/sipac/fetch"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parser"
)

// httpStatus maps an error of the scraper to the status returned to clients. Credential
// failures win over the fetch/pagination errors wrapping them.
func httpStatus(err error) int {
	var fetchErr *fetch.FetchExhaustedError
	var pageErr *paginate.PaginationExhaustedError

	switch {
	case errors.Is(err, auth.ErrAuthenticationExhausted),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, parser.ErrParserNotFound):
		return http.StatusInternalServerError
	case errors.Is(err, fetch.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &pageErr),
		errors.As(err, &fetchErr),
		errors.Is(err, auth.ErrLoginPageParse),
		errors.Is(err, auth.ErrAuthenticationRejected),
		errors.Is(err, auth.ErrTicketGrant):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
