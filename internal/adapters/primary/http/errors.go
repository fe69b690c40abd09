package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// Kinds d'erreur stables exposés aux clients.
const (
	KindAuthMissing         = "auth.missing"
	KindAuthInvalid         = "auth.invalid"
	KindAuthExpired         = "auth.expired"
	KindAuthAccountNotFound = "auth.account_not_found"
	KindAccountNotFound     = "graph.account_not_found"
	KindSelfReference       = "graph.self_reference"
	KindStorageConflict     = "graph.storage_conflict"
	KindContentNotFound     = "engagement.content_not_found"
	KindHandleTaken         = "account.handle_taken"
	KindContactTaken        = "account.contact_taken"
	KindInvalidCredentials  = "account.invalid_credentials"
	KindInvalidRequest      = "request.invalid"
	KindRateLimited         = "request.rate_limited"
	KindInternal            = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type apiError struct {
	status int
	kind   string
}

var domainErrors = []struct {
	err error
	apiError
}{
	{domain.ErrAuthMissing, apiError{http.StatusUnauthorized, KindAuthMissing}},
	{domain.ErrAuthExpired, apiError{http.StatusUnauthorized, KindAuthExpired}},
	{domain.ErrAuthInvalid, apiError{http.StatusUnauthorized, KindAuthInvalid}},
	{domain.ErrAuthAccountNotFound, apiError{http.StatusUnauthorized, KindAuthAccountNotFound}},
	{domain.ErrAccountNotFound, apiError{http.StatusNotFound, KindAccountNotFound}},
	{domain.ErrSelfReference, apiError{http.StatusUnprocessableEntity, KindSelfReference}},
	{domain.ErrStorageConflict, apiError{http.StatusConflict, KindStorageConflict}},
	{domain.ErrContentNotFound, apiError{http.StatusNotFound, KindContentNotFound}},
	{domain.ErrHandleTaken, apiError{http.StatusConflict, KindHandleTaken}},
	{domain.ErrContactTaken, apiError{http.StatusConflict, KindContactTaken}},
	{domain.ErrInvalidCredentials, apiError{http.StatusUnauthorized, KindInvalidCredentials}},
	{domain.ErrInvalidHandle, apiError{http.StatusBadRequest, KindInvalidRequest}},
	{domain.ErrInvalidContact, apiError{http.StatusBadRequest, KindInvalidRequest}},
	{domain.ErrWeakPassword, apiError{http.StatusBadRequest, KindInvalidRequest}},
	{domain.ErrInvalidMediaURL, apiError{http.StatusBadRequest, KindInvalidRequest}},
}

// mapDomainError traduit une erreur du domaine en statut HTTP + kind.
// Une erreur inconnue devient 500 "internal" sans fuite de détails.
func mapDomainError(err error) (apiError, string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return m.apiError, m.err.Error()
		}
	}
	return apiError{http.StatusInternalServerError, KindInternal}, "internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, msg := mapDomainError(err)
	if apiErr.status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, apiErr.status, errorBody{Error: errorDetail{Kind: apiErr.kind, Message: msg}})
}

func writeInvalid(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: KindInvalidRequest, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "error", err)
	}
}
