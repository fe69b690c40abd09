package domain

import "errors"

// --- ERREURS DU DOMAINE ---
// Chaque sentinelle correspond à un "kind" stable exposé par la couche transport.

// Session Authenticator
var (
	ErrAuthMissing         = errors.New("missing or malformed authorization header")
	ErrAuthInvalid         = errors.New("invalid session token")
	ErrAuthExpired         = errors.New("session token expired")
	ErrAuthAccountNotFound = errors.New("session account not found")
)

// Comptes (inscription / login)
var (
	ErrHandleTaken        = errors.New("handle already taken")
	ErrContactTaken       = errors.New("contact already registered")
	ErrInvalidCredentials = errors.New("invalid identifier or password")
	ErrInvalidHandle      = errors.New("handle must be 3-30 characters of a-z, 0-9, '_' or '.'")
	ErrInvalidContact     = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Social Graph Mutator
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSelfReference   = errors.New("cannot follow yourself")
	ErrStorageConflict = errors.New("concurrent modification detected")
)

// Engagement Toggle Service
var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidMediaURL = errors.New("media url must be an absolute http(s) url")
)
