package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const bearerPrefix = "Bearer "

// IdentityService implémente ports.IdentityService (inscription, login, Session Authenticator).
type IdentityService struct {
	accounts      ports.AccountRepository
	graph         ports.GraphRepository
	hasher        ports.PasswordHasher
	tokenProvider ports.TokenProvider
}

func NewIdentityService(
	accounts ports.AccountRepository,
	graph ports.GraphRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenProvider,
) *IdentityService {
	return &IdentityService{
		accounts:      accounts,
		graph:         graph,
		hasher:        hasher,
		tokenProvider: tokens,
	}
}

// --- AUTHENTIFICATION ---

func (s *IdentityService) Register(ctx context.Context, cmd ports.RegisterCmd) (*ports.AuthResponse, error) {
	if err := domain.ValidatePassword(cmd.Password); err != nil {
		return nil, err
	}

	// Validation des invariants avant tout accès au repo
	account, err := domain.NewAccount(cmd.Handle, cmd.Contact, "")
	if err != nil {
		return nil, err
	}

	// Fail fast sur les doublons. La contrainte UNIQUE du store reste la sécurité ultime (race).
	if _, err := s.accounts.AccountByHandle(ctx, account.Handle); err == nil {
		return nil, domain.ErrHandleTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("lookup handle: %w", err)
	}
	if _, err := s.accounts.AccountByContact(ctx, account.Contact); err == nil {
		return nil, domain.ErrContactTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("lookup contact: %w", err)
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}
	account.PasswordHash = hash

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, domain.ErrHandleTaken) || errors.Is(err, domain.ErrContactTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("repository save failed: %w", err)
	}

	return s.issue(account)
}

func (s *IdentityService) Login(ctx context.Context, cmd ports.LoginCmd) (*ports.AuthResponse, error) {
	var (
		account *domain.Account
		err     error
	)
	if strings.Contains(cmd.Identifier, "@") {
		contact, nerr := domain.NormalizeContact(cmd.Identifier)
		if nerr != nil {
			return nil, domain.ErrInvalidCredentials
		}
		account, err = s.accounts.AccountByContact(ctx, contact)
	} else {
		account, err = s.accounts.AccountByHandle(ctx, domain.NormalizeHandle(cmd.Identifier))
	}
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			// On ne dit pas si c'est l'identifiant ou le mot de passe qui est faux
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login lookup: %w", err)
	}

	if err := s.hasher.Compare(account.PasswordHash, cmd.Password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issue(account)
}

// issue est le SEUL chemin d'émission de token : même durée de vie pour register et login.
func (s *IdentityService) issue(account *domain.Account) (*ports.AuthResponse, error) {
	token, expiresAt, err := s.tokenProvider.Issue(account.ID)
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}
	return &ports.AuthResponse{
		Account:   account,
		Token:     token,
		ExpiresAt: expiresAt,
		ExpiresIn: s.tokenProvider.TTL(),
	}, nil
}

// --- SESSION AUTHENTICATOR ---

// Authenticate attend un header "Bearer <token>".
func (s *IdentityService) Authenticate(ctx context.Context, rawHeader string) (*domain.Account, error) {
	token, err := ParseBearer(rawHeader)
	if err != nil {
		return nil, err
	}
	return s.AuthenticateToken(ctx, token)
}

// AuthenticateToken vérifie signature + expiration puis résout le compte.
func (s *IdentityService) AuthenticateToken(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, domain.ErrAuthMissing
	}
	accountID, err := s.tokenProvider.Validate(token)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAuthAccountNotFound
		}
		return nil, fmt.Errorf("resolve session account: %w", err)
	}
	return account, nil
}

// ParseBearer extrait le token d'un header Authorization.
func ParseBearer(rawHeader string) (string, error) {
	raw := strings.TrimSpace(rawHeader)
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", domain.ErrAuthMissing
	}
	token := strings.TrimSpace(raw[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", domain.ErrAuthMissing
	}
	return token, nil
}

// --- LECTURE ---

func (s *IdentityService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rel, err := s.graph.Relations(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	account.Followers = rel.Followers
	account.Following = rel.Following
	return account, nil
}

// SessionTTL expose la durée de vie fixe des tokens (utile au transport).
func (s *IdentityService) SessionTTL() time.Duration {
	return s.tokenProvider.TTL()
}
