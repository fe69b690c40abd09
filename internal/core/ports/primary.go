package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// --- INPUTS (Command Pattern) ---

type RegisterCmd struct {
	Handle   string
	Contact  string
	Password string
}

type LoginCmd struct {
	Identifier string // Handle ou email
	Password   string
	IP         string // Pour les logs
}

type CreateContentCmd struct {
	OwnerID  string
	MediaURL string
	Caption  string
}

// --- OUTPUTS ---

// AuthResponse : un seul token de session, toujours avec la même durée de vie.
type AuthResponse struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// --- PORTS PRIMAIRES (Driving) ---

// Authenticator est le Session Authenticator : lecture seule, aucun effet de bord.
type Authenticator interface {
	Authenticate(ctx context.Context, rawHeader string) (*domain.Account, error)
	AuthenticateToken(ctx context.Context, token string) (*domain.Account, error)
}

type IdentityService interface {
	Authenticator
	Register(ctx context.Context, cmd RegisterCmd) (*AuthResponse, error)
	Login(ctx context.Context, cmd LoginCmd) (*AuthResponse, error)
	// GetAccount renvoie le compte avec ses deux ensembles de relations.
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

// GraphService est le Social Graph Mutator.
type GraphService interface {
	Follow(ctx context.Context, actorID, targetID string) (domain.EdgeState, error)
	Unfollow(ctx context.Context, actorID, targetID string) (domain.EdgeState, error)
	Relations(ctx context.Context, accountID string) (domain.Relations, error)
}

// EngagementService est l'Engagement Toggle Service (+ le strict minimum sur les contenus).
type EngagementService interface {
	ToggleLike(ctx context.Context, actorID, contentID string) (domain.LikeState, error)
	CreateContent(ctx context.Context, cmd CreateContentCmd) (*domain.ContentItem, error)
	GetContent(ctx context.Context, contentID string) (*domain.ContentItem, error)
}
