package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// --- PERSISTANCE ---

// AccountRepository stocke l'identité des comptes.
// CreateAccount doit renvoyer ErrHandleTaken / ErrContactTaken sur doublon (contrainte d'unicité).
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	AccountByHandle(ctx context.Context, handle string) (*domain.Account, error)
	AccountByContact(ctx context.Context, contact string) (*domain.Account, error)
}

// GraphRepository applique une arête sur les DEUX comptes en une seule unité logique :
// soit les deux côtés changent, soit aucun. Idempotent. Un conflit concurrent
// remonte en ErrStorageConflict (le service retente).
type GraphRepository interface {
	ApplyEdge(ctx context.Context, op domain.EdgeOp, actorID, targetID string) (domain.EdgeState, error)
	Relations(ctx context.Context, accountID string) (domain.Relations, error)
}

type ContentRepository interface {
	CreateContent(ctx context.Context, item *domain.ContentItem) error
	ContentByID(ctx context.Context, id string) (*domain.ContentItem, error)
}

// LikeRepository : test d'appartenance, mutation et recomptage en UNE étape atomique.
// Contenu absent : ErrContentNotFound.
type LikeRepository interface {
	ToggleLike(ctx context.Context, contentID, actorID string) (domain.LikeState, error)
	LikedBy(ctx context.Context, contentID string) ([]string, error)
}

// --- MESSAGERIE ---

// EventPublisher remet un ChangeEvent au hub (local ou via NATS).
// Ne doit jamais bloquer la mutation : buffer, et drop si saturé.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// --- SÉCURITÉ (CRYPTO) ---

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenProvider émet et vérifie les tokens de session.
// Validate renvoie ErrAuthInvalid ou ErrAuthExpired.
type TokenProvider interface {
	Issue(accountID string) (token string, expiresAt time.Time, err error)
	Validate(token string) (accountID string, err error)
	TTL() time.Duration
}
