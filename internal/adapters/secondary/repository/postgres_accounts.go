package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// Codes SQLSTATE traduits en erreurs du domaine
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// sqlAccount est un DTO interne : tampon entre la base et le domaine.
type sqlAccount struct {
	ID           string
	Handle       string
	Contact      string
	PasswordHash string
	Followers    []string
	Following    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PostgresStore implémente AccountRepository, GraphRepository, ContentRepository et LikeRepository.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore prend un pool déjà configuré (otelpgx branché dans main.go).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, lockTimeout: 2 * time.Second}
}

const accountColumns = `id, handle, contact, password_hash, followers, following, created_at, updated_at`

func (r *PostgresStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	q := `
		INSERT INTO accounts (id, handle, contact, password_hash, followers, following, created_at, updated_at)
		VALUES (@id, @handle, @contact, @password_hash, @followers, @following, @created_at, @updated_at)
	`
	args := pgx.NamedArgs{
		"id":            account.ID,
		"handle":        account.Handle,
		"contact":       account.Contact,
		"password_hash": account.PasswordHash,
		"followers":     nonNil(account.Followers),
		"following":     nonNil(account.Following),
		"created_at":    account.CreatedAt,
		"updated_at":    account.UpdatedAt,
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return r.handleError(err)
	}
	return nil
}

func (r *PostgresStore) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.accountBy(ctx, "id", id)
}

func (r *PostgresStore) AccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return r.accountBy(ctx, "handle", handle)
}

func (r *PostgresStore) AccountByContact(ctx context.Context, contact string) (*domain.Account, error) {
	return r.accountBy(ctx, "contact", contact)
}

// column provient toujours d'une constante interne, jamais de l'entrée utilisateur.
func (r *PostgresStore) accountBy(ctx context.Context, column, value string) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`

	var a sqlAccount
	err := r.db.QueryRow(ctx, q, value).Scan(
		&a.ID, &a.Handle, &a.Contact, &a.PasswordHash, &a.Followers, &a.Following, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db: account by %s: %w", column, err)
	}
	return a.toDomain(), nil
}

// --- HELPERS ---

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:           a.ID,
		Handle:       a.Handle,
		Contact:      a.Contact,
		PasswordHash: a.PasswordHash,
		Followers:    nonNil(a.Followers),
		Following:    nonNil(a.Following),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// handleError traduit les codes d'erreur PostgreSQL en erreurs du domaine.
func (r *PostgresStore) handleError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "accounts_handle_key":
			return domain.ErrHandleTaken
		case "accounts_contact_key":
			return domain.ErrContactTaken
		}
	case pgForeignKeyViolation:
		return domain.ErrAccountNotFound
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %s", domain.ErrStorageConflict, pgErr.Code)
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
