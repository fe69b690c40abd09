package domain

import (
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinHandleLength   = 3
	MaxHandleLength   = 30
	MinPasswordLength = 8
)

// --- ENTITÉ ---

// Account est l'identité d'un utilisateur, avec ses deux côtés du graphe social.
// Invariant : A ∈ B.Followers <=> B ∈ A.Following.
type Account struct {
	ID           string
	Handle       string
	Contact      string // Email, unique
	PasswordHash string
	Followers    []string
	Following    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// --- FACTORY (CONSTRUCTEUR) ---

// NewAccount crée un compte valide, sans relation.
// C'est le SEUL moyen de créer un compte proprement (ID + validation).
func NewAccount(handle, contact, passwordHash string) (*Account, error) {
	handle = NormalizeHandle(handle)
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	contact, err := NormalizeContact(contact)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Account{
		ID:           uuid.NewString(),
		Handle:       handle,
		Contact:      contact,
		PasswordHash: passwordHash,
		Followers:    []string{},
		Following:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// --- COMPORTEMENTS ---

func (a *Account) IsFollowing(id string) bool { return slices.Contains(a.Following, id) }

func (a *Account) IsFollowedBy(id string) bool { return slices.Contains(a.Followers, id) }

// Clone renvoie une copie profonde (les repositories in-memory ne partagent jamais leurs slices).
func (a *Account) Clone() *Account {
	c := *a
	c.Followers = slices.Clone(a.Followers)
	c.Following = slices.Clone(a.Following)
	if c.Followers == nil {
		c.Followers = []string{}
	}
	if c.Following == nil {
		c.Following = []string{}
	}
	return &c
}

// --- VALIDATEURS ---

func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeContact valide le format email et le met en minuscules.
func NormalizeContact(contact string) (string, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	addr, err := mail.ParseAddress(contact)
	if err != nil || addr.Address != contact {
		return "", ErrInvalidContact
	}
	return contact, nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func validateHandle(handle string) error {
	n := utf8.RuneCountInString(handle)
	if n < MinHandleLength || n > MaxHandleLength {
		return ErrInvalidHandle
	}
	for _, r := range handle {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' && r != '.' {
			return ErrInvalidHandle
		}
	}
	return nil
}
