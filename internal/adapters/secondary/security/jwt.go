package security

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

const DefaultIssuer = "cenackle-social"

// SessionClaims : le Subject porte l'ID du compte.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// JWTProvider émet UN seul type de token (session), avec une durée de vie fixe.
type JWTProvider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
	issuer     string
	now        func() time.Time
}

type Option func(*JWTProvider)

func WithTTL(ttl time.Duration) Option {
	return func(j *JWTProvider) {
		if ttl > 0 {
			j.ttl = ttl
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(j *JWTProvider) {
		if issuer != "" {
			j.issuer = issuer
		}
	}
}

// WithClock remplace l'horloge (tests d'expiration).
func WithClock(now func() time.Time) Option {
	return func(j *JWTProvider) { j.now = now }
}

// NewJWTProvider charge les clés RSA depuis des PEM.
func NewJWTProvider(privateKeyPEM, publicKeyPEM []byte, opts ...Option) (*JWTProvider, error) {
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return NewJWTProviderFromKey(privKey, pubKey, opts...), nil
}

func NewJWTProviderFromKey(priv *rsa.PrivateKey, pub *rsa.PublicKey, opts ...Option) *JWTProvider {
	j := &JWTProvider{
		privateKey: priv,
		publicKey:  pub,
		ttl:        24 * time.Hour,
		issuer:     DefaultIssuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// NewEphemeralJWTProvider génère une paire RSA en mémoire (dev local) :
// les tokens ne survivent pas à un redémarrage.
func NewEphemeralJWTProvider(opts ...Option) (*JWTProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewJWTProviderFromKey(key, &key.PublicKey, opts...), nil
}

func (j *JWTProvider) TTL() time.Duration { return j.ttl }

func (j *JWTProvider) Issue(accountID string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   accountID,
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate vérifie signature, issuer et expiration puis renvoie l'ID du compte.
// Erreurs : domain.ErrAuthExpired, sinon domain.ErrAuthInvalid.
func (j *JWTProvider) Validate(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Empêche les attaques où l'attaquant force l'algo à "none" ou "HS256"
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrAuthExpired
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", domain.ErrAuthInvalid
	}
	return claims.Subject, nil
}
