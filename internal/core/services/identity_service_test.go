package services_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/security"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/services"
)

func newIdentityService(t *testing.T) (*services.IdentityService, *repository.MemoryStore, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	tokens := security.NewJWTProviderFromKey(key, &key.PublicKey, security.WithTTL(time.Hour))
	return services.NewIdentityService(store, store, security.NewArgon2Hasher(security.FastParams), tokens), store, key
}

func register(t *testing.T, svc *services.IdentityService, handle string) *ports.AuthResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), ports.RegisterCmd{
		Handle:   handle,
		Contact:  handle + "@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return resp
}

func TestRegister_IssuesSessionToken(t *testing.T) {
	svc, _, _ := newIdentityService(t)

	resp := register(t, svc, "Alice")
	assert.Equal(t, "alice", resp.Account.Handle)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, time.Hour, resp.ExpiresIn)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, 5*time.Second)
	assert.NotContains(t, resp.Account.PasswordHash, "correct horse")

	account, err := svc.Authenticate(context.Background(), "Bearer "+resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Account.ID, account.ID)
}

func TestRegister_Duplicates(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	register(t, svc, "alice")

	_, err := svc.Register(context.Background(), ports.RegisterCmd{Handle: "ALICE", Contact: "other@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrHandleTaken)

	_, err = svc.Register(context.Background(), ports.RegisterCmd{Handle: "alice2", Contact: "Alice@Example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrContactTaken)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, ports.RegisterCmd{Handle: "ab", Contact: "ab@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidHandle)
	_, err = svc.Register(ctx, ports.RegisterCmd{Handle: "abc", Contact: "nope", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidContact)
	_, err = svc.Register(ctx, ports.RegisterCmd{Handle: "abc", Contact: "abc@example.com", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrWeakPassword)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()
	reg := register(t, svc, "alice")

	byHandle, err := svc.Login(ctx, ports.LoginCmd{Identifier: "Alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, byHandle.Account.ID)
	assert.Equal(t, reg.ExpiresIn, byHandle.ExpiresIn, "login and register share one token lifetime")

	byContact, err := svc.Login(ctx, ports.LoginCmd{Identifier: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, byContact.Account.ID)

	_, err = svc.Login(ctx, ports.LoginCmd{Identifier: "alice", Password: "wrong password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, ports.LoginCmd{Identifier: "nobody", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticate_Failures(t *testing.T) {
	svc, _, key := newIdentityService(t)
	ctx := context.Background()
	reg := register(t, svc, "alice")

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
	_, err = svc.Authenticate(ctx, reg.Token)
	assert.ErrorIs(t, err, domain.ErrAuthMissing, "missing Bearer scheme")
	_, err = svc.Authenticate(ctx, "Bearer not.a.jwt")
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)

	// Signé par une autre clé
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged, _, err := security.NewJWTProviderFromKey(other, &other.PublicKey).Issue(reg.Account.ID)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "Bearer "+forged)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)

	// Bonne signature, compte inconnu
	ghost, _, err := security.NewJWTProviderFromKey(key, &key.PublicKey).Issue("ghost")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "Bearer "+ghost)
	assert.ErrorIs(t, err, domain.ErrAuthAccountNotFound)
}

func TestAuthenticate_ExpiredTokenBlocksMutation(t *testing.T) {
	svc, store, key := newIdentityService(t)
	ctx := context.Background()
	u1 := register(t, svc, "alice")
	u2 := register(t, svc, "bob")

	past := security.NewJWTProviderFromKey(key, &key.PublicKey,
		security.WithTTL(time.Hour),
		security.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }),
	)
	expired, _, err := past.Issue(u1.Account.ID)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "Bearer "+expired)
	require.ErrorIs(t, err, domain.ErrAuthExpired)

	rel, err := store.Relations(ctx, u2.Account.ID)
	require.NoError(t, err)
	assert.Empty(t, rel.Followers)
}

func TestGetAccount_IncludesRelations(t *testing.T) {
	svc, store, _ := newIdentityService(t)
	ctx := context.Background()
	u1 := register(t, svc, "alice")
	u2 := register(t, svc, "bob")
	graph := services.NewGraphService(store, store, nil, fastRetry, nil)

	_, err := graph.Follow(ctx, u1.Account.ID, u2.Account.ID)
	require.NoError(t, err)

	a2, err := svc.GetAccount(ctx, u2.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{u1.Account.ID}, a2.Followers)

	_, err = svc.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestParseBearer(t *testing.T) {
	cases := []struct {
		header string
		token  string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"  Bearer   abc  ", "abc", nil},
		{"", "", domain.ErrAuthMissing},
		{"Bearer", "", domain.ErrAuthMissing},
		{"Bearer ", "", domain.ErrAuthMissing},
		{"Basic abc", "", domain.ErrAuthMissing},
		{"Bearer a b", "", domain.ErrAuthMissing},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			token, err := services.ParseBearer(tc.header)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.token, token)
		})
	}
}
