package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/config"
	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

type fakeUsers struct {
	users map[string]model.User
	calls atomic.Int32
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*model.User, error) {
	f.calls.Add(1)
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}

func newProvider(t *testing.T, verify bool, users UserLookup) *Provider {
	t.Helper()
	p, err := NewProvider(&config.AuthConfig{JWTSecret: "s3cret", VerifyUser: verify, UserCacheTTL: time.Minute}, users)
	require.NoError(t, err)
	return p
}

func TestAuthenticate_ValidToken(t *testing.T) {
	p := newProvider(t, false, nil)
	token, err := p.Issue("u-1", model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	id, err := p.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Role: model.RoleAdmin}, id)
	assert.True(t, id.IsAdmin())

	id, err = p.Authenticate(context.Background(), token)
	require.NoError(t, err, "a raw token without the scheme is accepted")
	assert.Equal(t, "u-1", id.UserID)
}

func TestAuthenticate_Rejects(t *testing.T) {
	p := newProvider(t, false, nil)
	expired, err := p.Issue("u-1", model.RoleUser, -time.Minute)
	require.NoError(t, err)

	other := newProvider(t, false, nil)
	other.secret = []byte("different")
	foreign, err := other.Issue("u-1", model.RoleUser, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: model.RoleAdmin}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"empty":         "",
		"bearer only":   "Bearer ",
		"garbage":       "Bearer not-a-token",
		"expired":       "Bearer " + expired,
		"wrong secret":  "Bearer " + foreign,
		"alg none":      "Bearer " + none,
		"no user claim": "Bearer " + noUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), header)
			assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "got %v", err)
		})
	}
}

func TestAuthenticate_VerifiesUserWithCache(t *testing.T) {
	users := &fakeUsers{users: map[string]model.User{
		"u-1": {ID: "u-1", Role: model.RoleAdmin, Status: model.StatusActive},
		"u-2": {ID: "u-2", Role: model.RoleUser, Status: "inactive"},
	}}
	p := newProvider(t, true, users)

	token, err := p.Issue("u-1", model.RoleUser, time.Hour)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		id, err := p.Authenticate(context.Background(), "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, id.Role, "the directory role wins")
	}
	assert.Equal(t, int32(1), users.calls.Load())

	inactive, err := p.Issue("u-2", model.RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), "Bearer "+inactive)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	ghost, err := p.Issue("u-9", model.RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), "Bearer "+ghost)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestNewProvider_RequiresSecret(t *testing.T) {
	_, err := NewProvider(&config.AuthConfig{}, nil)
	assert.Error(t, err)
}
