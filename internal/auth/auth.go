// Package auth resolves bearer tokens into the identity the attendance core trusts.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"

	"attendance-backend/config"
	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the caller may act on other users' data.
func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// Claims is the token payload issued by the user service.
type Claims struct {
	UserID string `json:"_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// UserLookup reads users from the directory.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Provider verifies HS256 tokens and, optionally, that the user still exists and is active.
type Provider struct {
	secret []byte
	verify bool
	users  UserLookup
	cache  *ttlcache.Cache[string, model.User]
}

// NewProvider creates a provider. users may be nil when cfg.VerifyUser is off.
func NewProvider(cfg *config.AuthConfig, users UserLookup) (*Provider, error) {
	if cfg.JWTSecret == "" {
		return nil, apperr.Validation("auth.jwt_secret is required")
	}
	if cfg.VerifyUser && users == nil {
		return nil, apperr.Validation("auth.verify_user needs a user directory")
	}
	return &Provider{
		secret: []byte(cfg.JWTSecret),
		verify: cfg.VerifyUser,
		users:  users,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, model.User](cfg.UserCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, model.User](),
		),
	}, nil
}

// Authenticate resolves an Authorization header value ("Bearer <token>").
func (p *Provider) Authenticate(ctx context.Context, header string) (Identity, error) {
	token := strings.TrimSpace(header)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return Identity{}, apperr.Unauthorized("missing bearer token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, apperr.Unauthorized("invalid token: %v", err)
	}

	id := Identity{UserID: claims.UserID, Role: claims.Role}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return Identity{}, apperr.Unauthorized("token carries no user id")
	}
	if id.Role == "" {
		id.Role = model.RoleUser
	}
	if !p.verify {
		return id, nil
	}

	user, err := p.lookup(ctx, id.UserID)
	if err != nil {
		return Identity{}, err
	}
	if user.Status != "" && user.Status != model.StatusActive {
		return Identity{}, apperr.Unauthorized("user %s is %s", user.ID, user.Status)
	}
	if user.Role != "" {
		id.Role = user.Role
	}
	return id, nil
}

func (p *Provider) lookup(ctx context.Context, userID string) (model.User, error) {
	if item := p.cache.Get(userID); item != nil {
		return item.Value(), nil
	}
	user, err := p.users.GetUser(ctx, userID)
	if apperr.Is(err, apperr.KindNotFound) {
		return model.User{}, apperr.Unauthorized("user %s does not exist", userID)
	}
	if err != nil {
		return model.User{}, err
	}
	p.cache.Set(userID, *user, ttlcache.DefaultTTL)
	return *user, nil
}

// Issue signs a token for userID valid for ttl.
func (p *Provider) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
