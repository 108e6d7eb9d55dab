// Package provider resolves bearer tokens into authenticated identities.
//
// Tokens only carry the subject; role, country and the active flag are read from the
// user store on every resolution (through an optional cache) so a demotion or
// deactivation takes effect without waiting for token expiry.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"projectdesk/internal/identity"
	"projectdesk/internal/identity/models"
	usermodels "projectdesk/internal/user/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
	"projectdesk/pkg/platform/sentinel"
)

// UserLookup loads the account behind a token subject.
type UserLookup interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// Cache stores resolved identities between requests. Get returns
// sentinel.ErrNotFound on a miss. Set must drop the write when the account's
// generation moved past the one read before the lookup.
type Cache interface {
	Get(ctx context.Context, userID id.UserID) (*models.Identity, error)
	Generation(ctx context.Context, userID id.UserID) (int64, error)
	Set(ctx context.Context, identity *models.Identity, generation int64) error
	Invalidate(ctx context.Context, userID id.UserID) error
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Provider issues and validates access tokens.
type Provider struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	users      UserLookup
	cache      Cache
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Provider)

func WithCache(cache Cache) Option {
	return func(p *Provider) {
		p.cache = cache
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithClock overrides the token clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func New(signingKey, issuer string, users UserLookup, opts ...Option) *Provider {
	p := &Provider{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        time.Hour,
		users:      users,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Issue signs an access token for the given account.
func (p *Provider) Issue(userID id.UserID) (string, error) {
	if userID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user ID required")
	}
	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Authenticate validates the token and resolves the current identity of its subject.
func (p *Provider) Authenticate(ctx context.Context, tokenString string) (*models.Identity, error) {
	userID, err := p.validate(tokenString)
	if err != nil {
		return nil, err
	}
	ident, err := p.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ident.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account is inactive")
	}
	return ident, nil
}

// Attach authenticates the token and returns a context carrying the identity.
func (p *Provider) Attach(ctx context.Context, tokenString string) (context.Context, error) {
	ident, err := p.Authenticate(ctx, tokenString)
	if err != nil {
		return ctx, err
	}
	return identity.WithIdentity(ctx, ident), nil
}

func (p *Provider) validate(tokenString string) (id.UserID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.signingKey, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithTimeFunc(p.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return userID, nil
}

func (p *Provider) resolve(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	cacheable := false
	var generation int64
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			p.warn(ctx, "identity cache read failed", "user_id", userID.String(), "error", err)
		}
		generation, err = p.cache.Generation(ctx, userID)
		if err != nil {
			p.warn(ctx, "identity generation read failed", "user_id", userID.String(), "error", err)
		} else {
			cacheable = true
		}
	}

	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown account")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	ident := user.Identity()

	if cacheable {
		if err := p.cache.Set(ctx, ident, generation); err != nil {
			p.warn(ctx, "identity cache write failed", "user_id", userID.String(), "error", err)
		}
	}
	return ident, nil
}

func (p *Provider) warn(ctx context.Context, msg string, args ...any) {
	if p.logger != nil {
		p.logger.WarnContext(ctx, msg, args...)
	}
}
