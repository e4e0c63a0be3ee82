package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TokenConfig is the process-wide signing configuration. It is built once
// at startup and never mutated.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Audience      string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Validate reports every missing or inconsistent field as ErrMisconfigured.
func (c TokenConfig) Validate() error {
	var errs []error
	if c.AccessSecret == "" {
		errs = append(errs, errors.New("access secret is required"))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, errors.New("refresh secret is required"))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.Audience == "" {
		errs = append(errs, errors.New("audience is required"))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("issuer is required"))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("access TTL must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("refresh TTL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMisconfigured, errors.Join(errs...))
	}
	return nil
}

// Claims is the payload of both token classes. RefreshTokenID is only set
// on refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	RefreshTokenID string `json:"refreshTokenId,omitempty"`
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed subject", ErrTokenInvalid)
	}
	return id, nil
}

// Identity converts verified claims into the request-scoped identity.
func (c *Claims) Identity() (*Identity, error) {
	id, err := c.UserID()
	if err != nil {
		return nil, err
	}
	out := &Identity{
		UserID:         id,
		Email:          c.Email,
		Role:           c.Role,
		RefreshTokenID: c.RefreshTokenID,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService signs and verifies access and refresh tokens. It owns the
// signing keys and is safe for concurrent use.
type TokenService struct {
	cfg           TokenConfig
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenService validates cfg and returns a service bound to it.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenService{
		cfg:           cfg,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		now:           time.Now,
	}, nil
}

// Config returns the signing configuration.
func (s *TokenService) Config() TokenConfig {
	return s.cfg
}

// IssueTokenPair signs an access token and a refresh token for the identity.
// The two signings run concurrently; no pair is returned unless both succeed.
func (s *TokenService) IssueTokenPair(ctx context.Context, id Identity) (TokenPair, error) {
	refreshID := uuid.NewString()
	now := s.now()

	var pair TokenPair
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := s.sign(ctx, id, "", s.accessSecret, now, s.cfg.AccessTTL)
		if err != nil {
			return fmt.Errorf("signing access token: %w", err)
		}
		pair.AccessToken = tok
		return nil
	})
	g.Go(func() error {
		tok, err := s.sign(ctx, id, refreshID, s.refreshSecret, now, s.cfg.RefreshTTL)
		if err != nil {
			return fmt.Errorf("signing refresh token: %w", err)
		}
		pair.RefreshToken = tok
		return nil
	})
	if err := g.Wait(); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *TokenService) sign(ctx context.Context, id Identity, refreshID string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email:          id.Email,
		Role:           id.Role,
		RefreshTokenID: refreshID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, algorithm, issuer, audience and expiry. Library
// detail is dropped: callers only see ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) Verify(token, audience, issuer string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" || !IsValidRole(claims.Role) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyAccess verifies an access token against the access secret.
// Refresh tokens are rejected even if they were somehow signed with it.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	claims, err := s.Verify(token, s.cfg.Audience, s.cfg.Issuer, s.accessSecret)
	if err != nil {
		return nil, err
	}
	if claims.RefreshTokenID != "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token against the refresh secret.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	claims, err := s.Verify(token, s.cfg.Audience, s.cfg.Issuer, s.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.RefreshTokenID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
