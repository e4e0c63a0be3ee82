package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAccessSecret  = "test-access-secret-at-least-32-chars!"
	testRefreshSecret = "test-refresh-secret-at-least-32-chars"
	testAudience      = "academia-clients"
	testIssuer        = "academia-core"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Audience:      testAudience,
		Issuer:        testIssuer,
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}
}

func testTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testTokenConfig())
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

var aliceIdentity = Identity{UserID: 42, Email: "alice@example.com", Role: RoleStudent}

func TestTokenConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{"missing access secret", func(c *TokenConfig) { c.AccessSecret = "" }},
		{"missing refresh secret", func(c *TokenConfig) { c.RefreshSecret = "" }},
		{"identical secrets", func(c *TokenConfig) { c.RefreshSecret = c.AccessSecret }},
		{"missing audience", func(c *TokenConfig) { c.Audience = "" }},
		{"missing issuer", func(c *TokenConfig) { c.Issuer = "" }},
		{"zero access ttl", func(c *TokenConfig) { c.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *TokenConfig) { c.RefreshTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTokenConfig()
			tt.mutate(&cfg)

			if _, err := NewTokenService(cfg); !errors.Is(err, ErrMisconfigured) {
				t.Errorf("NewTokenService() error = %v, want ErrMisconfigured", err)
			}
		})
	}

	if err := testTokenConfig().Validate(); err != nil {
		t.Errorf("valid config: Validate() error = %v", err)
	}
}

func TestIssueTokenPair_VerifyRoundTrip(t *testing.T) {
	svc := testTokenService(t)

	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("IssueTokenPair() returned an empty token")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	access, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if access.Subject != "42" || access.Email != "alice@example.com" || access.Role != RoleStudent {
		t.Errorf("access claims = %+v, want sub=42 alice STUDENT", access)
	}
	if access.RefreshTokenID != "" {
		t.Error("access token must not carry a refreshTokenId")
	}
	if access.ID == "" {
		t.Error("access token should carry a jti")
	}
	if got := access.ExpiresAt.Sub(access.IssuedAt.Time); got != time.Hour {
		t.Errorf("access lifetime = %v, want 1h", got)
	}

	refresh, err := svc.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh() error = %v", err)
	}
	if refresh.RefreshTokenID == "" {
		t.Error("refresh token must carry a refreshTokenId")
	}
	if got := refresh.ExpiresAt.Sub(refresh.IssuedAt.Time); got != 24*time.Hour {
		t.Errorf("refresh lifetime = %v, want 24h", got)
	}

	id, err := access.Identity()
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if id.UserID != 42 || id.ExpiresAt.IsZero() {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestIssueTokenPair_FreshRefreshID(t *testing.T) {
	svc := testTokenService(t)

	seen := make(map[string]bool)
	for range 5 {
		pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
		if err != nil {
			t.Fatalf("IssueTokenPair() error = %v", err)
		}
		claims, err := svc.VerifyRefresh(pair.RefreshToken)
		if err != nil {
			t.Fatalf("VerifyRefresh() error = %v", err)
		}
		if seen[claims.RefreshTokenID] {
			t.Fatalf("refreshTokenId %q reused", claims.RefreshTokenID)
		}
		seen[claims.RefreshTokenID] = true
	}
}

func TestIssueTokenPair_CancelledContext(t *testing.T) {
	svc := testTokenService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pair, err := svc.IssueTokenPair(ctx, aliceIdentity)
	if err == nil {
		t.Fatal("IssueTokenPair() with cancelled context should fail")
	}
	if pair != (TokenPair{}) {
		t.Errorf("IssueTokenPair() returned partial pair %+v", pair)
	}
}

func TestVerify_CrossSecret(t *testing.T) {
	svc := testTokenService(t)
	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("VerifyAccess(refresh) error = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("VerifyRefresh(access) error = %v, want ErrUnauthenticated", err)
	}

	// Same checks through the raw verifier with explicit secrets.
	if _, err := svc.Verify(pair.RefreshToken, testAudience, testIssuer, []byte(testAccessSecret)); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(refresh, access secret) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.Verify(pair.AccessToken, testAudience, testIssuer, []byte(testRefreshSecret)); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(access, refresh secret) error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_Rejections(t *testing.T) {
	svc := testTokenService(t)
	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	tests := []struct {
		name     string
		token    string
		audience string
		issuer   string
		secret   string
		want     error
	}{
		{"wrong secret", pair.AccessToken, testAudience, testIssuer, "some-other-secret-that-is-long-enough", ErrTokenInvalid},
		{"wrong audience", pair.AccessToken, "other-clients", testIssuer, testAccessSecret, ErrTokenInvalid},
		{"wrong issuer", pair.AccessToken, testAudience, "someone-else", testAccessSecret, ErrTokenInvalid},
		{"garbage", "not.a.jwt", testAudience, testIssuer, testAccessSecret, ErrTokenInvalid},
		{"empty", "", testAudience, testIssuer, testAccessSecret, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token, tt.audience, tt.issuer, []byte(tt.secret))
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("Verify() error = %v should be Unauthenticated", err)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	svc := testTokenService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	svc.now = time.Now
	_, err = svc.VerifyAccess(pair.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAccess(expired) error = %v, want ErrTokenExpired", err)
	}
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ErrTokenExpired should be Unauthenticated, got %v", err)
	}

	// The refresh token issued at the same time is still within its 24h TTL.
	if _, err := svc.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh() error = %v, want valid", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	svc := testTokenService(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Audience:  jwt.ClaimStrings{testAudience},
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "alice@example.com",
		Role:  RoleAdmin,
	}

	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testAccessSecret))
		if err != nil {
			t.Fatalf("signing with %s: %v", method.Alg(), err)
		}
		if _, err := svc.VerifyAccess(tok); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("VerifyAccess(%s) error = %v, want ErrTokenInvalid", method.Alg(), err)
		}
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none: %v", err)
	}
	if _, err := svc.VerifyAccess(unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(none) error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_RequiresExpiryAndRole(t *testing.T) {
	svc := testTokenService(t)

	sign := func(c Claims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testAccessSecret))
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return tok
	}
	base := jwt.RegisteredClaims{
		Subject:  "42",
		Audience: jwt.ClaimStrings{testAudience},
		Issuer:   testIssuer,
	}

	noExp := sign(Claims{RegisteredClaims: base, Email: "a@b.c", Role: RoleStudent})
	if _, err := svc.VerifyAccess(noExp); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("token without exp: error = %v, want ErrTokenInvalid", err)
	}

	base.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	badRole := sign(Claims{RegisteredClaims: base, Email: "a@b.c", Role: "SUPERUSER"})
	if _, err := svc.VerifyAccess(badRole); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("token with unknown role: error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_ErrorTextHidesLibraryDetail(t *testing.T) {
	svc := testTokenService(t)

	_, err := svc.VerifyAccess("eyJhbGciOiJIUzI1NiJ9.e30.bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "signature") || strings.Contains(err.Error(), "segment") {
		t.Errorf("error leaks parser detail: %q", err)
	}
}

func TestClaims_UserID(t *testing.T) {
	for _, sub := range []string{"", "abc", "0", "-4"} {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
		if _, err := c.UserID(); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("UserID() for subject %q error = %v, want ErrTokenInvalid", sub, err)
		}
	}
}
