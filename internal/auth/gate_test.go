package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type observed struct {
	transport Transport
	state     GateState
	reason    string
}

type recorder struct {
	mu     sync.Mutex
	events []observed
}

func (r *recorder) observe(t Transport, s GateState, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, observed{t, s, reason})
}

func (r *recorder) last() observed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestGate_VerifiedOnBothTransports(t *testing.T) {
	svc := testTokenService(t)
	rec := &recorder{}
	gate := NewGate(svc, WithObserver(rec.observe))

	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	for _, transport := range []Transport{TransportHTTP, TransportWebSocket} {
		t.Run(transport.String(), func(t *testing.T) {
			id, err := gate.Authenticate(context.Background(), transport, bearer(pair.AccessToken))
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if id.UserID != 42 || id.Email != "alice@example.com" || id.Role != RoleStudent {
				t.Errorf("identity = %+v", id)
			}
			if id.ExpiresAt.IsZero() {
				t.Error("identity should carry the token expiry")
			}
			if got := rec.last(); got.state != StateVerified || got.transport != transport {
				t.Errorf("observer got %+v, want verified/%s", got, transport)
			}
		})
	}
}

func TestGate_MissingOrMalformedHeader(t *testing.T) {
	gate := NewGate(testTokenService(t))

	headers := map[string]http.Header{
		"absent":        {},
		"empty":         {"Authorization": {""}},
		"wrong scheme":  {"Authorization": {"Basic dXNlcjpwYXNz"}},
		"scheme only":   {"Authorization": {"Bearer"}},
		"three fields":  {"Authorization": {"Bearer a b"}},
		"token no type": {"Authorization": {"eyJhbGciOiJIUzI1NiJ9"}},
	}

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			for _, transport := range []Transport{TransportHTTP, TransportWebSocket} {
				_, err := gate.Authenticate(context.Background(), transport, header)

				var rej *Rejection
				if !errors.As(err, &rej) {
					t.Fatalf("%s: error = %v, want *Rejection", transport, err)
				}
				if rej.Message != MsgMissingToken {
					t.Errorf("%s: Message = %q, want %q", transport, rej.Message, MsgMissingToken)
				}
				if rej.Transport != transport {
					t.Errorf("Transport = %v, want %v", rej.Transport, transport)
				}
				if !errors.Is(err, ErrUnauthenticated) {
					t.Errorf("%s: rejection should be Unauthenticated", transport)
				}
			}
		})
	}
}

func TestGate_InvalidAndExpiredTokens(t *testing.T) {
	svc := testTokenService(t)
	rec := &recorder{}
	gate := NewGate(svc, WithObserver(rec.observe))

	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	old := testTokenService(t)
	old.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	stale, err := old.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantErr    error
		wantReason string
	}{
		{"garbage", "garbage", ErrTokenInvalid, "invalid_token"},
		{"refresh token", pair.RefreshToken, ErrTokenInvalid, "invalid_token"},
		{"expired", stale.AccessToken, ErrTokenExpired, "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authenticate(context.Background(), TransportHTTP, bearer(tt.token))

			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("error = %v, want *Rejection", err)
			}
			if rej.Message != MsgInvalidToken {
				t.Errorf("Message = %q, want %q", rej.Message, MsgInvalidToken)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", rej.Err, tt.wantErr)
			}
			if got := rec.last(); got.state != StateRejected || got.reason != tt.wantReason {
				t.Errorf("observer got %+v, want rejected/%s", got, tt.wantReason)
			}
		})
	}
}

func TestGate_CaseInsensitiveScheme(t *testing.T) {
	svc := testTokenService(t)
	gate := NewGate(svc)

	pair, err := svc.IssueTokenPair(context.Background(), aliceIdentity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	h := http.Header{}
	h.Set("Authorization", "bEaReR   "+pair.AccessToken)
	if _, err := gate.Authenticate(context.Background(), TransportHTTP, h); err != nil {
		t.Errorf("Authenticate() error = %v", err)
	}
}

func TestGate_RPCBypass(t *testing.T) {
	rec := &recorder{}
	gate := NewGate(testTokenService(t), WithObserver(rec.observe))

	id, err := gate.Authenticate(context.Background(), TransportRPC, nil)
	if err != nil {
		t.Fatalf("Authenticate(RPC) error = %v", err)
	}
	if id != nil {
		t.Errorf("RPC identity = %+v, want nil", id)
	}
	if got := rec.last(); got.state != StateVerified || got.reason != "trusted_rpc" {
		t.Errorf("observer got %+v", got)
	}
}

func TestGate_CancelledContext(t *testing.T) {
	rec := &recorder{}
	gate := NewGate(testTokenService(t), WithObserver(rec.observe))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gate.Authenticate(ctx, TransportHTTP, bearer("anything"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Authenticate() error = %v, want context.Canceled", err)
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		t.Error("cancelled request should not produce a rejection")
	}
	if len(rec.events) != 0 {
		t.Errorf("observer should not be called, got %+v", rec.events)
	}
}

func TestGate_UnknownTransport(t *testing.T) {
	gate := NewGate(testTokenService(t))

	_, err := gate.Authenticate(context.Background(), Transport(99), bearer("x"))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Authenticate(unknown) error = %v, want Unauthenticated", err)
	}
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer  abc  ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
		{"Bearer abc def", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseBearer(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBearer(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTransportAndStateStrings(t *testing.T) {
	if TransportWebSocket.String() != "websocket" || TransportRPC.String() != "rpc" {
		t.Error("unexpected transport names")
	}
	if StateRejected.String() != "rejected" || StateNoToken.String() != "no_token" {
		t.Error("unexpected state names")
	}
}
