package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nerrad567/academia-core/internal/auth"

// Client-facing rejection messages. They are identical for every transport
// and never say why verification failed.
const (
	MsgMissingToken = "Please provide an access token in the request header"
	MsgInvalidToken = "Invalid access token provided"
)

// Transport identifies how a request reached the Gate.
type Transport int

const (
	TransportHTTP Transport = iota
	TransportWebSocket
	// TransportRPC is the trusted internal listener. The Gate accepts it
	// without a token and attaches no identity.
	TransportRPC
)

func (t Transport) String() string {
	switch t {
	case TransportHTTP:
		return "http"
	case TransportWebSocket:
		return "websocket"
	case TransportRPC:
		return "rpc"
	default:
		return "unknown"
	}
}

// GateState is a step of the per-request authentication state machine:
// NoToken -> TokenPresent -> Verified | Rejected.
type GateState int

const (
	StateNoToken GateState = iota
	StateTokenPresent
	StateVerified
	StateRejected
)

func (s GateState) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateTokenPresent:
		return "token_present"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Rejection is returned by the Gate when a request fails authentication.
// Message is safe to send to the client; Err is one of ErrMissingToken,
// ErrTokenInvalid or ErrTokenExpired and stays server-side.
type Rejection struct {
	Transport Transport
	Message   string
	Err       error
}

func (r *Rejection) Error() string { return r.Message }
func (r *Rejection) Unwrap() error { return r.Err }

// Observer receives the final state of every completed gate decision.
// reason is a short label such as "missing_token" or "expired".
type Observer func(transport Transport, state GateState, reason string)

// AccessVerifier verifies access tokens. *TokenService implements it.
type AccessVerifier interface {
	VerifyAccess(token string) (*Claims, error)
}

// extractor reads the bearer token for one transport.
type extractor func(header http.Header) (string, bool)

// Gate authenticates inbound requests. It holds no per-request state and is
// safe for concurrent use.
type Gate struct {
	verifier   AccessVerifier
	observer   Observer
	extractors map[Transport]extractor
	tracer     trace.Tracer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithObserver installs a decision observer, typically for metrics.
func WithObserver(o Observer) GateOption {
	return func(g *Gate) { g.observer = o }
}

// NewGate returns a Gate verifying tokens with v.
func NewGate(v AccessVerifier, opts ...GateOption) *Gate {
	g := &Gate{
		verifier: v,
		extractors: map[Transport]extractor{
			// Request header on every HTTP call.
			TransportHTTP: authorizationHeader,
			// Upgrade request header, checked once when the connection opens.
			TransportWebSocket: authorizationHeader,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate runs the gate for one request. It returns the verified
// identity, or a *Rejection. For TransportRPC it returns (nil, nil).
// If ctx is cancelled the decision is abandoned and ctx.Err() returned.
func (g *Gate) Authenticate(ctx context.Context, transport Transport, header http.Header) (*Identity, error) {
	ctx, span := g.tracer.Start(ctx, "auth.Gate.Authenticate",
		trace.WithAttributes(attribute.String("auth.transport", transport.String())))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if transport == TransportRPC {
		g.finish(span, transport, StateVerified, "trusted_rpc")
		return nil, nil
	}

	extract, ok := g.extractors[transport]
	if !ok {
		return nil, g.reject(span, transport, MsgMissingToken, ErrMissingToken, "unknown_transport")
	}
	token, ok := extract(header)
	if !ok {
		return nil, g.reject(span, transport, MsgMissingToken, ErrMissingToken, "missing_token")
	}

	// StateTokenPresent
	claims, err := g.verifier.VerifyAccess(token)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, ErrTokenExpired) {
			reason = "expired"
		}
		return nil, g.reject(span, transport, MsgInvalidToken, normalise(err), reason)
	}

	identity, err := claims.Identity()
	if err != nil {
		return nil, g.reject(span, transport, MsgInvalidToken, ErrTokenInvalid, "invalid_subject")
	}

	span.SetAttributes(attribute.String("auth.role", string(identity.Role)))
	g.finish(span, transport, StateVerified, "verified")
	return identity, nil
}

func (g *Gate) reject(span trace.Span, transport Transport, msg string, err error, reason string) error {
	span.SetStatus(codes.Error, reason)
	g.finish(span, transport, StateRejected, reason)
	return &Rejection{Transport: transport, Message: msg, Err: err}
}

func (g *Gate) finish(span trace.Span, transport Transport, state GateState, reason string) {
	span.SetAttributes(
		attribute.String("auth.state", state.String()),
		attribute.String("auth.reason", reason),
	)
	if g.observer != nil {
		g.observer(transport, state, reason)
	}
}

// normalise maps any verifier error onto the package's token sentinels so
// library detail never travels further.
func normalise(err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func authorizationHeader(header http.Header) (string, bool) {
	return ParseBearer(header.Get("Authorization"))
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is case-insensitive and exactly two fields are required.
func ParseBearer(value string) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}
