// Package auth provides identity and access control for academia-core.
//
// A request passes through two gates before reaching business logic:
//
//   - The authentication Gate extracts an "Authorization: Bearer" token from
//     the transport (HTTP request or WebSocket handshake), verifies it with
//     the TokenService and attaches the resulting Identity to the context.
//   - The role Policy compares that Identity's role against the roles
//     declared for the Operation being invoked.
//
// Registration and login run outside the gates. The Resolver hashes
// passwords with bcrypt, persists users through a UserRepository and issues
// access/refresh token pairs signed with independent secrets.
//
// Trusted internal calls use TransportRPC, which the Gate passes without a
// token and without attaching an identity. Any operation with a role
// restriction therefore fails closed for RPC callers. The RPC listener
// must only be reachable from the trusted network.
package auth
