package auth

import (
	"context"
	"errors"
	"fmt"
)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 6

// maxNameLength bounds the optional first and last names.
const maxNameLength = 100

// RegisterInput is the registration request. Role defaults to STUDENT.
type RegisterInput struct {
	Email     string
	Password  string
	Role      Role
	FirstName string
	LastName  string
}

// Session is the outcome of a successful login or refresh.
type Session struct {
	User   *User
	Tokens TokenPair
}

// Resolver registers users and exchanges credentials for token pairs.
// It runs outside the gates.
type Resolver struct {
	users  UserRepository
	hasher *Hasher
	tokens *TokenService
}

// NewResolver wires a Resolver to its collaborators.
func NewResolver(users UserRepository, hasher *Hasher, tokens *TokenService) *Resolver {
	return &Resolver{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account. An email already on file, including one
// inserted concurrently, fails with ErrEmailExists.
func (r *Resolver) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormaliseEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, ClientErrorf(ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = RoleStudent
	}
	if !IsValidRole(role) {
		return nil, ClientErrorf(ErrInvalidInput, "role must be one of STUDENT, LECTURER, ADMIN")
	}
	if len(in.FirstName) > maxNameLength || len(in.LastName) > maxNameLength {
		return nil, ClientErrorf(ErrInvalidInput, "names must be at most %d characters", maxNameLength)
	}

	switch _, err := r.users.GetByEmail(ctx, email); {
	case err == nil:
		return nil, ErrEmailExists
	case !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the credentials and issues a token pair. An unknown email
// and a wrong password both return ErrInvalidCredentials after one bcrypt
// comparison, so neither the error nor the timing reveals which it was.
func (r *Resolver) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := r.users.GetByEmail(ctx, NormaliseEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			r.hasher.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !r.hasher.Compare(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return r.issue(ctx, user)
}

// Refresh exchanges a valid refresh token for a new pair. The role is read
// from the store, not from the presented token.
func (r *Resolver) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := r.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return r.issue(ctx, user)
}

func (r *Resolver) issue(ctx context.Context, user *User) (*Session, error) {
	pair, err := r.tokens.IssueTokenPair(ctx, Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}
	return &Session{User: user, Tokens: pair}, nil
}
