package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/academia-core/internal/audit"
	"github.com/nerrad567/academia-core/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Role      auth.Role `json:"role,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// userSummary is the public view of an account.
type userSummary struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

func summarise(u *auth.User) userSummary {
	return userSummary{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// sessionResponse is the data of a successful login or refresh.
type sessionResponse struct {
	userSummary
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// meResponse is the data of GET /auth/me.
type meResponse struct {
	userSummary
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleRegister creates an account. It runs outside the gate.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	user, err := s.resolver.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	s.auditLog(audit.ActionRegister, "user", strconv.FormatInt(user.ID, 10), user.ID, audit.SourceAPI,
		map[string]any{"role": string(user.Role)})

	writeData(w, http.StatusCreated, "User registration successful", summarise(user))
}

// handleLogin verifies credentials and issues a token pair. Unknown email
// and wrong password produce the same 404 response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	session, err := s.resolver.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.loginResults.WithLabelValues(loginInvalidCredentials).Inc()
			s.auditLog(audit.ActionLoginFailed, "user", "", 0, audit.SourceAPI,
				map[string]any{"email": auth.NormaliseEmail(req.Email)})
		} else {
			s.metrics.loginResults.WithLabelValues(loginError).Inc()
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.metrics.loginResults.WithLabelValues(loginSuccess).Inc()
	s.auditLog(audit.ActionLogin, "user", strconv.FormatInt(session.User.ID, 10), session.User.ID, audit.SourceAPI, nil)

	writeData(w, http.StatusOK, "User login successful", sessionResponse{
		userSummary:  summarise(session.User),
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	})
}

// handleRefresh exchanges a refresh token for a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	session, err := s.resolver.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionRefresh, "user", strconv.FormatInt(session.User.ID, 10), session.User.ID, audit.SourceAPI, nil)

	writeData(w, http.StatusOK, "Token refresh successful", sessionResponse{
		userSummary:  summarise(session.User),
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	})
}

// handleMe returns the authenticated caller's account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.ActiveUser(r.Context())
	if id == nil {
		writeUnauthorized(w, auth.MsgMissingToken)
		return
	}

	user, err := s.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Token outlived its account.
			writeUnauthorized(w, auth.MsgInvalidToken)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, msgSuccessful, meResponse{
		userSummary: summarise(user),
		ExpiresAt:   id.ExpiresAt,
	})
}
