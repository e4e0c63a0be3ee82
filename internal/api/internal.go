package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/academia-core/internal/auth"
)

// rpcHandler serves one internal RPC method. params is the raw request body.
type rpcHandler func(ctx context.Context, params json.RawMessage) (any, error)

// rpcMethod pairs a handler with the operation the role gate checks.
type rpcMethod struct {
	op      auth.Operation
	handler rpcHandler
}

// usersGetParams are the params of users.get.
type usersGetParams struct {
	ID int64 `json:"id"`
}

// rpcMethods returns the internal RPC method table.
func (s *Server) rpcMethods() map[string]rpcMethod {
	return map[string]rpcMethod{
		"users.get":     {op: auth.OpRPCUsersGet, handler: s.rpcUsersGet},
		"courses.stats": {op: auth.OpRPCCoursesStats, handler: s.rpcCoursesStats},
	}
}

// buildInternalRouter creates the router for the internal RPC listener.
// Requests on it pass the gate without a token.
func (s *Server) buildInternalRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	methods := s.rpcMethods()
	r.Post("/rpc/{method}", func(w http.ResponseWriter, r *http.Request) {
		s.handleRPC(w, r, methods)
	})

	return r
}

// handleRPC dispatches POST /rpc/{method}.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request, methods map[string]rpcMethod) {
	name := chi.URLParam(r, "method")
	m, ok := methods[name]
	if !ok {
		writeNotFound(w, "Unknown RPC method: "+name)
		return
	}

	id, err := s.gate.Authenticate(r.Context(), auth.TransportRPC, r.Header)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ctx := r.Context()
	if id != nil {
		ctx = auth.WithIdentity(ctx, id)
	}

	if err := s.policy.AuthorizeContext(ctx, m.op); err != nil {
		s.recordForbidden(auth.TransportRPC, id, m.op, err)
		s.writeServiceError(w, r, err)
		return
	}

	var params json.RawMessage
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeBadRequest(w, msgInvalidJSON)
			return
		}
	}

	result, err := m.handler(ctx, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgSuccessful, result)
}

func (s *Server) rpcUsersGet(ctx context.Context, params json.RawMessage) (any, error) {
	var p usersGetParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, auth.ClientErrorf(auth.ErrInvalidInput, "params must be a JSON object")
		}
	}
	if p.ID <= 0 {
		return nil, auth.ClientErrorf(auth.ErrInvalidInput, "id must be a positive integer")
	}

	user, err := s.users.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return summarise(user), nil
}

func (s *Server) rpcCoursesStats(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.courses.Stats(ctx)
}
