package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/nerrad567/academia-core/internal/auth"
)

func rpc(t *testing.T, h http.Handler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc/"+method, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRPC_UsersGetWithoutToken(t *testing.T) {
	env := testServer(t)
	_, userID := env.register(t, "rpc@example.com", auth.RoleLecturer)
	h := env.srv.buildInternalRouter()

	w := rpc(t, h, "users.get", `{"id":`+strconv.FormatInt(userID, 10)+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data userSummary `json:"data"`
	}
	decode(t, w, &resp)
	if resp.Data.ID != userID || resp.Data.Role != auth.RoleLecturer {
		t.Errorf("user = %+v", resp.Data)
	}
}

func TestRPC_UsersGetErrors(t *testing.T) {
	env := testServer(t)
	h := env.srv.buildInternalRouter()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing id", `{}`, http.StatusBadRequest},
		{"malformed", `{"id":`, http.StatusBadRequest},
		{"unknown user", `{"id":424242}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := rpc(t, h, "users.get", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRPC_CoursesStats(t *testing.T) {
	env := testServer(t)
	lecturer, _ := env.register(t, "lect@example.com", auth.RoleLecturer)
	env.createCourse(t, lecturer, "Graphics")

	w := rpc(t, env.srv.buildInternalRouter(), "courses.stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data map[string]any `json:"data"`
	}
	decode(t, w, &resp)
	if len(resp.Data) == 0 {
		t.Error("stats response has no data")
	}
}

func TestRPC_UnknownMethod(t *testing.T) {
	env := testServer(t)

	if w := rpc(t, env.srv.buildInternalRouter(), "users.delete", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRPC_RestrictedOperationDenied(t *testing.T) {
	// A policy that declares roles for an RPC method refuses the
	// identity-less internal caller.
	env := testServer(t, func(d *Deps) {
		d.Policy = auth.NewPolicy(map[auth.Operation][]auth.Role{
			auth.OpRPCCoursesStats: {auth.RoleAdmin},
		})
	})

	if w := rpc(t, env.srv.buildInternalRouter(), "courses.stats", ""); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRPC_NotOnPublicRouter(t *testing.T) {
	env := testServer(t)

	if w := rpc(t, env.handler, "courses.stats", ""); w.Code != http.StatusNotFound {
		t.Errorf("public router status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
