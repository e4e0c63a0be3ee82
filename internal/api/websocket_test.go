package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
)

// dialWS opens a WebSocket to env through a real listener. token may be empty.
func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading message: %v", err)
	}
	return msg
}

func sendWS(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("writing message: %v", err)
	}
}

// expectClose reads until the server closes the socket and checks the
// close code and reason.
func expectClose(t *testing.T, conn *websocket.Conn, reason string) {
	t.Helper()

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("read error = %v, want close frame", err)
	}
	if ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", ce.Code, websocket.ClosePolicyViolation)
	}
	if ce.Text != reason {
		t.Errorf("close reason = %q, want %q", ce.Text, reason)
	}
}

func TestWebSocket_RejectsMissingToken(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env, "")
	expectClose(t, conn, auth.MsgMissingToken)
}

func TestWebSocket_RejectsInvalidToken(t *testing.T) {
	env := testServer(t)
	conn := dialWS(t, env, "not.a.jwt")
	expectClose(t, conn, auth.MsgInvalidToken)
}

func TestWebSocket_PingAndWhoAmI(t *testing.T) {
	env := testServer(t)
	token, userID := env.register(t, "ws@example.com", auth.RoleStudent)
	conn := dialWS(t, env, token)

	sendWS(t, conn, WSMessage{Type: WSTypePing, ID: "1"})
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "1" {
		t.Errorf("ping reply = %+v, want pong/1", msg)
	}

	sendWS(t, conn, WSMessage{Type: WSTypeWhoAmI, ID: "2"})
	msg := readWS(t, conn)
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("whoami payload = %T", msg.Payload)
	}
	if payload["id"] != float64(userID) || payload["role"] != string(auth.RoleStudent) {
		t.Errorf("whoami = %v, want id %d STUDENT", payload, userID)
	}
}

func TestWebSocket_UnknownMessage(t *testing.T) {
	env := testServer(t)
	token, _ := env.register(t, "ws@example.com", auth.RoleStudent)
	conn := dialWS(t, env, token)

	sendWS(t, conn, WSMessage{Type: "dance", ID: "x"})
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply type = %q, want error", msg.Type)
	}

	sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "y", Channel: "grades"})
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown channel reply type = %q, want error", msg.Type)
	}
}

func TestWebSocket_SubscribeForbidden(t *testing.T) {
	env := testServer(t)
	token, _ := env.register(t, "lect@example.com", auth.RoleLecturer)
	conn := dialWS(t, env, token)

	sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "1", Channel: course.ChannelEnrollmentEvents})
	msg := readWS(t, conn)
	if msg.Type != WSTypeError {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
	payload, _ := msg.Payload.(map[string]any)
	want := "Only users with the following roles can access this resource: STUDENT, ADMIN. Your role: LECTURER"
	if payload["message"] != want {
		t.Errorf("message = %v, want %q", payload["message"], want)
	}

	// The socket stays open after a refused subscription.
	sendWS(t, conn, WSMessage{Type: WSTypePing, ID: "2"})
	if msg := readWS(t, conn); msg.Type != WSTypePong {
		t.Errorf("ping after refusal = %q, want pong", msg.Type)
	}
}

func TestWebSocket_ReceivesCourseEvents(t *testing.T) {
	env := testServer(t)
	lecturer, _ := env.register(t, "lect@example.com", auth.RoleLecturer)
	student, _ := env.register(t, "stud@example.com", auth.RoleStudent)
	conn := dialWS(t, env, student)

	sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "1", Channel: course.ChannelCourseEvents})
	if msg := readWS(t, conn); msg.Type != WSTypeResponse {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	env.createCourse(t, lecturer, "Operating Systems")

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.Channel != course.ChannelCourseEvents {
		t.Fatalf("event = %+v", msg)
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var ev course.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != course.EventCourseCreated || ev.Course == nil || ev.Course.Title != "Operating Systems" {
		t.Errorf("event = %+v", ev)
	}
}

// readEvent reads the next frame and decodes it as a course event.
func readEvent(t *testing.T, conn *websocket.Conn) course.Event {
	t.Helper()
	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent {
		t.Fatalf("frame = %+v, want event", msg)
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var ev course.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func TestWebSocket_EnrollmentEventsScopedToStudent(t *testing.T) {
	env := testServer(t)
	lecturer, _ := env.register(t, "lect@example.com", auth.RoleLecturer)
	alice, aliceID := env.register(t, "alice@example.com", auth.RoleStudent)
	bob, bobID := env.register(t, "bob@example.com", auth.RoleStudent)
	admin, _ := env.register(t, "admin@example.com", auth.RoleAdmin)
	c := env.createCourse(t, lecturer, "Databases")
	cid := strconv.FormatInt(c.ID, 10)

	aliceConn := dialWS(t, env, alice)
	adminConn := dialWS(t, env, admin)
	for _, conn := range []*websocket.Conn{aliceConn, adminConn} {
		sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "1", Channel: course.ChannelEnrollmentEvents})
		if msg := readWS(t, conn); msg.Type != WSTypeResponse {
			t.Fatalf("subscribe reply = %+v", msg)
		}
	}

	if w := env.do(t, http.MethodPatch, "/api/v1/courses/enroll/"+cid, bob, nil); w.Code != http.StatusOK {
		t.Fatalf("bob enroll status = %d, body = %s", w.Code, w.Body.String())
	}
	ev := readEvent(t, adminConn)
	if ev.Enrollment == nil || ev.Enrollment.StudentID != bobID {
		t.Fatalf("admin event = %+v, want bob's enrollment", ev)
	}

	if w := env.do(t, http.MethodPatch, "/api/v1/courses/enroll/"+cid, alice, nil); w.Code != http.StatusOK {
		t.Fatalf("alice enroll status = %d, body = %s", w.Code, w.Body.String())
	}
	// Events are delivered in order, so bob's would arrive first.
	ev = readEvent(t, aliceConn)
	if ev.Type != course.EventEnrollmentRequested || ev.Enrollment == nil || ev.Enrollment.StudentID != aliceID {
		t.Errorf("alice event = %+v, want only her own enrollment", ev)
	}
	ev = readEvent(t, adminConn)
	if ev.Enrollment == nil || ev.Enrollment.StudentID != aliceID {
		t.Errorf("admin event = %+v, want alice's enrollment", ev)
	}
}

func TestEnrollmentVisible(t *testing.T) {
	own := course.Event{Type: course.EventEnrollmentApproved, Enrollment: &course.Enrollment{StudentID: 7}}
	other := course.Event{Type: course.EventEnrollmentApproved, Enrollment: &course.Enrollment{StudentID: 8}}

	tests := []struct {
		name    string
		id      *auth.Identity
		payload any
		want    bool
	}{
		{"student own event", &auth.Identity{UserID: 7, Role: auth.RoleStudent}, own, true},
		{"student own event pointer", &auth.Identity{UserID: 7, Role: auth.RoleStudent}, &own, true},
		{"student other event", &auth.Identity{UserID: 7, Role: auth.RoleStudent}, other, false},
		{"admin other event", &auth.Identity{UserID: 1, Role: auth.RoleAdmin}, other, true},
		{"no identity", nil, own, false},
		{"event without enrollment", &auth.Identity{UserID: 7, Role: auth.RoleStudent}, course.Event{}, false},
		{"unknown payload", &auth.Identity{UserID: 7, Role: auth.RoleStudent}, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := enrollmentVisible(tt.id, tt.payload); got != tt.want {
				t.Errorf("enrollmentVisible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebSocket_ClosesOnExpiredToken(t *testing.T) {
	env := testServer(t)
	token, _ := env.register(t, "ws@example.com", auth.RoleStudent)
	env.srv.hub.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	conn := dialWS(t, env, token)
	sendWS(t, conn, WSMessage{Type: WSTypePing, ID: "1"})
	expectClose(t, conn, auth.MsgInvalidToken)
}

func TestHub_ClientCount(t *testing.T) {
	env := testServer(t)
	token, _ := env.register(t, "ws@example.com", auth.RoleStudent)

	conn := dialWS(t, env, token)
	sendWS(t, conn, WSMessage{Type: WSTypePing})
	readWS(t, conn)
	if got := env.srv.hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.srv.hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after close = %d, want 0", got)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	env := testServer(t)
	token, _ := env.register(t, "ws@example.com", auth.RoleStudent)
	conn := dialWS(t, env, token)

	sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "1", Channel: course.ChannelCourseEvents})
	readWS(t, conn)
	sendWS(t, conn, WSMessage{Type: WSTypeUnsubscribe, ID: "2", Channel: course.ChannelCourseEvents})
	readWS(t, conn)

	env.srv.hub.Publish(course.ChannelCourseEvents, course.Event{Type: course.EventCourseCreated})

	// The next frame must be the pong, not the event.
	sendWS(t, conn, WSMessage{Type: WSTypePing, ID: "3"})
	if msg := readWS(t, conn); msg.Type != WSTypePong {
		t.Errorf("got %q, want pong", msg.Type)
	}
}
