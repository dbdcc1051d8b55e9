package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/chat"
	"callrelay/internal/configs"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	log *calllog.Log
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:        "development",
		Port:               8080,
		JWTSecret:          "test-secret",
		RegistrationPolicy: configs.PolicyStrict,
		StaleAfter:         time.Minute,
		SweepInterval:      time.Hour,
		RingTimeout:        time.Hour,
		WSConnectRate:      100,
		WSConnectBurst:     100,
	}

	log := calllog.NewLog(calllog.NewMemoryStore())
	manager := chat.NewManager(cfg, log)
	srv := httptest.NewServer(Router(&AppDeps{Manager: manager, Config: cfg, CallLog: log}))

	t.Cleanup(func() {
		srv.Close()
		manager.Shutdown()
		log.Close()
	})
	return &testServer{Server: srv, log: log}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	expect(t, conn, chat.EventConnectionStatus)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// expect reads frames until one named event arrives and decodes its data into a map.
func expect(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg.Event != event {
			continue
		}

		data := map[string]any{}
		_ = json.Unmarshal(msg.Data, &data)
		return data
	}
}

func registerUser(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	send(t, conn, chat.EventRegisterUser, map[string]any{"username": name})
	if got := expect(t, conn, chat.EventRegistrationSuccess); got["username"] != name {
		t.Fatalf("registration_success = %v", got)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	res, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
}

func TestCallFlowOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	registerUser(t, alice, "alice")
	registerUser(t, bob, "bob")

	send(t, alice, chat.EventCallRequest, map[string]any{"to": "bob"})
	if got := expect(t, bob, "incoming_call"); got["from"] != "alice" {
		t.Fatalf("incoming_call = %v", got)
	}

	send(t, bob, chat.EventAcceptCall, map[string]any{"from": "alice"})
	if got := expect(t, alice, "call_accepted"); got["from"] != "bob" {
		t.Fatalf("call_accepted = %v", got)
	}

	send(t, alice, chat.EventOffer, map[string]any{"to": "bob", "offer": map[string]any{"type": "offer", "sdp": "v=0"}})
	got := expect(t, bob, chat.EventOffer)
	if offer, ok := got["offer"].(map[string]any); !ok || offer["sdp"] != "v=0" || got["from"] != "alice" {
		t.Fatalf("offer = %v", got)
	}

	// Dropping alice mid-call ends the call for bob.
	alice.Close()
	if got := expect(t, bob, "end_call"); got["from"] != "alice" {
		t.Fatalf("end_call = %v", got)
	}

	res, err := http.Get(s.URL + "/api/users")
	if err != nil {
		t.Fatalf("GET /api/users: %v", err)
	}
	defer res.Body.Close()

	var body struct {
		Data []struct {
			Name      string `json:"name"`
			CallState string `json:"callState"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Name != "bob" || body.Data[0].CallState != "idle" {
		t.Errorf("users = %+v", body.Data)
	}
}

func TestNameTakenOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	first := s.dial(t)
	second := s.dial(t)

	registerUser(t, first, "alice")

	send(t, second, chat.EventRegisterUser, map[string]any{"username": "alice"})
	if got := expect(t, second, chat.EventRegistrationError); got["code"] != "NAME_TAKEN" {
		t.Fatalf("registration_error = %v", got)
	}

	send(t, first, chat.EventHeartbeat, nil)
	send(t, first, chat.EventSendMessage, map[string]any{"to": "alice", "message": "still here"})
	if got := expect(t, first, chat.EventReceiveMessage); got["message"] != "still here" {
		t.Errorf("receive_message = %v", got)
	}
}

func TestListCalls(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t)
	bob := s.dial(t)

	registerUser(t, alice, "alice")
	registerUser(t, bob, "bob")

	send(t, alice, chat.EventCallRequest, map[string]any{"to": "bob"})
	expect(t, bob, "incoming_call")
	send(t, bob, chat.EventEndCall, map[string]any{"to": "alice"})
	expect(t, alice, "end_call")

	deadline := time.Now().Add(3 * time.Second)
	for {
		entries, err := s.log.List(context.Background(), "alice", "bob", 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("records = %+v, want request and rejection", entries)
		}
		time.Sleep(10 * time.Millisecond)
	}

	res, err := http.Get(s.URL + "/api/calls?a=alice&b=bob")
	if err != nil {
		t.Fatalf("GET /api/calls: %v", err)
	}
	defer res.Body.Close()

	var body struct {
		Data []calllog.Entry `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || body.Data[0].Status != calllog.StatusRejected || body.Data[1].Status != calllog.StatusRequest {
		t.Errorf("calls = %+v", body.Data)
	}
}

func TestListCallsRejectsBadParams(t *testing.T) {
	s := newTestServer(t)

	for _, query := range []string{"", "?a=alice", "?a=alice&b=b_b", "?a=alice&b=bob&limit=x"} {
		res, err := http.Get(s.URL + "/api/calls" + query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}

		var body struct {
			Key string `json:"key"`
		}
		_ = json.NewDecoder(res.Body).Decode(&body)
		res.Body.Close()

		if body.Key != "INVALID_PARAMS" {
			t.Errorf("%q: key = %q, want INVALID_PARAMS", query, body.Key)
		}
	}
}
