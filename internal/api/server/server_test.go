package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/chat"
	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/config"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
	"github.com/Timi0217/mixtapelive-sub000/internal/presence"
	"github.com/Timi0217/mixtapelive-sub000/internal/store"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	d.AutoMigrate(&models.Session{}, &models.Membership{}, &models.ChatMessage{})

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Server.LogLevel = "info"

	clk := clock.RealClock{}
	stores := store.NewGormStores(d)
	cache := presence.NewMemoryCache(clk)
	hub := gateway.NewHub()
	svc := broadcast.NewService(cache, stores.Sessions, stores.Memberships, hub, clk, 60*time.Second)
	pipe := chat.NewPipeline(cache, stores.Sessions, stores.Chat, hub, clk, 3*time.Second)

	srv := httptest.NewServer(New(cfg, hub, svc, pipe).Router())
	t.Cleanup(srv.Close)
	return srv
}

func mintToken(t *testing.T, userID, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, srv.URL+path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAuth_RejectsMissingAndBadTokens(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodGet, "/api/v1/broadcasts", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Missing token should be 401, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, srv, http.MethodGet, "/api/v1/broadcasts", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Garbage token should be 401, got %d", resp.StatusCode)
	}
}

func TestBroadcastLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	curator := mintToken(t, "curator-1", "dj-momo")

	// Go live
	resp, body := doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts", curator, map[string]string{"caption": "Evening session"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Start should be 201, got %d", resp.StatusCode)
	}
	var session models.Session
	raw, _ := json.Marshal(body)
	json.Unmarshal(raw, &session)
	if session.ID == "" || session.Status != models.StatusLive {
		t.Fatalf("Unexpected session payload: %+v", session)
	}

	// Second start while live conflicts
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts", curator, map[string]string{"caption": "Again"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Double start should be 409, got %d", resp.StatusCode)
	}

	// Shows up in discovery
	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/broadcasts", curator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List should be 200, got %d", resp.StatusCode)
	}
	if string(body["count"]) != "1" {
		t.Errorf("Expected 1 live broadcast, got %s", body["count"])
	}

	// Heartbeat from a non-curator is forbidden
	other := mintToken(t, "u-other", "someone")
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts/"+session.ID+"/heartbeat", other, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Foreign heartbeat should be 403, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts/"+session.ID+"/heartbeat", curator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Curator heartbeat should be 200, got %d", resp.StatusCode)
	}

	// Stop, then the list is empty
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts/"+session.ID+"/stop", curator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stop should be 200, got %d", resp.StatusCode)
	}
	_, body = doJSON(t, srv, http.MethodGet, "/api/v1/broadcasts", curator, nil)
	if string(body["count"]) != "0" {
		t.Errorf("Expected empty list after stop, got %s", body["count"])
	}
}

// wsFrame reads envelopes off a test WebSocket until the wanted event
// arrives or the deadline hits.
func wsExpect(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("Did not receive %q: %v", want, err)
		}
		if env.Event == want {
			return env.Data
		}
	}
}

func TestWebSocketJoinAndChat(t *testing.T) {
	srv := newTestServer(t)
	curator := mintToken(t, "curator-1", "dj-momo")

	_, body := doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts", curator, map[string]string{"caption": "Evening session"})
	var session models.Session
	raw, _ := json.Marshal(body)
	json.Unmarshal(raw, &session)

	// Listener connects over the upgrade path, token in the query string
	wsURL := strings.Replace(srv.URL, "http", "ws", 1) +
		"/api/v1/ws?token=" + mintToken(t, "u-listener", "night-owl")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	join := fmt.Sprintf(`{"event":"join-broadcast","data":{"session_id":%q}}`, session.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(join)); err != nil {
		t.Fatalf("Join frame failed: %v", err)
	}

	data := wsExpect(t, conn, gateway.EventBroadcastState)
	var state gateway.StatePayload
	json.Unmarshal(data, &state)
	if state.Session == nil || state.Session.ID != session.ID || state.ListenerCount != 1 {
		t.Fatalf("Unexpected state snapshot: %+v", state)
	}

	// Chat over the same socket
	msg := fmt.Sprintf(`{"event":"send-message","data":{"session_id":%q,"type":"text","content":"hello"}}`, session.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("Chat frame failed: %v", err)
	}
	data = wsExpect(t, conn, gateway.EventNewMessage)
	var got models.ChatMessage
	json.Unmarshal(data, &got)
	if got.Content != "hello" || got.Username != "night-owl" {
		t.Errorf("Wrong chat message on the wire: %+v", got)
	}

	// Curator ends from REST; the room hears about it on the socket
	doJSON(t, srv, http.MethodPost, "/api/v1/broadcasts/"+session.ID+"/stop", curator, nil)
	data = wsExpect(t, conn, gateway.EventBroadcastEnded)
	var ended gateway.EndedPayload
	json.Unmarshal(data, &ended)
	if ended.Reason != broadcast.ReasonCurator {
		t.Errorf("Expected curator end reason, got %q", ended.Reason)
	}
}
