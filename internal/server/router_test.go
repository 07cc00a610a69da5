package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"convo-server/internal/auth"
	"convo-server/internal/pubsub"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory, *pubsub.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	broker := pubsub.NewMemory()
	tokenCfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	return NewRouter(Deps{Store: st, Broker: broker, TokenConfig: tokenCfg}), st, broker
}

func postJSON(t *testing.T, r *gin.Engine, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, r *gin.Engine, username, email string) string {
	t.Helper()
	w := postJSON(t, r, "/v1/auth/register", "", map[string]any{
		"username": username, "email": email, "password": "password1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/v1/auth/login", "", map[string]any{
		"username": username, "password": "password1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}
	var resp struct {
		Token  string `json:"token"`
		Expiry int64  `json:"expiry"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in login response")
	}
	if resp.Expiry != 3600 {
		t.Fatalf("expected expiry 3600, got %d", resp.Expiry)
	}
	return resp.Token
}

func TestRegisterLoginAndConverse(t *testing.T) {
	r, st, _ := newTestRouter(t)

	aliceToken := registerAndLogin(t, r, "alice", "a@x.com")
	registerAndLogin(t, r, "bob", "b@x.com")

	bob, err := st.GetUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}

	// Start a conversation with bob; alice is included implicitly.
	w := postJSON(t, r, "/v1/conversations", aliceToken, map[string]any{
		"participant_ids": []string{bob.ID}, "content": "hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("start conversation: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Both participants see the conversation with its first message.
	w = getJSON(t, r, "/v1/conversations", aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var listed struct {
		Conversations []struct {
			ID       string `json:"id"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Conversations) != 1 || listed.Conversations[0].ID != started.Conversation.ID {
		t.Fatalf("unexpected conversation list: %s", w.Body.String())
	}
	if len(listed.Conversations[0].Messages) != 1 || listed.Conversations[0].Messages[0].Content != "hi" {
		t.Fatalf("expected newest message attached: %s", w.Body.String())
	}

	// Send a follow-up and fetch the conversation.
	w = postJSON(t, r, "/v1/conversations/"+started.Conversation.ID+"/messages", aliceToken, map[string]any{"content": "again"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = getJSON(t, r, "/v1/conversations/"+started.Conversation.ID, aliceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r, _, _ := newTestRouter(t)

	if w := getJSON(t, r, "/v1/conversations", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := postJSON(t, r, "/v1/conversations", "", map[string]any{"content": "x"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	r, _, _ := newTestRouter(t)
	registerAndLogin(t, r, "alice", "a@x.com")

	w := postJSON(t, r, "/v1/auth/register", "", map[string]any{
		"username": "alice2", "email": "a@x.com", "password": "password1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	r, _, _ := newTestRouter(t)
	registerAndLogin(t, r, "alice", "a@x.com")

	unknown := postJSON(t, r, "/v1/auth/login", "", map[string]any{
		"username": "nobody", "password": "password1",
	})
	wrongPassword := postJSON(t, r, "/v1/auth/login", "", map[string]any{
		"username": "alice", "password": "not-the-password",
	})

	if unknown.Code != http.StatusUnauthorized || wrongPassword.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrongPassword.Code)
	}
	if unknown.Body.String() != wrongPassword.Body.String() {
		t.Fatalf("login failures must look identical: %q vs %q", unknown.Body.String(), wrongPassword.Body.String())
	}
}

func TestGetConversation_MissingAndForbidden(t *testing.T) {
	r, st, _ := newTestRouter(t)

	aliceToken := registerAndLogin(t, r, "alice", "a@x.com")
	registerAndLogin(t, r, "bob", "b@x.com")
	eveToken := registerAndLogin(t, r, "eve", "e@x.com")

	bob, err := st.GetUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}

	if w := getJSON(t, r, "/v1/conversations/no-such-id", aliceToken); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d: %s", w.Code, w.Body.String())
	}

	w := postJSON(t, r, "/v1/conversations", aliceToken, map[string]any{
		"participant_ids": []string{bob.ID}, "content": "private",
	})
	var started struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if w := getJSON(t, r, "/v1/conversations/"+started.Conversation.ID, eveToken); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-participant, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSend_NonParticipantForbidden(t *testing.T) {
	r, st, _ := newTestRouter(t)

	aliceToken := registerAndLogin(t, r, "alice", "a@x.com")
	registerAndLogin(t, r, "bob", "b@x.com")
	eveToken := registerAndLogin(t, r, "eve", "e@x.com")

	bob, err := st.GetUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}

	w := postJSON(t, r, "/v1/conversations", aliceToken, map[string]any{
		"participant_ids": []string{bob.ID}, "content": "hi",
	})
	var started struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = postJSON(t, r, "/v1/conversations/"+started.Conversation.ID+"/messages", eveToken, map[string]any{"content": "intrude"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
