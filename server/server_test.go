package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/gorm"

	"schedbot"
	"schedbot/models"
	"schedbot/stores"
	"schedbot/tools"
)

type fakeStore struct {
	msgs map[string][]stores.Message
}

func newFakeStore() *fakeStore { return &fakeStore{msgs: make(map[string][]stores.Message)} }

func (f *fakeStore) SaveMessage(conversationID, userID, role, messageType string, parts interface{}, functionName string) error {
	data, _ := json.Marshal(parts)
	f.msgs[conversationID] = append(f.msgs[conversationID], stores.Message{
		ConversationID: conversationID,
		Sequence:       len(f.msgs[conversationID]) + 1,
		Role:           role,
		Type:           messageType,
		PartsJSON:      string(data),
	})
	return nil
}

func (f *fakeStore) FetchHistory(conversationID string, limit int) ([]stores.Message, error) {
	return f.msgs[conversationID], nil
}
func (f *fakeStore) CreateConversation(conversationID, userID string) error { return nil }
func (f *fakeStore) DeleteConversation(conversationID string) error {
	delete(f.msgs, conversationID)
	return nil
}
func (f *fakeStore) ListConversationsForUser(userID string) ([]stores.ConversationInfo, error) {
	return nil, nil
}
func (f *fakeStore) CountMessages() (int64, error) {
	var n int64
	for _, m := range f.msgs {
		n += int64(len(m))
	}
	return n, nil
}
func (f *fakeStore) Connect() error { return nil }
func (f *fakeStore) Close() error   { return nil }
func (f *fakeStore) Ping() error    { return nil }
func (f *fakeStore) DB() *gorm.DB   { return nil }

// echoModel replies with fixed text, no tool calls.
type echoModel struct{ reply string }

func (e *echoModel) Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (models.Model_Response, error) {
	return models.Model_Response{Parts: []models.Model_Part{{Text: &e.reply}}}, nil
}

func newTestServer(reply string) (*Server, *fakeStore) {
	store := newFakeStore()
	registry := tools.NewRegistry()
	agent := schedbot.Create_Agent(&echoModel{reply: reply}, registry)
	orch := schedbot.NewOrchestrator(agent, store)
	return NewServer(orch, store), store
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer("Hello!")

	body := strings.NewReader(`{"message": "hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/u1", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.UserID != "u1" || resp.Reply != "Hello!" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer("Hello!")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/u1", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestClearHistoryEndpoint(t *testing.T) {
	srv, _ := newTestServer("Hello!")

	// No session yet.
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/history/u1", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No conversation history") {
		t.Errorf("body = %s", w.Body.String())
	}

	// Create a session, then clear it.
	chat := httptest.NewRequest(http.MethodPost, "/api/v1/chat/u1", strings.NewReader(`{"message": "hi"}`))
	chat.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(httptest.NewRecorder(), chat)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/history/u1", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "Conversation history cleared.") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("Hello!")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer("Hello!")

	chat := httptest.NewRequest(http.MethodPost, "/api/v1/chat/u1", strings.NewReader(`{"message": "hi"}`))
	chat.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(httptest.NewRecorder(), chat)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Active sessions: 1") {
		t.Errorf("body = %s", w.Body.String())
	}
}
