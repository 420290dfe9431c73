package schedbot

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"schedbot/models"
	"schedbot/stores"
	"schedbot/tools"
)

// memStore is an in-memory MessageStore for orchestrator tests.
type memStore struct {
	mu       sync.Mutex
	msgs     map[string][]stores.Message
	deleted  []string
	fetchErr error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string][]stores.Message)}
}

func (m *memStore) SaveMessage(conversationID, userID, role, messageType string, parts interface{}, functionName string) error {
	data, err := json.Marshal(parts)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := len(m.msgs[conversationID]) + 1
	m.msgs[conversationID] = append(m.msgs[conversationID], stores.Message{
		ConversationID: conversationID,
		Sequence:       seq,
		Role:           role,
		Type:           messageType,
		PartsJSON:      string(data),
		FunctionName:   functionName,
	})
	return nil
}

func (m *memStore) FetchHistory(conversationID string, limit int) ([]stores.Message, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memStore) CreateConversation(conversationID, userID string) error { return nil }

func (m *memStore) DeleteConversation(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.msgs, conversationID)
	m.deleted = append(m.deleted, conversationID)
	return nil
}

func (m *memStore) ListConversationsForUser(userID string) ([]stores.ConversationInfo, error) {
	return nil, nil
}

func (m *memStore) CountMessages() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msgs := range m.msgs {
		n += int64(len(msgs))
	}
	return n, nil
}

func (m *memStore) Connect() error { return nil }
func (m *memStore) Close() error   { return nil }
func (m *memStore) Ping() error    { return nil }
func (m *memStore) DB() *gorm.DB   { return nil }

func (m *memStore) typesFor(conversationID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, msg := range m.msgs[conversationID] {
		types = append(types, msg.Type)
	}
	return types
}

func (m *memStore) messagesFor(conversationID string) []stores.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stores.Message(nil), m.msgs[conversationID]...)
}

// scriptedModel returns canned responses in order and records every request.
type scriptedModel struct {
	responses []models.Model_Response
	errs      []error
	requests  []models.Model_Request
	panics    bool
}

func (s *scriptedModel) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, history []stores.Message) (models.Model_Response, error) {
	if s.panics {
		panic("scripted panic")
	}
	s.requests = append(s.requests, request)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return models.Model_Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return models.Model_Response{}, nil
}

// parrotModel answers every request with the user's own text. Safe for
// concurrent callers, unlike scriptedModel.
type parrotModel struct{}

func (parrotModel) Model_Request(request models.Model_Request, _ []models.FunctionDeclaration, _ []stores.Message) (models.Model_Response, error) {
	text := "heard: " + request.User_Message.Content.Parts[0].Text
	return models.Model_Response{Parts: []models.Model_Part{textPart(text)}}, nil
}

type recordedCall struct {
	name string
	args map[string]interface{}
}

func testRegistry(calls *[]recordedCall, results map[string]models.ToolResult) *tools.Registry {
	r := tools.NewRegistry()
	for _, name := range []string{"add_calendar_event", "list_calendar_events", "update_calendar_event", "delete_calendar_event"} {
		name := name
		r.Register(models.FunctionDeclaration{Name: name}, func(args map[string]interface{}) (models.ToolResult, error) {
			*calls = append(*calls, recordedCall{name: name, args: args})
			if res, ok := results[name]; ok {
				return res, nil
			}
			return models.ToolResult{Success: true, Message: "ok: " + name}, nil
		})
	}
	return r
}

func textResponse(s string) models.Model_Response {
	return models.Model_Response{Parts: []models.Model_Part{textPart(s)}}
}

func callResponse(name string, args map[string]interface{}) models.Model_Response {
	return models.Model_Response{Parts: []models.Model_Part{
		{FunctionCall: &models.FunctionCall{Name: name, Args: args}},
	}}
}

func newTestOrchestrator(model Model, calls *[]recordedCall, results map[string]models.ToolResult) (*Orchestrator, *memStore) {
	store := newMemStore()
	agent := Create_Agent(model, testRegistry(calls, results))
	o := NewOrchestrator(agent, store)
	o.Now = func() time.Time { return time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC) }
	return o, store
}

func TestProcessPlainText(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{responses: []models.Model_Response{textResponse("Hello! How can I help?")}}
	o, store := newTestOrchestrator(model, &calls, nil)

	reply := o.Process("u1", "hi there")
	if reply != "Hello! How can I help?" {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 0 {
		t.Errorf("no tools should have run, got %v", calls)
	}

	conv := o.Sessions.Get("u1").ConversationID
	types := store.typesFor(conv)
	want := []string{"user_message", "model_message"}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("saved types = %v, want %v", types, want)
	}
}

func TestProcessToolCycle(t *testing.T) {
	var calls []recordedCall
	created := models.ToolResult{
		Success: true,
		Message: "Event created: **sync** on 2025-10-29 at 14:00 (60 min)",
		EventID: "ev1abc2d",
	}
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("add_calendar_event", map[string]interface{}{"title": "sync", "date": "2025-10-29", "time": "14:00"}),
		textResponse("Booked your sync for tomorrow at 2pm."),
	}}
	o, store := newTestOrchestrator(model, &calls, map[string]models.ToolResult{"add_calendar_event": created})

	reply := o.Process("u1", "schedule a sync tomorrow at 2pm")
	if reply != "Booked your sync for tomorrow at 2pm." {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 1 || calls[0].name != "add_calendar_event" {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].args["title"] != "sync" {
		t.Errorf("args = %v", calls[0].args)
	}

	// The tool result must reach the model verbatim on the follow-up request.
	if len(model.requests) != 2 {
		t.Fatalf("expected 2 model requests, got %d", len(model.requests))
	}
	second := model.requests[1]
	if second.Tool_Results == nil || len(*second.Tool_Results) != 1 {
		t.Fatal("second request should carry one tool result")
	}
	tr := (*second.Tool_Results)[0]
	if tr.Tool_Name != "add_calendar_event" {
		t.Errorf("tool name = %q", tr.Tool_Name)
	}
	var decoded models.ToolResult
	if err := json.Unmarshal([]byte(tr.Tool_Output), &decoded); err != nil {
		t.Fatalf("tool output is not valid JSON: %v", err)
	}
	if decoded.Message != created.Message {
		t.Errorf("message did not round-trip: %q", decoded.Message)
	}
	if decoded.EventID != "ev1abc2d" {
		t.Errorf("event id did not round-trip: %q", decoded.EventID)
	}

	conv := o.Sessions.Get("u1").ConversationID
	types := store.typesFor(conv)
	want := []string{"user_message", "function_call", "function_response", "model_message"}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("saved types = %v, want %v", types, want)
	}
}

func TestProcessQuietModelAfterTool(t *testing.T) {
	var calls []recordedCall
	result := models.ToolResult{Success: true, Message: "Event deleted: **standup** (`abc123de`)"}
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("delete_calendar_event", map[string]interface{}{"event_id": "abc123de"}),
		{}, // model says nothing after the tool ran
	}}
	o, _ := newTestOrchestrator(model, &calls, map[string]models.ToolResult{"delete_calendar_event": result})

	reply := o.Process("u1", "cancel event abc123de")
	if reply != result.Message {
		t.Errorf("reply = %q, want the tool message", reply)
	}
}

func TestProcessModelErrorFallsBackToKeywords(t *testing.T) {
	var calls []recordedCall
	created := models.ToolResult{Success: true, Message: "Event created: **meeting** on 2025-10-29 at 14:00 (60 min)"}
	model := &scriptedModel{errs: []error{fmt.Errorf("upstream 503")}}
	o, _ := newTestOrchestrator(model, &calls, map[string]models.ToolResult{"add_calendar_event": created})

	reply := o.Process("u1", "schedule a meeting tomorrow at 2pm")
	if reply != created.Message {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 1 || calls[0].name != "add_calendar_event" {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].args["title"] != "meeting" {
		t.Errorf("title = %v", calls[0].args["title"])
	}
	if calls[0].args["date"] != "2025-10-29" {
		t.Errorf("date = %v", calls[0].args["date"])
	}
	if calls[0].args["time"] != "14:00" {
		t.Errorf("time = %v", calls[0].args["time"])
	}
}

func TestProcessModelErrorNoKeywords(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{errs: []error{fmt.Errorf("upstream 503")}}
	o, _ := newTestOrchestrator(model, &calls, nil)

	if reply := o.Process("u1", "how are you today?"); reply != "Error: upstream 503" {
		t.Errorf("reply = %q, want the error string", reply)
	}
}

func TestProcessModelErrorAfterToolDoesNotRepeatTool(t *testing.T) {
	var calls []recordedCall
	created := models.ToolResult{Success: true, Message: "Event created: **meeting** on 2025-10-29 at 14:00 (60 min)"}
	// First turn asks for a tool, the feedback turn fails upstream.
	model := &scriptedModel{
		responses: []models.Model_Response{
			callResponse("add_calendar_event", map[string]interface{}{"title": "meeting", "date": "2025-10-29", "time": "14:00"}),
		},
		errs: []error{nil, fmt.Errorf("upstream 503")},
	}
	o, _ := newTestOrchestrator(model, &calls, map[string]models.ToolResult{"add_calendar_event": created})

	reply := o.Process("u1", "schedule a meeting tomorrow at 2pm")
	if reply != created.Message {
		t.Errorf("reply = %q, want the tool message", reply)
	}
	if len(calls) != 1 {
		t.Fatalf("tool executed %d times for one user turn, want 1: %v", len(calls), calls)
	}
}

func TestProcessEmptyMessage(t *testing.T) {
	var calls []recordedCall
	o, _ := newTestOrchestrator(&scriptedModel{}, &calls, nil)

	if reply := o.Process("u1", "   "); reply != FallbackReply {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

func TestProcessNeverPanics(t *testing.T) {
	var calls []recordedCall
	o, _ := newTestOrchestrator(&scriptedModel{panics: true}, &calls, nil)

	if reply := o.Process("u1", "hello"); reply != "Error: scripted panic" {
		t.Errorf("reply = %q, want the error string", reply)
	}
}

func TestProcessConcurrentUsersIsolated(t *testing.T) {
	var calls []recordedCall
	o, store := newTestOrchestrator(parrotModel{}, &calls, nil)

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := o.Process(userID, "hello from "+userID)
			if reply != "heard: hello from "+userID {
				t.Errorf("reply for %s = %q", userID, reply)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, users)
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%02d", i)
		session := o.Sessions.Get(userID)
		if session == nil {
			t.Fatalf("no session for %s", userID)
		}
		if seen[session.ConversationID] {
			t.Errorf("conversation %s shared between users", session.ConversationID)
		}
		seen[session.ConversationID] = true

		msgs := store.messagesFor(session.ConversationID)
		if len(msgs) != 2 {
			t.Fatalf("conversation for %s has %d messages, want 2", userID, len(msgs))
		}
		for _, msg := range msgs {
			if !strings.Contains(msg.PartsJSON, userID) {
				t.Errorf("conversation for %s holds foreign content: %q", userID, msg.PartsJSON)
			}
		}
	}
}

func TestProcessIterationCap(t *testing.T) {
	var calls []recordedCall
	// The model keeps asking for tools forever.
	var responses []models.Model_Response
	for i := 0; i < 20; i++ {
		responses = append(responses, callResponse("list_calendar_events", map[string]interface{}{}))
	}
	model := &scriptedModel{responses: responses}
	o, _ := newTestOrchestrator(model, &calls, map[string]models.ToolResult{
		"list_calendar_events": {Success: true, Message: "No events found for this period."},
	})
	o.MaxIterations = 3

	reply := o.Process("u1", "show my events")
	if reply != "No events found for this period." {
		t.Errorf("reply = %q", reply)
	}
	if len(model.requests) != 3 {
		t.Errorf("model requests = %d, want 3", len(model.requests))
	}
}

func TestProcessUnknownFunctionFromModel(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{responses: []models.Model_Response{
		callResponse("launch_rocket", map[string]interface{}{}),
		textResponse("That tool is not available."),
	}}
	o, _ := newTestOrchestrator(model, &calls, nil)

	reply := o.Process("u1", "launch the rocket")
	if reply != "That tool is not available." {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 0 {
		t.Errorf("unregistered tool must not execute, got %v", calls)
	}
	second := model.requests[1]
	if second.Tool_Results == nil || len(*second.Tool_Results) != 1 {
		t.Fatal("second request should carry the failure result")
	}
	if !strings.Contains((*second.Tool_Results)[0].Tool_Output, "Unknown function: launch_rocket") {
		t.Errorf("tool output = %q", (*second.Tool_Results)[0].Tool_Output)
	}
}

func TestClearHistory(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{responses: []models.Model_Response{textResponse("hi")}}
	o, store := newTestOrchestrator(model, &calls, nil)

	if got := o.ClearHistory("ghost"); got != "No conversation history to clear." {
		t.Errorf("clear without session = %q", got)
	}

	o.Process("u1", "hello")
	conv := o.Sessions.Get("u1").ConversationID

	if got := o.ClearHistory("u1"); got != "Conversation history cleared." {
		t.Errorf("clear = %q", got)
	}
	if o.Sessions.Get("u1") != nil {
		t.Error("session should be gone")
	}
	if len(store.deleted) != 1 || store.deleted[0] != conv {
		t.Errorf("deleted conversations = %v, want [%s]", store.deleted, conv)
	}
}

func TestProcessCalendarStructured(t *testing.T) {
	var calls []recordedCall
	created := models.ToolResult{Success: true, Message: "Event created: **dentist** on 2025-11-01 at 09:00 (30 min)"}
	model := &scriptedModel{responses: []models.Model_Response{
		textResponse("```json\n{\"action\":\"create\",\"title\":\"dentist\",\"date\":\"2025-11-01\",\"time\":\"09:00\",\"duration\":30}\n```"),
	}}
	o, _ := newTestOrchestrator(model, &calls, map[string]models.ToolResult{"add_calendar_event": created})

	reply := o.ProcessCalendar("u1", "dentist on the first at 9")
	if reply != created.Message {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 1 || calls[0].name != "add_calendar_event" {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].args["duration"] != 30 {
		t.Errorf("duration = %v", calls[0].args["duration"])
	}
}

func TestProcessCalendarKeywordBackstop(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{errs: []error{fmt.Errorf("down")}}
	o, _ := newTestOrchestrator(model, &calls, nil)

	reply := o.ProcessCalendar("u1", "list my events today")
	if reply != "ok: list_calendar_events" {
		t.Errorf("reply = %q", reply)
	}
	if len(calls) != 1 || calls[0].name != "list_calendar_events" {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].args["date"] != "2025-10-28" {
		t.Errorf("date = %v", calls[0].args["date"])
	}
}

func TestProcessCalendarUnparseable(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{responses: []models.Model_Response{textResponse("I cannot help with that.")}}
	o, _ := newTestOrchestrator(model, &calls, nil)

	if reply := o.ProcessCalendar("u1", "what is the weather like"); reply != FallbackReply {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

func TestStats(t *testing.T) {
	var calls []recordedCall
	model := &scriptedModel{responses: []models.Model_Response{textResponse("hi")}}
	o, _ := newTestOrchestrator(model, &calls, nil)
	o.Process("u1", "hello")

	stats := o.Stats()
	if !strings.Contains(stats, "Active sessions: 1") {
		t.Errorf("stats = %q", stats)
	}
	if !strings.Contains(stats, "Stored messages: 2") {
		t.Errorf("stats = %q", stats)
	}
}
