package calendar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeCalendar is a minimal in-memory stand-in for the events API, enough to
// exercise the client's request building and response handling.
type fakeCalendar struct {
	events map[string]map[string]interface{}
	calls  []string
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: map[string]map[string]interface{}{}}
}

func (f *fakeCalendar) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// expected shapes: calendars/{id}/events or calendars/{id}/events/{eventID}
		if len(parts) < 3 || parts[0] != "calendars" || parts[2] != "events" {
			http.NotFound(w, r)
			return
		}

		var eventID string
		if len(parts) == 4 {
			eventID = parts[3]
		}

		switch {
		case r.Method == http.MethodPost && eventID == "":
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			body["id"] = "evt001"
			body["htmlLink"] = "https://calendar.example/evt001"
			f.events["evt001"] = body
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodGet && eventID == "":
			items := make([]map[string]interface{}, 0, len(f.events))
			for _, ev := range f.events {
				items = append(items, ev)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
		case r.Method == http.MethodGet:
			ev, ok := f.events[eventID]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(ev)
		case r.Method == http.MethodPut:
			if _, ok := f.events[eventID]; !ok {
				http.NotFound(w, r)
				return
			}
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			body["id"] = eventID
			body["htmlLink"] = "https://calendar.example/" + eventID
			f.events[eventID] = body
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodDelete:
			if _, ok := f.events[eventID]; !ok {
				http.NotFound(w, r)
				return
			}
			delete(f.events, eventID)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	}
}

func newTestClient(t *testing.T) (*Client, *fakeCalendar) {
	t.Helper()
	fake := newFakeCalendar()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.Client()).WithBaseURL(srv.URL), fake
}

func TestCreateEvent(t *testing.T) {
	client, fake := newTestClient(t)

	result := client.CreateEvent(EventSpec{Title: "Standup", Date: "2025-10-30", Time: "09:00", Duration: 15})
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if result.EventID != "evt001" {
		t.Errorf("expected event id evt001, got %q", result.EventID)
	}
	if !strings.Contains(result.Message, "Event created: **Standup** on 2025-10-30 at 09:00 (15 min)") {
		t.Errorf("unexpected message: %q", result.Message)
	}

	stored := fake.events["evt001"]
	start := stored["start"].(map[string]interface{})
	if start["dateTime"] != "2025-10-30T09:00:00Z" {
		t.Errorf("unexpected start: %v", start["dateTime"])
	}
	end := stored["end"].(map[string]interface{})
	if end["dateTime"] != "2025-10-30T09:15:00Z" {
		t.Errorf("unexpected end: %v", end["dateTime"])
	}
}

func TestCreateEventDefaultsDuration(t *testing.T) {
	client, fake := newTestClient(t)

	result := client.CreateEvent(EventSpec{Title: "Sync", Date: "2025-10-30", Time: "10:00"})
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	end := fake.events["evt001"]["end"].(map[string]interface{})
	if end["dateTime"] != "2025-10-30T11:00:00Z" {
		t.Errorf("expected default 60 minute duration, got end %v", end["dateTime"])
	}
}

func TestCreateEventRejectsBadDate(t *testing.T) {
	client, fake := newTestClient(t)

	result := client.CreateEvent(EventSpec{Title: "Bad", Date: "2025/10/30", Time: "09:00"})
	if result.Success {
		t.Fatal("expected failure for slash-separated date")
	}
	if !strings.Contains(result.Message, "Invalid date/time") {
		t.Errorf("unexpected message: %q", result.Message)
	}
	if len(fake.calls) != 0 {
		t.Errorf("invalid input should not reach the API, saw %v", fake.calls)
	}
}

func TestListEventsEmpty(t *testing.T) {
	client, _ := newTestClient(t)

	result := client.ListEvents("2025-10-30", 0)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if result.Message != "No events found for this period." {
		t.Errorf("unexpected message: %q", result.Message)
	}
	if result.Events == nil || len(result.Events) != 0 {
		t.Errorf("expected empty events slice, got %v", result.Events)
	}
}

func TestListEventsFormatsEntries(t *testing.T) {
	client, fake := newTestClient(t)
	fake.events["abc"] = map[string]interface{}{
		"id":      "abc",
		"summary": "Review",
		"start":   map[string]interface{}{"dateTime": "2025-10-30T14:00:00Z"},
		"end":     map[string]interface{}{"dateTime": "2025-10-30T15:00:00Z"},
	}

	result := client.ListEvents("2025-10-30", 0)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
	if result.Events[0].Start != "2025-10-30 14:00" {
		t.Errorf("unexpected start format: %q", result.Events[0].Start)
	}
	if !strings.Contains(result.Message, "**Review**") || !strings.Contains(result.Message, "ID: `abc`") {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestListEventsRejectsBadDate(t *testing.T) {
	client, _ := newTestClient(t)

	result := client.ListEvents("tomorrow", 0)
	if result.Success {
		t.Fatal("expected failure for non-ISO date")
	}
}

func TestUpdateEventMergesChanges(t *testing.T) {
	client, fake := newTestClient(t)
	fake.events["evt9"] = map[string]interface{}{
		"id":      "evt9",
		"summary": "Dentist",
		"start":   map[string]interface{}{"dateTime": "2025-10-30T09:00:00Z"},
		"end":     map[string]interface{}{"dateTime": "2025-10-30T09:30:00Z"},
	}

	newTime := "11:00"
	result := client.UpdateEvent("evt9", EventChanges{Time: &newTime})
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}

	stored := fake.events["evt9"]
	start := stored["start"].(map[string]interface{})
	if start["dateTime"] != "2025-10-30T11:00:00Z" {
		t.Errorf("expected moved start, got %v", start["dateTime"])
	}
	// 30 minute duration carries over from the original times
	end := stored["end"].(map[string]interface{})
	if end["dateTime"] != "2025-10-30T11:30:00Z" {
		t.Errorf("expected preserved duration, got end %v", end["dateTime"])
	}
	if stored["summary"] != "Dentist" {
		t.Errorf("title should be untouched, got %v", stored["summary"])
	}
}

func TestUpdateEventNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	result := client.UpdateEvent("missing", EventChanges{})
	if result.Success {
		t.Fatal("expected failure for unknown event")
	}
	if !strings.Contains(result.Message, "not found") {
		t.Errorf("message should mention not found, got %q", result.Message)
	}
}

func TestDeleteEvent(t *testing.T) {
	client, fake := newTestClient(t)
	fake.events["evt5"] = map[string]interface{}{
		"id":      "evt5",
		"summary": "Old meeting",
		"start":   map[string]interface{}{"dateTime": "2025-10-30T09:00:00Z"},
		"end":     map[string]interface{}{"dateTime": "2025-10-30T10:00:00Z"},
	}

	result := client.DeleteEvent("evt5")
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if !strings.Contains(result.Message, "Event deleted: **Old meeting** (`evt5`)") {
		t.Errorf("unexpected message: %q", result.Message)
	}
	if _, ok := fake.events["evt5"]; ok {
		t.Error("event should be gone from the backend")
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	result := client.DeleteEvent("ghost")
	if result.Success {
		t.Fatal("expected failure for unknown event")
	}
	if !strings.Contains(result.Message, "not found") {
		t.Errorf("message should mention not found, got %q", result.Message)
	}
}
