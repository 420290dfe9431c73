package calendar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	models "schedbot/models"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultDuration = 60

	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	startLayout = "2006-01-02 15:04"
)

// EventSpec is the input for creating an event. Date must be YYYY-MM-DD and
// Time 24-hour HH:MM; anything else is a validation failure, not a crash.
type EventSpec struct {
	Title       string
	Date        string
	Time        string
	Duration    int // minutes, defaults to 60
	Description string
}

// EventChanges is a partial update record: only non-nil fields are applied,
// omitted fields keep their prior values upstream.
type EventChanges struct {
	Title       *string
	Date        *string
	Time        *string
	Duration    *int
	Description *string
}

// Client talks to the Google Calendar v3 API. The http.Client is expected to
// carry authentication already (OAuth token handling happens outside this
// package). Every operation returns a models.ToolResult and never an error:
// upstream failures become Success=false results immediately, no retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
	timezone   string
	logger     *log.Logger
}

// NewClient creates a calendar client around an authenticated http.Client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		calendarID: "primary",
		timezone:   "UTC",
		logger:     log.New(os.Stdout, "[calendar] ", log.LstdFlags),
	}
}

// WithBaseURL overrides the API base URL (used by tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithCalendarID selects a calendar other than "primary".
func (c *Client) WithCalendarID(id string) *Client {
	c.calendarID = id
	return c
}

// WithTimezone sets the timezone attached to created events.
func (c *Client) WithTimezone(tz string) *Client {
	c.timezone = tz
	return c
}

// --- wire types ---

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type reminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type eventReminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []reminderOverride `json:"overrides,omitempty"`
}

type event struct {
	ID          string          `json:"id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Start       eventTime       `json:"start"`
	End         eventTime       `json:"end"`
	Reminders   *eventReminders `json:"reminders,omitempty"`
	HTMLLink    string          `json:"htmlLink,omitempty"`
}

type eventList struct {
	Items []event `json:"items"`
}

// CreateEvent inserts a new event and reports its id and link.
func (c *Client) CreateEvent(spec EventSpec) models.ToolResult {
	start, err := time.Parse(startLayout, spec.Date+" "+spec.Time)
	if err != nil {
		return models.Failure(fmt.Sprintf("Invalid date/time: date must be YYYY-MM-DD and time HH:MM, got %q %q", spec.Date, spec.Time))
	}
	duration := spec.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	body := event{
		Summary:     spec.Title,
		Description: spec.Description,
		Start:       eventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.timezone},
		End:         eventTime{DateTime: end.Format(time.RFC3339), TimeZone: c.timezone},
		Reminders: &eventReminders{
			UseDefault: false,
			Overrides:  []reminderOverride{{Method: "popup", Minutes: 30}},
		},
	}

	var created event
	if err := c.do("POST", c.eventsURL(""), body, &created); err != nil {
		c.logger.Printf("create event error: %v", err)
		return models.Failure(fmt.Sprintf("Error creating event: %v", err))
	}

	return models.ToolResult{
		Success: true,
		EventID: created.ID,
		Link:    created.HTMLLink,
		Message: fmt.Sprintf("Event created: **%s** on %s at %s (%d min)\nID: `%s`\nLink: %s",
			spec.Title, spec.Date, spec.Time, duration, created.ID, created.HTMLLink),
	}
}

// ListEvents fetches events for one specific date, or for the next `days`
// days when date is empty. Days defaults to 7.
func (c *Client) ListEvents(date string, days int) models.ToolResult {
	if days <= 0 {
		days = 7
	}

	var timeMin, timeMax time.Time
	if date != "" {
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			return models.Failure(fmt.Sprintf("Invalid date: must be YYYY-MM-DD, got %q", date))
		}
		timeMin = day
		timeMax = day.AddDate(0, 0, 1)
	} else {
		timeMin = time.Now()
		timeMax = timeMin.AddDate(0, 0, days)
	}

	query := url.Values{}
	query.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	query.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	query.Set("maxResults", "20")
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	var list eventList
	if err := c.do("GET", c.eventsURL("")+"?"+query.Encode(), nil, &list); err != nil {
		c.logger.Printf("list events error: %v", err)
		return models.Failure(fmt.Sprintf("Error reading events: %v", err))
	}

	if len(list.Items) == 0 {
		return models.ToolResult{Success: true, Events: []models.EventSummary{}, Message: "No events found for this period."}
	}

	summaries := make([]models.EventSummary, 0, len(list.Items))
	message := fmt.Sprintf("Found %d event(s):\n", len(list.Items))
	for idx, item := range list.Items {
		startStr := item.Start.DateTime
		if startStr == "" {
			startStr = item.Start.Date // all-day events carry only a date
		}
		if parsed, err := time.Parse(time.RFC3339, startStr); err == nil {
			startStr = parsed.Format(startLayout)
		}

		summaries = append(summaries, models.EventSummary{
			ID:          item.ID,
			Title:       item.Summary,
			Start:       startStr,
			Description: item.Description,
		})

		message += fmt.Sprintf("%d. **%s** — %s\n", idx+1, item.Summary, startStr)
		if item.Description != "" {
			desc := item.Description
			if len(desc) > 100 {
				desc = desc[:100] + "..."
			}
			message += fmt.Sprintf("   %s\n", desc)
		}
		message += fmt.Sprintf("   ID: `%s`\n", item.ID)
	}

	return models.ToolResult{Success: true, Events: summaries, Message: message}
}

// UpdateEvent applies the supplied changes to an existing event. Fields not
// present in changes keep their current values.
func (c *Client) UpdateEvent(eventID string, changes EventChanges) models.ToolResult {
	var current event
	if err := c.do("GET", c.eventsURL(eventID), nil, &current); err != nil {
		if isNotFound(err) {
			return models.Failure(fmt.Sprintf("Event `%s` not found.", eventID))
		}
		c.logger.Printf("update event fetch error: %v", err)
		return models.Failure(fmt.Sprintf("Error updating event: %v", err))
	}

	if changes.Title != nil {
		current.Summary = *changes.Title
	}
	if changes.Description != nil {
		current.Description = *changes.Description
	}

	if changes.Date != nil || changes.Time != nil || changes.Duration != nil {
		start, end, err := c.mergeTimes(current, changes)
		if err != nil {
			return models.Failure(err.Error())
		}
		current.Start = eventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.timezone}
		current.End = eventTime{DateTime: end.Format(time.RFC3339), TimeZone: c.timezone}
	}

	var updated event
	if err := c.do("PUT", c.eventsURL(eventID), current, &updated); err != nil {
		if isNotFound(err) {
			return models.Failure(fmt.Sprintf("Event `%s` not found.", eventID))
		}
		c.logger.Printf("update event error: %v", err)
		return models.Failure(fmt.Sprintf("Error updating event: %v", err))
	}

	return models.ToolResult{
		Success: true,
		EventID: updated.ID,
		Link:    updated.HTMLLink,
		Message: fmt.Sprintf("Event updated: **%s**\nLink: %s", updated.Summary, updated.HTMLLink),
	}
}

// DeleteEvent removes an event, reporting its title in the confirmation.
func (c *Client) DeleteEvent(eventID string) models.ToolResult {
	var current event
	if err := c.do("GET", c.eventsURL(eventID), nil, &current); err != nil {
		if isNotFound(err) {
			return models.Failure(fmt.Sprintf("Event `%s` not found.", eventID))
		}
		c.logger.Printf("delete event fetch error: %v", err)
		return models.Failure(fmt.Sprintf("Error deleting event: %v", err))
	}

	title := current.Summary
	if title == "" {
		title = "Unknown"
	}

	if err := c.do("DELETE", c.eventsURL(eventID), nil, nil); err != nil {
		if isNotFound(err) {
			return models.Failure(fmt.Sprintf("Event `%s` not found.", eventID))
		}
		c.logger.Printf("delete event error: %v", err)
		return models.Failure(fmt.Sprintf("Error deleting event: %v", err))
	}

	return models.ToolResult{
		Success: true,
		EventID: eventID,
		Message: fmt.Sprintf("Event deleted: **%s** (`%s`)", title, eventID),
	}
}

// mergeTimes combines an event's stored start/end with the requested date,
// time and duration changes. Unchanged components are preserved.
func (c *Client) mergeTimes(current event, changes EventChanges) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, current.Start.DateTime)
	if err != nil {
		// Event may be all-day; fall back to its date at midnight.
		start, err = time.Parse(dateLayout, current.Start.Date)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("Error updating event: cannot parse current start time")
		}
	}

	oldEnd, endErr := time.Parse(time.RFC3339, current.End.DateTime)
	duration := time.Duration(defaultDuration) * time.Minute
	if endErr == nil && oldEnd.After(start) {
		duration = oldEnd.Sub(start)
	}

	dateStr := start.Format(dateLayout)
	clockStr := start.Format(clockLayout)
	if changes.Date != nil {
		if _, err := time.Parse(dateLayout, *changes.Date); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("Invalid date: must be YYYY-MM-DD, got %q", *changes.Date)
		}
		dateStr = *changes.Date
	}
	if changes.Time != nil {
		if _, err := time.Parse(clockLayout, *changes.Time); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("Invalid time: must be HH:MM, got %q", *changes.Time)
		}
		clockStr = *changes.Time
	}

	newStart, err := time.Parse(startLayout, dateStr+" "+clockStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("Invalid date/time: %q %q", dateStr, clockStr)
	}

	if changes.Duration != nil && *changes.Duration > 0 {
		duration = time.Duration(*changes.Duration) * time.Minute
	}

	return newStart, newStart.Add(duration), nil
}

func (c *Client) eventsURL(eventID string) string {
	base := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	if eventID == "" {
		return base
	}
	return base + "/" + url.PathEscape(eventID)
}

// notFoundError marks an upstream 404 so callers can produce the
// distinguished not-found message.
type notFoundError struct{ status string }

func (e *notFoundError) Error() string { return "upstream returned " + e.status }

func isNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

// do performs one API call, decoding the JSON response into out when non-nil.
func (c *Client) do(method, rawURL string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &notFoundError{status: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("calendar API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode calendar API response: %w", err)
	}
	return nil
}
