package tools

import (
	"strconv"

	"schedbot/calendar"
	models "schedbot/models"
)

// RegisterCalendarTools wires the four calendar operations into the registry.
func RegisterCalendarTools(r *Registry, client *calendar.Client) {
	r.Register(AddEventTool(), addEventFunc(client))
	r.Register(ListEventsTool(), listEventsFunc(client))
	r.Register(UpdateEventTool(), updateEventFunc(client))
	r.Register(DeleteEventTool(), deleteEventFunc(client))
}

// AddEventTool declares add_calendar_event.
func AddEventTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "add_calendar_event",
		Description: "Add a new event to the calendar. Use this when the user wants to create, add or schedule an event.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Event title/summary",
				},
				"date": map[string]interface{}{
					"type":        "string",
					"description": "Event date in YYYY-MM-DD format (e.g. \"2024-12-25\")",
				},
				"time": map[string]interface{}{
					"type":        "string",
					"description": "Event time in HH:MM format (e.g. \"14:00\" for 2 PM)",
				},
				"duration": map[string]interface{}{
					"type":        "integer",
					"description": "Event duration in minutes (default: 60)",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Event description/notes (optional)",
				},
			},
			Required: []string{"title", "date", "time"},
		},
	}
}

// ListEventsTool declares list_calendar_events.
func ListEventsTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "list_calendar_events",
		Description: "List events from the calendar. Use this when the user wants to see or check their schedule.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"date": map[string]interface{}{
					"type":        "string",
					"description": "Specific date in YYYY-MM-DD format. If provided, only shows events on that date. Leave empty for upcoming events.",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"description": "Number of days to fetch (default: 7). Only used if date is not provided.",
				},
			},
			Required: []string{},
		},
	}
}

// UpdateEventTool declares update_calendar_event.
func UpdateEventTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "update_calendar_event",
		Description: "Update an existing calendar event. Use this when the user wants to modify or change an event.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"event_id": map[string]interface{}{
					"type":        "string",
					"description": "Event ID to update (get from list_calendar_events)",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "New title (optional)",
				},
				"date": map[string]interface{}{
					"type":        "string",
					"description": "New date in YYYY-MM-DD format (optional)",
				},
				"time": map[string]interface{}{
					"type":        "string",
					"description": "New time in HH:MM format (optional)",
				},
				"duration": map[string]interface{}{
					"type":        "integer",
					"description": "New duration in minutes (optional)",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "New description (optional)",
				},
			},
			Required: []string{"event_id"},
		},
	}
}

// DeleteEventTool declares delete_calendar_event.
func DeleteEventTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        "delete_calendar_event",
		Description: "Delete an event from the calendar. Use this when the user wants to remove or cancel an event.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"event_id": map[string]interface{}{
					"type":        "string",
					"description": "Event ID to delete (get from list_calendar_events)",
				},
			},
			Required: []string{"event_id"},
		},
	}
}

func addEventFunc(client *calendar.Client) Func {
	return func(args map[string]interface{}) (models.ToolResult, error) {
		title, ok := stringArg(args, "title")
		if !ok {
			return models.Failure("Missing required argument: title"), nil
		}
		date, ok := stringArg(args, "date")
		if !ok {
			return models.Failure("Missing required argument: date"), nil
		}
		timeStr, ok := stringArg(args, "time")
		if !ok {
			return models.Failure("Missing required argument: time"), nil
		}

		spec := calendar.EventSpec{
			Title:    title,
			Date:     date,
			Time:     timeStr,
			Duration: intArg(args, "duration", 0),
		}
		if desc, ok := stringArg(args, "description"); ok {
			spec.Description = desc
		}
		return client.CreateEvent(spec), nil
	}
}

func listEventsFunc(client *calendar.Client) Func {
	return func(args map[string]interface{}) (models.ToolResult, error) {
		date, _ := stringArg(args, "date")
		days := intArg(args, "days", 7)
		return client.ListEvents(date, days), nil
	}
}

func updateEventFunc(client *calendar.Client) Func {
	return func(args map[string]interface{}) (models.ToolResult, error) {
		eventID, ok := stringArg(args, "event_id")
		if !ok {
			return models.Failure("Missing required argument: event_id"), nil
		}

		var changes calendar.EventChanges
		if v, ok := stringArg(args, "title"); ok {
			changes.Title = &v
		}
		if v, ok := stringArg(args, "date"); ok {
			changes.Date = &v
		}
		if v, ok := stringArg(args, "time"); ok {
			changes.Time = &v
		}
		if v, ok := stringArg(args, "description"); ok {
			changes.Description = &v
		}
		if _, present := args["duration"]; present {
			d := intArg(args, "duration", 0)
			if d > 0 {
				changes.Duration = &d
			}
		}
		return client.UpdateEvent(eventID, changes), nil
	}
}

func deleteEventFunc(client *calendar.Client) Func {
	return func(args map[string]interface{}) (models.ToolResult, error) {
		eventID, ok := stringArg(args, "event_id")
		if !ok {
			return models.Failure("Missing required argument: event_id"), nil
		}
		return client.DeleteEvent(eventID), nil
	}
}

// stringArg fetches a non-empty string argument.
func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, present := args[key]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// intArg fetches an integer argument, tolerating the numeric types JSON
// decoding and provider SDKs actually produce.
func intArg(args map[string]interface{}, key string, fallback int) int {
	v, present := args[key]
	if !present {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}
