package models

type FunctionDeclaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters defines the JSON Schema for function parameters
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// ToolResult is the uniform contract every registered tool returns.
// Success and Message are always populated; the remaining fields are
// operation specific and only set on success.
type ToolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	EventID string         `json:"event_id,omitempty"`
	Link    string         `json:"link,omitempty"`
	Events  []EventSummary `json:"events,omitempty"`
}

// EventSummary is one calendar entry as reported by list_calendar_events.
type EventSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	Description string `json:"description,omitempty"`
}

// Failure builds a failed ToolResult with a formatted message.
func Failure(message string) ToolResult {
	return ToolResult{Success: false, Message: message}
}
