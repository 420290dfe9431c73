package models

// ChatResponse is what the HTTP chat endpoint returns for one processed
// message. Reply is always a displayable string.
type ChatResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}
