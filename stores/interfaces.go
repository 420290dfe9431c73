package stores

import (
	"gorm.io/gorm"
)

// Message is one persisted entry in a conversation: a user message, a model
// reply, or one leg of a function-call exchange.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "user", "model"
	Type           string `gorm:"not null"` // "user_message", "model_message", "function_call", "function_response"
	// FunctionName links a function_response back to the call it answers.
	FunctionName string `gorm:"index" json:"function_name,omitempty"`
	// PartsJSON is the JSON-marshaled content parts for this entry. Depending
	// on Role/Type this is either []models.User_Part or []models.Model_Part.
	PartsJSON string `gorm:"type:json"`
}

// Conversation holds metadata for one user's chat thread.
type Conversation struct {
	gorm.Model
	ConversationID string    `gorm:"uniqueIndex;not null"`
	UserID         string    `gorm:"index;not null"`
	MessageCount   int       `gorm:"default:0"`
	Messages       []Message `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// ConversationInfo is the listing view of a conversation.
type ConversationInfo struct {
	ConversationID string
	UserID         string
	MessageCount   int
	CreatedAt      string
	UpdatedAt      string
}

// MessageStore abstracts conversation persistence.
type MessageStore interface {
	SaveMessage(conversationID, userID, role, messageType string, parts interface{}, functionName string) error
	FetchHistory(conversationID string, limit int) ([]Message, error)

	CreateConversation(conversationID, userID string) error
	DeleteConversation(conversationID string) error
	ListConversationsForUser(userID string) ([]ConversationInfo, error)
	CountMessages() (int64, error)

	Connect() error
	Close() error
	Ping() error

	// DB exposes the underlying GORM handle so auxiliary tables (for
	// example the invocation log) can share the connection.
	DB() *gorm.DB
}

// StoreConfig selects and configures a backing database.
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite" or "postgres"
	Connection string            `json:"connection"` // file path or DSN
	Options    map[string]string `json:"options"`
}

func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
