package stores

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ToolInvocation is one recorded tool call, kept for auditing and stats.
type ToolInvocation struct {
	ID             uint           `gorm:"primarykey" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	ConversationID string         `gorm:"index:idx_invocation_conv;not null" json:"conversation_id"`
	UserID         string         `gorm:"index;not null" json:"user_id"`
	Function       string         `gorm:"index;not null" json:"function"`
	Success        bool           `json:"success"`
	ArgsJSON       string         `gorm:"type:text" json:"-"`
	Args           map[string]any `gorm:"-" json:"args,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// BeforeSave marshals Args to ArgsJSON
func (inv *ToolInvocation) BeforeSave(tx *gorm.DB) error {
	if inv.Args != nil {
		data, err := json.Marshal(inv.Args)
		if err != nil {
			return err
		}
		inv.ArgsJSON = string(data)
	}
	return nil
}

// AfterFind unmarshals ArgsJSON to Args
func (inv *ToolInvocation) AfterFind(tx *gorm.DB) error {
	if inv.ArgsJSON != "" {
		return json.Unmarshal([]byte(inv.ArgsJSON), &inv.Args)
	}
	return nil
}

// InvocationLog persists tool invocations.
type InvocationLog interface {
	// Record saves one invocation.
	Record(inv *ToolInvocation) error

	// ListByConversation retrieves all invocations for a conversation.
	ListByConversation(conversationID string) ([]*ToolInvocation, error)

	// CountByFunction returns the number of invocations per function name.
	CountByFunction() (map[string]int64, error)

	// DeleteByConversation removes all invocations for a conversation.
	DeleteByConversation(conversationID string) error
}

// GORMInvocationLog implements InvocationLog on an existing GORM connection,
// so the log shares the message store's database.
type GORMInvocationLog struct {
	db *gorm.DB
}

// NewGORMInvocationLog creates an invocation log from an existing GORM database connection
func NewGORMInvocationLog(db *gorm.DB) (*GORMInvocationLog, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	if err := db.AutoMigrate(&ToolInvocation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tool_invocations table: %w", err)
	}

	return &GORMInvocationLog{db: db}, nil
}

// Record saves one invocation.
func (l *GORMInvocationLog) Record(inv *ToolInvocation) error {
	if l.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return l.db.Create(inv).Error
}

// ListByConversation retrieves all invocations for a conversation, oldest first.
func (l *GORMInvocationLog) ListByConversation(conversationID string) ([]*ToolInvocation, error) {
	if l.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var invs []*ToolInvocation
	err := l.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&invs).Error

	return invs, err
}

// CountByFunction returns the number of invocations per function name.
func (l *GORMInvocationLog) CountByFunction() (map[string]int64, error) {
	if l.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	type row struct {
		Function string
		N        int64
	}
	var rows []row
	err := l.db.Model(&ToolInvocation{}).
		Select("function, count(*) as n").
		Group("function").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Function] = r.N
	}
	return counts, nil
}

// DeleteByConversation removes all invocations for a conversation.
func (l *GORMInvocationLog) DeleteByConversation(conversationID string) error {
	if l.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return l.db.Where("conversation_id = ?", conversationID).Delete(&ToolInvocation{}).Error
}
