package models

import "time"

// Message source role
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message lifecycle states. A message enters in_progress when its placeholder
// row is created and leaves it exactly once; completed and error are terminal.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
	StatusError      = "error"
)

// Chat is a conversation owned by exactly one identity. Ownership is set at
// creation and never transferred.
type Chat struct {
	ID            string    `gorm:"primaryKey" json:"id"` // UUID
	OwnerIdentity string    `gorm:"index;not null" json:"owner_identity"`
	DisplayName   string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`
}

// Message is a single chat turn. The auto-increment primary key doubles as the
// per-chat creation sequence.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChatID      string    `gorm:"index;not null" json:"chat_id"`
	Chat        *Chat     `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
	Role        string    `gorm:"not null" json:"role"`
	Content     string    `gorm:"type:text" json:"content"`
	Status      string    `gorm:"not null;default:'completed'" json:"status"`
	ErrorText   string    `json:"error_text,omitempty"`
	UsageTokens *int      `json:"usage_tokens,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Terminal reports whether the message can no longer change.
func (m *Message) Terminal() bool {
	return m.Status != StatusInProgress
}
