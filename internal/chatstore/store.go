// Package chatstore is the single source of truth for conversation state:
// chats, their ordered messages, and the message lifecycle transitions.
package chatstore

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codebine/agentchat/internal/db/models"
	"github.com/codebine/agentchat/internal/util"
)

// Store wraps the database with owner-scoped chat and message operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a chat store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Exchange is the pair of rows a user turn produces: the completed user
// message and the in-progress assistant placeholder.
type Exchange struct {
	UserMessage *models.Message
	Placeholder *models.Message
}

// CreateChat creates a chat owned by owner, records the first user message
// and the assistant placeholder, and returns all three. The chat title is
// derived from the first message and can be renamed later.
func (s *Store) CreateChat(owner, content string) (*models.Chat, *Exchange, error) {
	chat := &models.Chat{
		ID:            uuid.New().String(),
		OwnerIdentity: owner,
		DisplayName:   util.DeriveTitle(content),
	}

	var exchange *Exchange
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		var err error
		exchange, err = appendExchange(tx, chat.ID, content)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return chat, exchange, nil
}

// AppendMessage adds a user message plus assistant placeholder to an existing
// chat. It fails with ErrNotFound when the chat is absent or owned by another
// identity, and ErrConflict when a message is already in progress. The
// placeholder insert is the atomicity point: a partial unique index on
// (chat_id) WHERE status='in_progress' rejects the second of two concurrent
// appends inside the database, so there is no read-then-write race.
func (s *Store) AppendMessage(chatID, owner, content string) (*Exchange, error) {
	var exchange *Exchange
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := findOwnedChat(tx, chatID, owner); err != nil {
			return err
		}
		var err error
		exchange, err = appendExchange(tx, chatID, content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exchange, nil
}

func appendExchange(tx *gorm.DB, chatID, content string) (*Exchange, error) {
	placeholder := &models.Message{
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Status: models.StatusInProgress,
	}
	userMsg := &models.Message{
		ChatID:  chatID,
		Role:    models.RoleUser,
		Content: content,
		Status:  models.StatusCompleted,
	}

	if err := tx.Create(userMsg).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(placeholder).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	if err := touchChat(tx, chatID); err != nil {
		return nil, err
	}
	return &Exchange{UserMessage: userMsg, Placeholder: placeholder}, nil
}

// GetChat returns a chat owned by owner.
func (s *Store) GetChat(chatID, owner string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.Where("id = ? AND owner_identity = ?", chatID, owner).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the owner's chats, most recently active first.
func (s *Store) ListChats(owner string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.Where("owner_identity = ?", owner).
		Order("updated_at DESC").Find(&chats).Error
	return chats, err
}

// ListMessages returns a chat's messages in creation order.
func (s *Store) ListMessages(chatID, owner string) ([]models.Message, error) {
	if err := findOwnedChat(s.db, chatID, owner); err != nil {
		return nil, err
	}
	var msgs []models.Message
	err := s.db.Where("chat_id = ?", chatID).Order("id ASC").Find(&msgs).Error
	return msgs, err
}

// RenameChat updates the display name.
func (s *Store) RenameChat(chatID, owner, name string) error {
	res := s.db.Model(&models.Chat{}).
		Where("id = ? AND owner_identity = ?", chatID, owner).
		Update("display_name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat and cascades its messages.
func (s *Store) DeleteChat(chatID, owner string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_identity = ?", chatID, owner).
			Delete(&models.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// Explicit cascade so deletes are not at the mercy of the
		// connection's foreign_keys pragma.
		return tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error
	})
}

// CompleteMessage finalizes an in-progress message with the agent's output.
// It reports whether this call performed the transition; a false return means
// the message was already terminal and the signal is ignored.
func (s *Store) CompleteMessage(messageID uint, content string, usageTokens *int) (bool, error) {
	return s.finalize(messageID, map[string]interface{}{
		"content":      content,
		"status":       models.StatusCompleted,
		"usage_tokens": usageTokens,
		"error_text":   "",
	})
}

// FailMessage finalizes an in-progress message with a sanitized error. Like
// CompleteMessage, it is idempotent: terminal messages are never rewritten.
func (s *Store) FailMessage(messageID uint, errorText string) (bool, error) {
	return s.finalize(messageID, map[string]interface{}{
		"status":     models.StatusError,
		"error_text": errorText,
	})
}

func (s *Store) finalize(messageID uint, updates map[string]interface{}) (bool, error) {
	var transitioned bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("id = ? AND status = ?", messageID, models.StatusInProgress).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		transitioned = res.RowsAffected == 1
		if !transitioned {
			return nil
		}
		var msg models.Message
		if err := tx.Select("chat_id").First(&msg, messageID).Error; err != nil {
			return err
		}
		return touchChat(tx, msg.ChatID)
	})
	return transitioned, err
}

// FailOrphaned marks every in-progress message as failed. It runs at startup,
// before any engine goroutine exists, so placeholders stranded by a crash or
// a lost terminal write do not hold their chats in conflict forever.
func (s *Store) FailOrphaned(errorText string) (int64, error) {
	res := s.db.Model(&models.Message{}).
		Where("status = ?", models.StatusInProgress).
		Updates(map[string]interface{}{
			"status":     models.StatusError,
			"error_text": errorText,
		})
	return res.RowsAffected, res.Error
}

func findOwnedChat(tx *gorm.DB, chatID, owner string) error {
	var count int64
	err := tx.Model(&models.Chat{}).
		Where("id = ? AND owner_identity = ?", chatID, owner).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func touchChat(tx *gorm.DB, chatID string) error {
	return tx.Model(&models.Chat{}).Where("id = ?", chatID).
		Update("updated_at", time.Now()).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
