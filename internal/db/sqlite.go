package db

import (
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/codebine/agentchat/internal/db/models"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs auto-migration and installs the in-progress gate index. The
// partial unique index makes the assistant-placeholder insert the atomic
// check for the at-most-one-in-progress-per-chat rule: a second insert for
// the same chat fails with a constraint violation instead of racing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Chat{},
		&models.Message{},
		&models.OAuthProvider{},
		&models.OAuthGrant{},
		&models.AuthorizationRequest{},
	); err != nil {
		return err
	}

	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_in_progress
		 ON messages(chat_id) WHERE status = 'in_progress'`,
	).Error
}

// SeedProviders upserts the registered OAuth providers so the table reflects
// the current registry on every start.
func SeedProviders(db *gorm.DB, providers []models.OAuthProvider) error {
	for i := range providers {
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "client_id", "client_secret",
				"authorize_url", "token_url", "revoke_url", "scopes", "updated_at",
			}),
		}).Create(&providers[i]).Error
		if err != nil {
			return err
		}
	}
	if len(providers) > 0 {
		log.Printf("🔌 Registered %d OAuth provider(s)", len(providers))
	}
	return nil
}
