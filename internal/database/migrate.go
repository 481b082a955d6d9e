package database

import (
	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/models"
)

// Migrate applies the schema for every persisted model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.ProjectInvitation{},
		&models.Task{},
		&models.TaskMember{},
		&models.Chat{},
		&models.ChatMember{},
		&models.Message{},
		&models.MessageRead{},
		&models.Notification{},
	)
}
