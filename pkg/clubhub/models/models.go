package models

import "gorm.io/gorm"

// AllModels returns all models for migration.
// Users and clubs come first because the remaining tables reference them.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Club{},
		&ClubMember{},
		&Event{},
		&EventRegistration{},
		&Notification{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
