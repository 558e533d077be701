package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	Username     string    `gorm:"primaryKey"`
	FullName     string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

// ProjectModel keeps the gallery as an ordered JSON array of data URIs.
type ProjectModel struct {
	ID          string         `gorm:"primaryKey"`
	Title       string         `gorm:"not null"`
	Description string         `gorm:"type:text;not null"`
	Category    string         `gorm:"not null"`
	Link        string         `gorm:"type:text"`
	Author      string         `gorm:"not null"`
	AuthorID    string         `gorm:"index"`
	Status      string         `gorm:"not null;index"`
	Gallery     datatypes.JSON `gorm:"type:jsonb"`
	ImageURL    string         `gorm:"type:text"`
	Views       int            `gorm:"not null;default:0"`
	Color       string
	Icon        string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}
