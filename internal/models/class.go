package models

import "time"

// ClassType is a bookable modality with default duration and capacity.
type ClassType struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	MaxCapacity     int       `db:"max_capacity" json:"max_capacity"`
	Color           string    `db:"color" json:"color"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ClassTypeFilter defines filter criteria for listing class types.
type ClassTypeFilter struct {
	Active *bool
	Search string
}
