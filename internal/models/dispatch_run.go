package models

import "time"

// DispatchRun is one bulk reminder dispatch for a tenant.
type DispatchRun struct {
	ID         string    `gorm:"primaryKey;size:36"` // uuid
	TenantID   string    `gorm:"size:64;not null;index"`
	Sent       int       `gorm:"not null;default:0"`
	Failed     int       `gorm:"not null;default:0"`
	Total      int       `gorm:"not null;default:0"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time

	Items []DispatchItem `gorm:"foreignKey:RunID"`
}

// DispatchItem is the outcome for one target of a run. Phone is stored
// masked, keeping only the last four digits.
type DispatchItem struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"size:36;not null;index"`
	Position int    `gorm:"not null"`
	Phone    string `gorm:"size:32"`
	Name     string `gorm:"size:128"`
	Status   string `gorm:"size:16;not null"` // sent, failed
	Error    string `gorm:"type:text"`
}
