package models

import "time"

// SessionTransition is one applied lifecycle state change for a tenant.
type SessionTransition struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	TenantID  string    `gorm:"size:64;not null;index:idx_transition_tenant_time"`
	FromState string    `gorm:"size:32;not null"`
	ToState   string    `gorm:"size:32;not null;index"`
	Trigger   string    `gorm:"size:32"`
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_transition_tenant_time"`
}
