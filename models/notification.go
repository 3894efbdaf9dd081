package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// NotificationType discriminates broadcast rows from per-user rows
type NotificationType string

const (
	NotificationTypeBroadcast NotificationType = "broadcast"
	NotificationTypePersonal  NotificationType = "personal"
)

// Notification is one row of the notification record log.
// A broadcast row (UserID = nil) records that a broadcast was initiated —
// it is an audit entry, not a per-recipient receipt.
type Notification struct {
	ID      string           `gorm:"primaryKey;type:uuid" json:"id"`
	Title   string           `gorm:"not null" json:"title"`
	Message string           `gorm:"not null;type:text" json:"message"`
	Type    NotificationType `gorm:"type:varchar(16);not null;default:'broadcast';index" json:"type"`
	UserID  *string          `gorm:"index" json:"user_id,omitempty"` // nil = broadcast
	Read    bool             `gorm:"default:false" json:"read"`      // meaningful only for personal rows
	Slug    string           `gorm:"index" json:"slug"`              // reference slug derived from the title

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsBroadcast reports whether the row is an audit entry for a fan-out send.
func (n *Notification) IsBroadcast() bool {
	return n.UserID == nil
}
