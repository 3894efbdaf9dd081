package models

import (
	"encoding/json"
	"errors"
	"time"
)

// PushSubscription maps a user to the browser push descriptor issued by the
// platform push service. At most one active row per user — writes upsert on
// user_id, last writer wins.
type PushSubscription struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	// Descriptor is the serialized subscription as handed out by the browser:
	// endpoint URL plus encryption keys. Stored verbatim and parsed again at
	// dispatch time; rows that no longer parse are skipped, never fatal.
	Descriptor string `gorm:"type:text;not null" json:"descriptor"`

	// Delivery health. A 404/410 from the gateway disables the row immediately;
	// repeated failures disable it once the streak crosses the prune threshold.
	FailureStreak int        `gorm:"default:0" json:"failure_streak"`
	DisabledAt    *time.Time `gorm:"index" json:"disabled_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// SubscriptionKeys are the client encryption keys inside a descriptor.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionDescriptor is the parsed form of PushSubscription.Descriptor.
type SubscriptionDescriptor struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

var ErrMalformedDescriptor = errors.New("malformed push subscription descriptor")

// ParseDescriptor deserializes a stored descriptor. The endpoint is the one
// field dispatch cannot do without, so its absence is malformed too.
func ParseDescriptor(raw string) (*SubscriptionDescriptor, error) {
	var d SubscriptionDescriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, ErrMalformedDescriptor
	}
	if d.Endpoint == "" {
		return nil, ErrMalformedDescriptor
	}
	return &d, nil
}

// Parse returns the row's descriptor in usable form.
func (s *PushSubscription) Parse() (*SubscriptionDescriptor, error) {
	return ParseDescriptor(s.Descriptor)
}
