package models

import "time"

// SessionSlot is one stored value of a session (token or user profile)
type SessionSlot struct {
	SessionID string    `json:"session_id" db:"session_id"`
	Slot      string    `json:"slot" db:"slot"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the SessionSlot model
func (SessionSlot) TableName() string {
	return "session_slots"
}

// NewSessionSlot creates a SessionSlot stamped with the current time
func NewSessionSlot(sessionID, slot, value string) *SessionSlot {
	return &SessionSlot{
		SessionID: sessionID,
		Slot:      slot,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
}
