package models

import "time"

// ReminderChannel is the delivery channel for a balance reminder.
type ReminderChannel string

const (
	ChannelEmail    ReminderChannel = "EMAIL"
	ChannelWhatsApp ReminderChannel = "WHATSAPP"
)

// ReminderStatus tracks delivery outcome.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "PENDING"
	ReminderSent    ReminderStatus = "SENT"
	ReminderFailed  ReminderStatus = "FAILED"
)

// Reminder logs one outbound balance notification attempt.
type Reminder struct {
	ID        string          `db:"id" json:"id"`
	SchoolID  string          `db:"school_id" json:"school_id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Channel   ReminderChannel `db:"channel" json:"channel"`
	Status    ReminderStatus  `db:"status" json:"status"`
	Detail    string          `db:"detail" json:"detail"`
	SentAt    *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
