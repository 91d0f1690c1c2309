package models

import "time"

// School is a tenant. Every domain row is scoped by school ID.
type School struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Setting keys stored in school_settings. M-Pesa credentials per school
// override the process-wide configuration when present.
const (
	SettingBrandName           = "brand_name"
	SettingReceiptFooter       = "receipt_footer"
	SettingReminderSubject     = "reminder_subject"
	SettingReminderTemplate    = "reminder_template"
	SettingMpesaShortcode      = "mpesa_shortcode"
	SettingMpesaPasskey        = "mpesa_passkey"
	SettingMpesaConsumerKey    = "mpesa_consumer_key"
	SettingMpesaConsumerSecret = "mpesa_consumer_secret"
)

// SchoolSetting is one per-tenant configuration entry.
type SchoolSetting struct {
	SchoolID  string    `db:"school_id" json:"school_id"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
