package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionStudentCreate    = "STUDENT_CREATE"
	AuditActionStudentUpdate    = "STUDENT_UPDATE"
	AuditActionStudentDelete    = "STUDENT_DELETE"
	AuditActionPaymentPost      = "PAYMENT_POST"
	AuditActionPaymentReverse   = "PAYMENT_REVERSE"
	AuditActionCreditApply      = "CREDIT_APPLY"
	AuditActionCreditRefund     = "CREDIT_REFUND"
	AuditActionCreditTransfer   = "CREDIT_TRANSFER"
	AuditActionTermOpen         = "TERM_OPEN"
	AuditActionTermClose        = "TERM_CLOSE"
	AuditActionSettingsUpdate   = "SETTINGS_UPDATE"
	AuditActionBalanceRecompute = "BALANCE_RECOMPUTE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   *string   `db:"school_id" json:"school_id,omitempty"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
