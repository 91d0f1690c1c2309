package models

import "time"

// Student represents a learner registered with a school. Balance is the fee
// amount currently owed, credit the amount owed back; both are maintained
// exclusively by the posting engine and never mutated elsewhere.
type Student struct {
	ID            string    `db:"id" json:"id"`
	SchoolID      string    `db:"school_id" json:"school_id"`
	AdmissionNo   string    `db:"admission_no" json:"admission_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	ClassName     string    `db:"class_name" json:"class_name"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	GuardianEmail string    `db:"guardian_email" json:"guardian_email"`
	Balance       float64   `db:"balance" json:"balance"`
	Credit        float64   `db:"credit" json:"credit"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	SchoolID   string
	Search     string
	ClassName  string
	Active     *bool
	WithDebt   bool
	MinBalance float64
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
