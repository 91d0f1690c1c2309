package models

import "time"

// FeeComponent is one named charge a school levies (tuition, transport, ...).
type FeeComponent struct {
	ID            string    `db:"id" json:"id"`
	SchoolID      string    `db:"school_id" json:"school_id"`
	Name          string    `db:"name" json:"name"`
	DefaultAmount float64   `db:"default_amount" json:"default_amount"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFeeDefault overrides a component amount for one class in one term.
type ClassFeeDefault struct {
	SchoolID    string  `db:"school_id" json:"school_id"`
	TermID      string  `db:"term_id" json:"term_id"`
	ClassName   string  `db:"class_name" json:"class_name"`
	ComponentID string  `db:"component_id" json:"component_id"`
	Amount      float64 `db:"amount" json:"amount"`
}

// StudentFeeOverride overrides a component amount for one student in one term.
// Overrides win over class defaults which win over component defaults.
type StudentFeeOverride struct {
	SchoolID    string  `db:"school_id" json:"school_id"`
	TermID      string  `db:"term_id" json:"term_id"`
	StudentID   string  `db:"student_id" json:"student_id"`
	ComponentID string  `db:"component_id" json:"component_id"`
	Amount      float64 `db:"amount" json:"amount"`
}

// Invoice is the expected charge for a student in a term.
type Invoice struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	Subtotal  float64   `db:"subtotal" json:"subtotal"`
	Discount  float64   `db:"discount" json:"discount"`
	Total     float64   `db:"total" json:"total"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Items []InvoiceItem `db:"-" json:"items,omitempty"`
}

// InvoiceItem is a single component line on an invoice.
type InvoiceItem struct {
	ID          string  `db:"id" json:"id"`
	InvoiceID   string  `db:"invoice_id" json:"invoice_id"`
	ComponentID string  `db:"component_id" json:"component_id"`
	Description string  `db:"description" json:"description"`
	Amount      float64 `db:"amount" json:"amount"`
}
