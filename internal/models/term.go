package models

import (
	"fmt"
	"time"
)

// TermStatus tracks the lifecycle of an academic term. Transitions only move
// forward: DRAFT -> OPEN -> CLOSED.
type TermStatus string

const (
	TermStatusDraft  TermStatus = "DRAFT"
	TermStatusOpen   TermStatus = "OPEN"
	TermStatusClosed TermStatus = "CLOSED"
)

// CanTransitionTo reports whether the status change is a legal forward move.
func (s TermStatus) CanTransitionTo(next TermStatus) bool {
	switch s {
	case TermStatusDraft:
		return next == TermStatusOpen
	case TermStatusOpen:
		return next == TermStatusClosed
	default:
		return false
	}
}

// Term models one of the three academic terms of a school year.
type Term struct {
	ID        string     `db:"id" json:"id"`
	SchoolID  string     `db:"school_id" json:"school_id"`
	Year      int        `db:"year" json:"year"`
	Term      int        `db:"term" json:"term"`
	Status    TermStatus `db:"status" json:"status"`
	IsCurrent bool       `db:"is_current" json:"is_current"`
	OpenedAt  *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Label renders the conventional "2026 Term 1" display form.
func (t Term) Label() string {
	return fmt.Sprintf("%d Term %d", t.Year, t.Term)
}

// Next returns the (year, term) pair that follows this term.
func (t Term) Next() (int, int) {
	if t.Term >= 3 {
		return t.Year + 1, 1
	}
	return t.Year, t.Term + 1
}

// TermFilter defines filters supported by term list endpoints.
type TermFilter struct {
	SchoolID  string
	Year      int
	Status    TermStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
