package models

import "time"

// CreditOpType enumerates credit balance operations.
type CreditOpType string

const (
	CreditOpApply       CreditOpType = "APPLY"
	CreditOpRefund      CreditOpType = "REFUND"
	CreditOpTransferOut CreditOpType = "TRANSFER_OUT"
	CreditOpTransferIn  CreditOpType = "TRANSFER_IN"
)

// CreditOperation records an apply/refund/transfer action on a student's
// credit balance. The authoritative movement is the matching ledger entry.
type CreditOperation struct {
	ID          string       `db:"id" json:"id"`
	SchoolID    string       `db:"school_id" json:"school_id"`
	StudentID   string       `db:"student_id" json:"student_id"`
	Operation   CreditOpType `db:"operation" json:"operation"`
	Amount      float64      `db:"amount" json:"amount"`
	PerformedBy *string      `db:"performed_by" json:"performed_by,omitempty"`
	Note        string       `db:"note" json:"note"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// CreditTransfer records a credit move between two students. The amount is
// always fully accounted: amount = applied_to_balance + added_to_credit.
type CreditTransfer struct {
	ID               string    `db:"id" json:"id"`
	SchoolID         string    `db:"school_id" json:"school_id"`
	FromStudentID    string    `db:"from_student_id" json:"from_student_id"`
	ToStudentID      string    `db:"to_student_id" json:"to_student_id"`
	Amount           float64   `db:"amount" json:"amount"`
	AppliedToBalance float64   `db:"applied_to_balance" json:"applied_to_balance"`
	AddedToCredit    float64   `db:"added_to_credit" json:"added_to_credit"`
	PerformedBy      *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
