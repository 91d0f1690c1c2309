package models

import "time"

// PaymentMethod enumerates accepted collection channels.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodBank   PaymentMethod = "BANK"
	MethodMpesa  PaymentMethod = "MPESA"
	MethodCheque PaymentMethod = "CHEQUE"
	// MethodCredit marks synthetic rows written by credit transfers so they
	// show up in a student's payment history.
	MethodCredit PaymentMethod = "CREDIT"
)

// Payment is the immutable record of money received. Reversals are flagged,
// never deleted; the compensating movement lives in the ledger.
type Payment struct {
	ID         string        `db:"id" json:"id"`
	SchoolID   string        `db:"school_id" json:"school_id"`
	StudentID  string        `db:"student_id" json:"student_id"`
	TermID     string        `db:"term_id" json:"term_id"`
	Amount     float64       `db:"amount" json:"amount"`
	Method     PaymentMethod `db:"method" json:"method"`
	Reference  *string       `db:"reference" json:"reference,omitempty"`
	Narrative  string        `db:"narrative" json:"narrative"`
	Reversed   bool          `db:"reversed" json:"reversed"`
	ReversedAt *time.Time    `db:"reversed_at" json:"reversed_at,omitempty"`
	RecordedBy *string       `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	SchoolID  string
	StudentID string
	TermID    string
	Method    PaymentMethod
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CarryForward is an overpayment parked for the following term. When that term
// opens, the sweep posts it as a payment and marks the row applied.
type CarryForward struct {
	ID               string    `db:"id" json:"id"`
	SchoolID         string    `db:"school_id" json:"school_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	FromTermID       string    `db:"from_term_id" json:"from_term_id"`
	Amount           float64   `db:"amount" json:"amount"`
	Applied          bool      `db:"applied" json:"applied"`
	AppliedPaymentID *string   `db:"applied_payment_id" json:"applied_payment_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// MpesaStatus tracks the state of an STK push attempt.
type MpesaStatus string

const (
	MpesaStatusPending MpesaStatus = "PENDING"
	MpesaStatusSuccess MpesaStatus = "SUCCESS"
	MpesaStatusFailed  MpesaStatus = "FAILED"
)

// MpesaTransaction is the tracking row for one STK push, keyed by the
// gateway's checkout request ID.
type MpesaTransaction struct {
	ID                string      `db:"id" json:"id"`
	SchoolID          string      `db:"school_id" json:"school_id"`
	StudentID         string      `db:"student_id" json:"student_id"`
	Phone             string      `db:"phone" json:"phone"`
	Amount            float64     `db:"amount" json:"amount"`
	MerchantRequestID string      `db:"merchant_request_id" json:"merchant_request_id"`
	CheckoutRequestID string      `db:"checkout_request_id" json:"checkout_request_id"`
	Status            MpesaStatus `db:"status" json:"status"`
	ResultCode        *int        `db:"result_code" json:"result_code,omitempty"`
	ResultDesc        string      `db:"result_desc" json:"result_desc"`
	Receipt           *string     `db:"receipt" json:"receipt,omitempty"`
	RawCallback       []byte      `db:"raw_callback" json:"-"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}
