package models

import "time"

// LedgerEntryType classifies a balance/credit movement.
type LedgerEntryType string

const (
	LedgerInvoiceCharge   LedgerEntryType = "INVOICE_CHARGE"
	LedgerPaymentApplied  LedgerEntryType = "PAYMENT_APPLIED"
	LedgerCreditAdded     LedgerEntryType = "CREDIT_ADDED"
	LedgerCreditApplied   LedgerEntryType = "CREDIT_APPLIED"
	LedgerCreditRefunded  LedgerEntryType = "CREDIT_REFUNDED"
	LedgerTransferOut     LedgerEntryType = "TRANSFER_OUT"
	LedgerTransferIn      LedgerEntryType = "TRANSFER_IN"
	LedgerPaymentReversed LedgerEntryType = "PAYMENT_REVERSED"
	LedgerCarryForward    LedgerEntryType = "CARRY_FORWARD"
)

// Source types referenced by ledger entries.
const (
	LedgerSourcePayment  = "PAYMENT"
	LedgerSourceInvoice  = "INVOICE"
	LedgerSourceCreditOp = "CREDIT_OP"
	LedgerSourceTransfer = "TRANSFER"
	LedgerSourceCarry    = "CARRY_FORWARD"
)

// LedgerEntry is one append-only line in the student account ledger. The
// ledger is the system of record: stored balance/credit on students must
// always equal the last entry's balance_after/credit_after.
type LedgerEntry struct {
	ID           string          `db:"id" json:"id"`
	SchoolID     string          `db:"school_id" json:"school_id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	EntryType    LedgerEntryType `db:"entry_type" json:"entry_type"`
	Amount       float64         `db:"amount" json:"amount"`
	BalanceAfter float64         `db:"balance_after" json:"balance_after"`
	CreditAfter  float64         `db:"credit_after" json:"credit_after"`
	SourceType   string          `db:"source_type" json:"source_type"`
	SourceID     *string         `db:"source_id" json:"source_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
