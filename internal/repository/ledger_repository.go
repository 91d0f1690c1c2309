package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/shulepay-api/internal/models"
)

// PaymentOutcome reports how a posted amount was absorbed.
type PaymentOutcome struct {
	Payment          *models.Payment `json:"payment"`
	AppliedToBalance float64         `json:"applied_to_balance"`
	AddedToCredit    float64         `json:"added_to_credit"`
	NewBalance       float64         `json:"new_balance"`
	NewCredit        float64         `json:"new_credit"`
}

// LedgerRepository is the posting engine. Every mutation of a student's
// balance or credit goes through here: each operation runs in one database
// transaction, locks the student row, appends ledger entries and updates the
// stored balance to match the last entry. Nothing else writes those columns.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository instantiates the posting engine.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func lockStudent(ctx context.Context, tx *sqlx.Tx, schoolID, studentID string) (*models.Student, error) {
	var student models.Student
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 AND school_id = $2 FOR UPDATE", studentColumns)
	if err := tx.GetContext(ctx, &student, query, studentID, schoolID); err != nil {
		return nil, err
	}
	return &student, nil
}

func appendEntry(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO ledger_entries (id, school_id, student_id, entry_type, amount, balance_after, credit_after, source_type, source_id, created_at)
		VALUES (:id, :school_id, :student_id, :entry_type, :amount, :balance_after, :credit_after, :source_type, :source_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func storeBalances(ctx context.Context, tx *sqlx.Tx, studentID string, balance, credit float64) error {
	const query = `UPDATE students SET balance = $2, credit = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, studentID, balance, credit, time.Now().UTC()); err != nil {
		return fmt.Errorf("store balances: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO payments (id, school_id, student_id, term_id, amount, method, reference, narrative, reversed, recorded_by, created_at)
		VALUES (:id, :school_id, :student_id, :term_id, :amount, :method, :reference, :narrative, :reversed, :recorded_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// SaveInvoiceCharge writes an invoice and charges the difference against the
// student's balance in one transaction. The previous total is read under the
// student row lock, so a crash can never leave the invoice updated without
// its ledger charge. The delta is negative when regeneration lowers the
// total; an unchanged total writes no ledger entry.
func (r *LedgerRepository) SaveInvoiceCharge(ctx context.Context, invoice *models.Invoice) (*models.LedgerEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin invoice charge: %w", err)
	}
	defer tx.Rollback()

	student, err := lockStudent(ctx, tx, invoice.SchoolID, invoice.StudentID)
	if err != nil {
		return nil, err
	}

	var previousTotal float64
	err = tx.GetContext(ctx, &previousTotal, `SELECT total FROM invoices WHERE student_id = $1 AND term_id = $2`, invoice.StudentID, invoice.TermID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load previous invoice total: %w", err)
	}

	if err := saveInvoiceTx(ctx, tx, invoice); err != nil {
		return nil, err
	}

	delta := invoice.Total - previousTotal
	var entry *models.LedgerEntry
	if delta != 0 {
		balance := student.Balance + delta
		entry = &models.LedgerEntry{
			SchoolID:     invoice.SchoolID,
			StudentID:    invoice.StudentID,
			EntryType:    models.LedgerInvoiceCharge,
			Amount:       delta,
			BalanceAfter: balance,
			CreditAfter:  student.Credit,
			SourceType:   models.LedgerSourceInvoice,
			SourceID:     &invoice.ID,
		}
		if err := appendEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err := storeBalances(ctx, tx, invoice.StudentID, balance, student.Credit); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invoice charge: %w", err)
	}
	return entry, nil
}

// PostPayment records a payment and applies it: up to the outstanding balance
// is absorbed, any excess lands on the student's credit.
func (r *LedgerRepository) PostPayment(ctx context.Context, payment *models.Payment) (*PaymentOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback()

	student, err := lockStudent(ctx, tx, payment.SchoolID, payment.StudentID)
	if err != nil {
		return nil, err
	}

	if err := insertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	applied := payment.Amount
	if applied > student.Balance {
		applied = student.Balance
	}
	toCredit := payment.Amount - applied

	balance := student.Balance - applied
	credit := student.Credit

	if applied > 0 {
		if err := appendEntry(ctx, tx, &models.LedgerEntry{
			SchoolID:     payment.SchoolID,
			StudentID:    payment.StudentID,
			EntryType:    models.LedgerPaymentApplied,
			Amount:       applied,
			BalanceAfter: balance,
			CreditAfter:  credit,
			SourceType:   models.LedgerSourcePayment,
			SourceID:     &payment.ID,
		}); err != nil {
			return nil, err
		}
	}
	if toCredit > 0 {
		credit += toCredit
		if err := appendEntry(ctx, tx, &models.LedgerEntry{
			SchoolID:     payment.SchoolID,
			StudentID:    payment.StudentID,
			EntryType:    models.LedgerCreditAdded,
			Amount:       toCredit,
			BalanceAfter: balance,
			CreditAfter:  credit,
			SourceType:   models.LedgerSourcePayment,
			SourceID:     &payment.ID,
		}); err != nil {
			return nil, err
		}
	}

	if err := storeBalances(ctx, tx, payment.StudentID, balance, credit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	return &PaymentOutcome{
		Payment:          payment,
		AppliedToBalance: applied,
		AddedToCredit:    toCredit,
		NewBalance:       balance,
		NewCredit:        credit,
	}, nil
}

// ReversePayment undoes a payment. The original split is read back from the
// ledger: the applied portion is re-charged to the balance, the credited
// portion is clawed back from credit first and any shortfall (credit already
// spent) is added to the balance instead.
func (r *LedgerRepository) ReversePayment(ctx context.Context, schoolID, paymentID string) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reversal: %w", err)
	}
	defer tx.Rollback()

	var payment models.Payment
	if err := tx.GetContext(ctx, &payment, `SELECT * FROM payments WHERE id = $1 AND school_id = $2 FOR UPDATE`, paymentID, schoolID); err != nil {
		return nil, err
	}
	if payment.Reversed {
		return nil, ErrAlreadyReversed
	}

	student, err := lockStudent(ctx, tx, schoolID, payment.StudentID)
	if err != nil {
		return nil, err
	}

	var applied, credited float64
	rows := []struct {
		EntryType models.LedgerEntryType `db:"entry_type"`
		Amount    float64                `db:"amount"`
	}{}
	if err := tx.SelectContext(ctx, &rows, `SELECT entry_type, amount FROM ledger_entries WHERE source_type = $1 AND source_id = $2`, models.LedgerSourcePayment, paymentID); err != nil {
		return nil, fmt.Errorf("load payment entries: %w", err)
	}
	for _, row := range rows {
		switch row.EntryType {
		case models.LedgerPaymentApplied:
			applied += row.Amount
		case models.LedgerCreditAdded:
			credited += row.Amount
		}
	}

	clawback := credited
	if clawback > student.Credit {
		clawback = student.Credit
	}
	balance := student.Balance + applied + (credited - clawback)
	credit := student.Credit - clawback

	if err := appendEntry(ctx, tx, &models.LedgerEntry{
		SchoolID:     schoolID,
		StudentID:    payment.StudentID,
		EntryType:    models.LedgerPaymentReversed,
		Amount:       payment.Amount,
		BalanceAfter: balance,
		CreditAfter:  credit,
		SourceType:   models.LedgerSourcePayment,
		SourceID:     &payment.ID,
	}); err != nil {
		return nil, err
	}
	if err := storeBalances(ctx, tx, payment.StudentID, balance, credit); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE payments SET reversed = TRUE, reversed_at = $2 WHERE id = $1`, paymentID, now); err != nil {
		return nil, fmt.Errorf("flag reversal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reversal: %w", err)
	}

	payment.Reversed = true
	payment.ReversedAt = &now
	return &payment, nil
}

// ApplyCredit spends part of a student's credit against their balance. The
// applied amount is clamped to the outstanding balance.
func (r *LedgerRepository) ApplyCredit(ctx context.Context, op *models.CreditOperation) (*PaymentOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credit apply: %w", err)
	}
	defer tx.Rollback()

	student, err := lockStudent(ctx, tx, op.SchoolID, op.StudentID)
	if err != nil {
		return nil, err
	}
	if op.Amount > student.Credit {
		return nil, ErrInsufficientCredit
	}

	applied := op.Amount
	if applied > student.Balance {
		applied = student.Balance
	}
	if applied == 0 {
		// Nothing outstanding to absorb: succeed without writing anything.
		// The credit_operations CHECK forbids zero-amount rows anyway.
		return &PaymentOutcome{NewBalance: student.Balance, NewCredit: student.Credit}, nil
	}
	balance := student.Balance - applied
	credit := student.Credit - applied

	op.Operation = models.CreditOpApply
	op.Amount = applied
	if err := insertCreditOperation(ctx, tx, op); err != nil {
		return nil, err
	}
	if err := appendEntry(ctx, tx, &models.LedgerEntry{
		SchoolID:     op.SchoolID,
		StudentID:    op.StudentID,
		EntryType:    models.LedgerCreditApplied,
		Amount:       applied,
		BalanceAfter: balance,
		CreditAfter:  credit,
		SourceType:   models.LedgerSourceCreditOp,
		SourceID:     &op.ID,
	}); err != nil {
		return nil, err
	}
	if err := storeBalances(ctx, tx, op.StudentID, balance, credit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credit apply: %w", err)
	}
	return &PaymentOutcome{AppliedToBalance: applied, NewBalance: balance, NewCredit: credit}, nil
}

// RefundCredit pays out part of a student's credit. Fails when the credit
// balance cannot cover the amount.
func (r *LedgerRepository) RefundCredit(ctx context.Context, op *models.CreditOperation) (*PaymentOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin refund: %w", err)
	}
	defer tx.Rollback()

	student, err := lockStudent(ctx, tx, op.SchoolID, op.StudentID)
	if err != nil {
		return nil, err
	}
	if op.Amount > student.Credit {
		return nil, ErrInsufficientCredit
	}

	credit := student.Credit - op.Amount

	op.Operation = models.CreditOpRefund
	if err := insertCreditOperation(ctx, tx, op); err != nil {
		return nil, err
	}
	if err := appendEntry(ctx, tx, &models.LedgerEntry{
		SchoolID:     op.SchoolID,
		StudentID:    op.StudentID,
		EntryType:    models.LedgerCreditRefunded,
		Amount:       op.Amount,
		BalanceAfter: student.Balance,
		CreditAfter:  credit,
		SourceType:   models.LedgerSourceCreditOp,
		SourceID:     &op.ID,
	}); err != nil {
		return nil, err
	}
	if err := storeBalances(ctx, tx, op.StudentID, student.Balance, credit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refund: %w", err)
	}
	return &PaymentOutcome{NewBalance: student.Balance, NewCredit: credit}, nil
}

// TransferCredit moves credit from one student to another. On the receiving
// side the amount first clears outstanding balance, the rest becomes credit.
// Both student rows are locked in ID order to keep lock acquisition
// deadlock-free.
func (r *LedgerRepository) TransferCredit(ctx context.Context, transfer *models.CreditTransfer) (*models.CreditTransfer, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	firstID, secondID := transfer.FromStudentID, transfer.ToStudentID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := lockStudent(ctx, tx, transfer.SchoolID, firstID)
	if err != nil {
		return nil, err
	}
	second, err := lockStudent(ctx, tx, transfer.SchoolID, secondID)
	if err != nil {
		return nil, err
	}

	from, to := first, second
	if from.ID != transfer.FromStudentID {
		from, to = second, first
	}

	if transfer.Amount > from.Credit {
		return nil, ErrInsufficientCredit
	}

	applied := transfer.Amount
	if applied > to.Balance {
		applied = to.Balance
	}
	transfer.AppliedToBalance = applied
	transfer.AddedToCredit = transfer.Amount - applied

	if transfer.ID == "" {
		transfer.ID = uuid.NewString()
	}
	transfer.CreatedAt = time.Now().UTC()
	const insertTransfer = `INSERT INTO credit_transfers (id, school_id, from_student_id, to_student_id, amount, applied_to_balance, added_to_credit, performed_by, created_at)
		VALUES (:id, :school_id, :from_student_id, :to_student_id, :amount, :applied_to_balance, :added_to_credit, :performed_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertTransfer, transfer); err != nil {
		return nil, fmt.Errorf("insert transfer: %w", err)
	}

	for _, op := range []*models.CreditOperation{
		{SchoolID: transfer.SchoolID, StudentID: transfer.FromStudentID, Operation: models.CreditOpTransferOut, Amount: transfer.Amount, PerformedBy: transfer.PerformedBy},
		{SchoolID: transfer.SchoolID, StudentID: transfer.ToStudentID, Operation: models.CreditOpTransferIn, Amount: transfer.Amount, PerformedBy: transfer.PerformedBy},
	} {
		if err := insertCreditOperation(ctx, tx, op); err != nil {
			return nil, err
		}
	}

	fromCredit := from.Credit - transfer.Amount
	if err := appendEntry(ctx, tx, &models.LedgerEntry{
		SchoolID:     transfer.SchoolID,
		StudentID:    from.ID,
		EntryType:    models.LedgerTransferOut,
		Amount:       transfer.Amount,
		BalanceAfter: from.Balance,
		CreditAfter:  fromCredit,
		SourceType:   models.LedgerSourceTransfer,
		SourceID:     &transfer.ID,
	}); err != nil {
		return nil, err
	}
	if err := storeBalances(ctx, tx, from.ID, from.Balance, fromCredit); err != nil {
		return nil, err
	}

	toBalance := to.Balance - applied
	toCredit := to.Credit + transfer.AddedToCredit
	if err := appendEntry(ctx, tx, &models.LedgerEntry{
		SchoolID:     transfer.SchoolID,
		StudentID:    to.ID,
		EntryType:    models.LedgerTransferIn,
		Amount:       transfer.Amount,
		BalanceAfter: toBalance,
		CreditAfter:  toCredit,
		SourceType:   models.LedgerSourceTransfer,
		SourceID:     &transfer.ID,
	}); err != nil {
		return nil, err
	}
	if err := storeBalances(ctx, tx, to.ID, toBalance, toCredit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return transfer, nil
}

// ParkCredits converts every positive credit balance into a carry forward row
// when a term closes. Returns the number of students parked.
func (r *LedgerRepository) ParkCredits(ctx context.Context, schoolID, fromTermID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin park credits: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM students WHERE school_id = $1 AND credit > 0 ORDER BY id FOR UPDATE`, schoolID); err != nil {
		return 0, fmt.Errorf("select credited students: %w", err)
	}

	parked := 0
	for _, studentID := range ids {
		var student models.Student
		query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
		if err := tx.GetContext(ctx, &student, query, studentID); err != nil {
			return 0, err
		}

		carry := models.CarryForward{
			ID:         uuid.NewString(),
			SchoolID:   schoolID,
			StudentID:  studentID,
			FromTermID: fromTermID,
			Amount:     student.Credit,
			CreatedAt:  time.Now().UTC(),
		}
		const insertCarry = `INSERT INTO carry_forwards (id, school_id, student_id, from_term_id, amount, applied, created_at)
			VALUES (:id, :school_id, :student_id, :from_term_id, :amount, :applied, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insertCarry, carry); err != nil {
			return 0, fmt.Errorf("insert carry forward: %w", err)
		}

		if err := appendEntry(ctx, tx, &models.LedgerEntry{
			SchoolID:     schoolID,
			StudentID:    studentID,
			EntryType:    models.LedgerCarryForward,
			Amount:       -carry.Amount,
			BalanceAfter: student.Balance,
			CreditAfter:  0,
			SourceType:   models.LedgerSourceCarry,
			SourceID:     &carry.ID,
		}); err != nil {
			return 0, err
		}
		if err := storeBalances(ctx, tx, studentID, student.Balance, 0); err != nil {
			return 0, err
		}
		parked++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit park credits: %w", err)
	}
	return parked, nil
}

// ApplyCarryForwards posts every unapplied carry forward against the newly
// opened term. Runs after invoice generation so the parked amount clears the
// fresh charges first; any excess returns to credit. Returns how many rows
// were applied.
func (r *LedgerRepository) ApplyCarryForwards(ctx context.Context, schoolID, termID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin carry apply: %w", err)
	}
	defer tx.Rollback()

	var carries []models.CarryForward
	if err := tx.SelectContext(ctx, &carries, `SELECT * FROM carry_forwards WHERE school_id = $1 AND applied = FALSE ORDER BY student_id FOR UPDATE`, schoolID); err != nil {
		return 0, fmt.Errorf("select carry forwards: %w", err)
	}

	applied := 0
	for _, carry := range carries {
		student, err := lockStudent(ctx, tx, schoolID, carry.StudentID)
		if err != nil {
			return 0, err
		}

		payment := &models.Payment{
			SchoolID:  schoolID,
			StudentID: carry.StudentID,
			TermID:    termID,
			Amount:    carry.Amount,
			Method:    models.MethodCredit,
			Narrative: "Carry forward from previous term",
		}
		if err := insertPayment(ctx, tx, payment); err != nil {
			return 0, err
		}

		toBalance := carry.Amount
		if toBalance > student.Balance {
			toBalance = student.Balance
		}
		balance := student.Balance - toBalance
		credit := student.Credit + (carry.Amount - toBalance)

		if err := appendEntry(ctx, tx, &models.LedgerEntry{
			SchoolID:     schoolID,
			StudentID:    carry.StudentID,
			EntryType:    models.LedgerCarryForward,
			Amount:       carry.Amount,
			BalanceAfter: balance,
			CreditAfter:  credit,
			SourceType:   models.LedgerSourceCarry,
			SourceID:     &carry.ID,
		}); err != nil {
			return 0, err
		}
		if err := storeBalances(ctx, tx, carry.StudentID, balance, credit); err != nil {
			return 0, err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE carry_forwards SET applied = TRUE, applied_payment_id = $2 WHERE id = $1`, carry.ID, payment.ID); err != nil {
			return 0, fmt.Errorf("flag carry forward: %w", err)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit carry apply: %w", err)
	}
	return applied, nil
}

// Recompute rebuilds a student's stored balance and credit from the last
// ledger entry. Used by the audit endpoint after manual interventions.
func (r *LedgerRepository) Recompute(ctx context.Context, schoolID, studentID string) (*models.Student, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recompute: %w", err)
	}
	defer tx.Rollback()

	student, err := lockStudent(ctx, tx, schoolID, studentID)
	if err != nil {
		return nil, err
	}

	var last models.LedgerEntry
	err = tx.GetContext(ctx, &last, `SELECT * FROM ledger_entries WHERE student_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, studentID)
	switch {
	case err == sql.ErrNoRows:
		student.Balance, student.Credit = 0, 0
	case err != nil:
		return nil, fmt.Errorf("load last entry: %w", err)
	default:
		student.Balance = last.BalanceAfter
		student.Credit = last.CreditAfter
	}

	if err := storeBalances(ctx, tx, studentID, student.Balance, student.Credit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recompute: %w", err)
	}
	return student, nil
}

// ListEntries returns a student's ledger, oldest first, for statements.
func (r *LedgerRepository) ListEntries(ctx context.Context, schoolID, studentID string, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT * FROM ledger_entries WHERE school_id = $1 AND student_id = $2 ORDER BY created_at, id LIMIT $3 OFFSET $4`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, studentID, limit, offset); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

func insertCreditOperation(ctx context.Context, tx *sqlx.Tx, op *models.CreditOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	op.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO credit_operations (id, school_id, student_id, operation, amount, performed_by, note, created_at)
		VALUES (:id, :school_id, :student_id, :operation, :amount, :performed_by, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, op); err != nil {
		return fmt.Errorf("insert credit operation: %w", err)
	}
	return nil
}
