package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shulepay-api/internal/models"
)

func lockedStudentRows(balance, credit float64) *sqlmock.Rows {
	return studentRows().
		AddRow("st1", "sc1", "ADM001", "Wanjiku Kamau", "Form 1", "Grace Kamau", "+254700000001", "grace@example.com", balance, credit, true, time.Now(), time.Now())
}

func TestPostPaymentFullyApplied(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(1000, 0))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 600.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.PostPayment(context.Background(), &models.Payment{
		SchoolID:  "sc1",
		StudentID: "st1",
		TermID:    "t1",
		Amount:    400,
		Method:    models.MethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, 400.0, outcome.AppliedToBalance)
	assert.Equal(t, 0.0, outcome.AddedToCredit)
	assert.Equal(t, 600.0, outcome.NewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostPaymentOverpaymentBecomesCredit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(300, 0))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	// Two ledger lines: the applied portion, then the credit remainder.
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 0.0, 200.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.PostPayment(context.Background(), &models.Payment{
		SchoolID:  "sc1",
		StudentID: "st1",
		TermID:    "t1",
		Amount:    500,
		Method:    models.MethodMpesa,
	})
	require.NoError(t, err)
	assert.Equal(t, 300.0, outcome.AppliedToBalance)
	assert.Equal(t, 200.0, outcome.AddedToCredit)
	assert.Equal(t, 0.0, outcome.NewBalance)
	assert.Equal(t, 200.0, outcome.NewCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCreditInsufficient(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(1000, 50))
	mock.ExpectRollback()

	_, err := repo.ApplyCredit(context.Background(), &models.CreditOperation{
		SchoolID:  "sc1",
		StudentID: "st1",
		Amount:    100,
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCreditClampedToBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(80, 200))
	mock.ExpectExec("INSERT INTO credit_operations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 0.0, 120.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyCredit(context.Background(), &models.CreditOperation{
		SchoolID:  "sc1",
		StudentID: "st1",
		Amount:    150,
	})
	require.NoError(t, err)
	assert.Equal(t, 80.0, outcome.AppliedToBalance)
	assert.Equal(t, 0.0, outcome.NewBalance)
	assert.Equal(t, 120.0, outcome.NewCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCreditWithNothingOutstandingWritesNothing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	// Balance already cleared: the operation succeeds without touching the
	// ledger or credit_operations, whose CHECK rejects zero amounts.
	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(0, 200))
	mock.ExpectRollback()

	outcome, err := repo.ApplyCredit(context.Background(), &models.CreditOperation{
		SchoolID:  "sc1",
		StudentID: "st1",
		Amount:    150,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, outcome.AppliedToBalance)
	assert.Equal(t, 0.0, outcome.NewBalance)
	assert.Equal(t, 200.0, outcome.NewCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func lockedRowsFor(id string, balance, credit float64) *sqlmock.Rows {
	return studentRows().
		AddRow(id, "sc1", "ADM-"+id, "Student "+id, "Form 1", "Grace Kamau", "+254700000001", "grace@example.com", balance, credit, true, time.Now(), time.Now())
}

func TestTransferCreditSplitsAcrossBalanceAndCredit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	// Rows lock in ID order: st1 before st2.
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedRowsFor("st1", 0, 300))
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st2", "sc1").
		WillReturnRows(lockedRowsFor("st2", 150, 0))
	mock.ExpectExec("INSERT INTO credit_transfers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_operations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_operations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 0.0, 100.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	// 150 clears st2's balance, the remaining 50 becomes credit.
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st2", 0.0, 50.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	transfer, err := repo.TransferCredit(context.Background(), &models.CreditTransfer{
		SchoolID:      "sc1",
		FromStudentID: "st1",
		ToStudentID:   "st2",
		Amount:        200,
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, transfer.AppliedToBalance)
	assert.Equal(t, 50.0, transfer.AddedToCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParkCreditsMovesCreditIntoCarryForwards(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students").
		WithArgs("sc1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("st1"))
	mock.ExpectQuery("FROM students WHERE id =").
		WithArgs("st1").
		WillReturnRows(lockedStudentRows(0, 250))
	mock.ExpectExec("INSERT INTO carry_forwards").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 0.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	parked, err := repo.ParkCredits(context.Background(), "sc1", "t0")
	require.NoError(t, err)
	assert.Equal(t, 1, parked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCarryForwardsClearsChargesFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	carryRows := sqlmock.NewRows([]string{"id", "school_id", "student_id", "from_term_id", "amount", "applied", "applied_payment_id", "created_at"}).
		AddRow("cf1", "sc1", "st1", "t0", 250.0, false, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM carry_forwards WHERE").
		WithArgs("sc1").
		WillReturnRows(carryRows)
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(400, 0))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	// The parked 250 clears the fresh 400 charge down to 150.
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 150.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE carry_forwards SET applied = TRUE").
		WithArgs("cf1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyCarryForwards(context.Background(), "sc1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInvoiceChargeWritesInvoiceAndDeltaTogether(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(500, 0))
	mock.ExpectQuery("SELECT total FROM invoices").
		WithArgs("st1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(400.0))
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM invoices").
		WithArgs("st1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inv1"))
	mock.ExpectExec("DELETE FROM invoice_items").
		WithArgs("inv1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoice_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	// Invoice went from 400 to 600; only the 200 delta hits the balance.
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 700.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.SaveInvoiceCharge(context.Background(), &models.Invoice{
		SchoolID:  "sc1",
		StudentID: "st1",
		TermID:    "t1",
		Subtotal:  600,
		Total:     600,
		Items: []models.InvoiceItem{
			{ComponentID: "c1", Description: "Tuition", Amount: 600},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 200.0, entry.Amount)
	assert.Equal(t, 700.0, entry.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReversePaymentAlreadyReversed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	reversedAt := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "student_id", "term_id", "amount", "method", "reference", "narrative", "reversed", "reversed_at", "recorded_by", "created_at"}).
		AddRow("p1", "sc1", "st1", "t1", 400.0, "CASH", nil, "", true, reversedAt, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM payments WHERE id = .+ FOR UPDATE").
		WithArgs("p1", "sc1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.ReversePayment(context.Background(), "sc1", "p1")
	assert.ErrorIs(t, err, ErrAlreadyReversed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReversePaymentClawsBackSpentCredit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	paymentRows := sqlmock.NewRows([]string{"id", "school_id", "student_id", "term_id", "amount", "method", "reference", "narrative", "reversed", "reversed_at", "recorded_by", "created_at"}).
		AddRow("p1", "sc1", "st1", "t1", 500.0, "BANK", nil, "", false, nil, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM payments WHERE id = .+ FOR UPDATE").
		WithArgs("p1", "sc1").
		WillReturnRows(paymentRows)
	// Credit from the overpayment was already spent: only 50 remains.
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(0, 50))
	mock.ExpectQuery("SELECT entry_type, amount FROM ledger_entries").
		WithArgs(models.LedgerSourcePayment, "p1").
		WillReturnRows(sqlmock.NewRows([]string{"entry_type", "amount"}).
			AddRow("PAYMENT_APPLIED", 300.0).
			AddRow("CREDIT_ADDED", 200.0))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	// 300 re-charged plus the 150 of credit that can no longer be clawed back.
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 450.0, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payments SET reversed = TRUE").
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := repo.ReversePayment(context.Background(), "sc1", "p1")
	require.NoError(t, err)
	assert.True(t, payment.Reversed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeFromLastEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM students WHERE id = .+ FOR UPDATE").
		WithArgs("st1", "sc1").
		WillReturnRows(lockedStudentRows(999, 999))
	mock.ExpectQuery("FROM ledger_entries WHERE student_id = .+ ORDER BY created_at DESC").
		WithArgs("st1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "student_id", "entry_type", "amount", "balance_after", "credit_after", "source_type", "source_id", "created_at"}).
			AddRow("l1", "sc1", "st1", "PAYMENT_APPLIED", 400.0, 600.0, 25.0, "PAYMENT", "p1", time.Now()))
	mock.ExpectExec("UPDATE students SET balance").
		WithArgs("st1", 600.0, 25.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	student, err := repo.Recompute(context.Background(), "sc1", "st1")
	require.NoError(t, err)
	assert.Equal(t, 600.0, student.Balance)
	assert.Equal(t, 25.0, student.Credit)
	assert.NoError(t, mock.ExpectationsWereMet())
}
