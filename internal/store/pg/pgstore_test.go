package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"librario.org/internal/circ"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewWithDB(db, circ.DefaultPolicy(), func() time.Time { return testNow })
	return store, mock
}

func TestCreateLoanReservesCopyAndCommits(t *testing.T) {
	store, mock := newMockStore(t)
	today := circ.DateOf(testNow)

	mock.ExpectBegin()
	mock.ExpectQuery("select active from users").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery("select count\\(\\*\\) from loans").
		WithArgs("u1", today).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("select count\\(\\*\\) from loans").
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("update books set available_copies = available_copies - 1").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow("Dune"))
	mock.ExpectExec("insert into loans").
		WithArgs(sqlmock.AnyArg(), "b1", "u1", testNow, today.AddDate(0, 0, 14)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into notifications").
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loan, err := store.CreateLoan(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.Equal(t, circ.LoanBorrowed, loan.Status)
	require.Equal(t, today.AddDate(0, 0, 14), loan.DueDate)
	require.False(t, loan.Reissued)

	require.NoError(t, mock.ExpectationsWereMet())
}

// When the conditional reserve affects zero rows the transaction rolls back
// with no loan row written.
func TestCreateLoanOutOfStockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	today := circ.DateOf(testNow)

	mock.ExpectBegin()
	mock.ExpectQuery("select active from users").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery("select count\\(\\*\\) from loans").
		WithArgs("u1", today).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("select count\\(\\*\\) from loans").
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("update books set available_copies = available_copies - 1").
		WithArgs("b1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select 1 from books").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.CreateLoan(context.Background(), "u1", "b1")
	require.ErrorIs(t, err, circ.ErrOutOfStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLoanOverdueBlock(t *testing.T) {
	store, mock := newMockStore(t)
	today := circ.DateOf(testNow)

	mock.ExpectBegin()
	mock.ExpectQuery("select active from users").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery("select count\\(\\*\\) from loans").
		WithArgs("u1", today).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.CreateLoan(context.Background(), "u1", "b1")
	require.ErrorIs(t, err, circ.ErrOverdueBlock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanLateAssessesFine(t *testing.T) {
	store, mock := newMockStore(t)
	due := circ.DateOf(testNow).AddDate(0, 0, -5) // five days late

	mock.ExpectBegin()
	mock.ExpectQuery("select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued").
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "book_id", "user_id", "borrow_date", "due_date", "return_date", "status", "reissued"}).
			AddRow("l1", "b1", "u1", due.AddDate(0, 0, -14), due, nil, "BORROWED", false))
	mock.ExpectExec("update loans set status='RETURNED'").
		WithArgs("l1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("update books set available_copies = available_copies \\+ 1").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"available_copies", "total_copies", "title"}).AddRow(2, 3, "Dune"))
	mock.ExpectExec("insert into fines").
		WithArgs(sqlmock.AnyArg(), "l1", int64(5)*circ.DefaultPolicy().FinePerDayMinor, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into notifications").
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loan, fine, err := store.ReturnLoan(context.Background(), "l1")
	require.NoError(t, err)
	require.Equal(t, circ.LoanReturned, loan.Status)
	require.NotNil(t, fine)
	require.Equal(t, int64(5)*circ.DefaultPolicy().FinePerDayMinor, fine.Amount)
	require.Equal(t, circ.FinePending, fine.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

// A release that would push available past total is an invariant violation
// and aborts with rollback instead of committing a corrupt count.
func TestReturnLoanInvariantViolation(t *testing.T) {
	store, mock := newMockStore(t)
	due := circ.DateOf(testNow).AddDate(0, 0, 7)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued").
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "book_id", "user_id", "borrow_date", "due_date", "return_date", "status", "reissued"}).
			AddRow("l1", "b1", "u1", testNow, due, nil, "BORROWED", false))
	mock.ExpectExec("update loans set status='RETURNED'").
		WithArgs("l1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("update books set available_copies = available_copies \\+ 1").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"available_copies", "total_copies", "title"}).AddRow(4, 3, "Dune"))
	mock.ExpectRollback()

	_, _, err := store.ReturnLoan(context.Background(), "l1")
	require.ErrorIs(t, err, circ.ErrInvariantViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReissueLoanAlreadyReissued(t *testing.T) {
	store, mock := newMockStore(t)
	due := circ.DateOf(testNow).AddDate(0, 0, 7)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued").
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "book_id", "user_id", "borrow_date", "due_date", "return_date", "status", "reissued"}).
			AddRow("l1", "b1", "u1", testNow, due, nil, "BORROWED", true))
	mock.ExpectRollback()

	_, err := store.ReissueLoan(context.Background(), "l1")
	require.ErrorIs(t, err, circ.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayFineAlreadyProcessed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, loan_id, amount, status, created_at, paid_at").
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "loan_id", "amount", "status", "created_at", "paid_at"}).
			AddRow("f1", "l1", int64(250), "PAID", testNow.AddDate(0, 0, -1), testNow))
	mock.ExpectRollback()

	_, err := store.PayFine(context.Background(), "f1")
	require.ErrorIs(t, err, circ.ErrAlreadyProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayFineTransitions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, loan_id, amount, status, created_at, paid_at").
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "loan_id", "amount", "status", "created_at", "paid_at"}).
			AddRow("f1", "l1", int64(250), "PENDING", testNow.AddDate(0, 0, -1), nil))
	mock.ExpectExec("update fines set status").
		WithArgs("f1", string(circ.FinePaid), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	fine, err := store.PayFine(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, circ.FinePaid, fine.Status)
	require.NotNil(t, fine.PaidAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
