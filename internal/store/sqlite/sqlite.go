// Package sqlite provides a zero-infrastructure durable implementation of
// the circulation ledger using the pure Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite"

	"librario.org/internal/circ"
	"librario.org/internal/ids"
)

type Store struct {
	db     *sql.DB
	policy circ.Policy
	now    circ.Clock
}

var _ circ.Service = (*Store)(nil)

// Open creates the parent directory, opens the database and runs migrations.
func Open(dbPath string, policy circ.Policy, clock circ.Clock) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, policy: policy, now: clock}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func pwrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(circ.ErrPersistenceFailure, err))
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }

// --- Catalog ---

func (s *Store) AddBook(ctx context.Context, book circ.Book) (circ.Book, error) {
	if strings.TrimSpace(book.Title) == "" {
		return circ.Book{}, fmt.Errorf("%w: title is required", circ.ErrInvalidInput)
	}
	if book.TotalCopies < 1 {
		return circ.Book{}, fmt.Errorf("%w: total_copies must be >= 1", circ.ErrInvalidInput)
	}
	book.ID = ids.New()
	book.AvailableCopies = book.TotalCopies
	book.Active = true
	book.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, isbn, title, author, total_copies, available_copies, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`, book.ID, book.ISBN, book.Title, book.Author, book.TotalCopies, book.AvailableCopies, unix(book.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return circ.Book{}, circ.ErrDuplicateISBN
		}
		return circ.Book{}, pwrap("insert book", err)
	}
	return book, nil
}

// SQLITE_CONSTRAINT_UNIQUE extended result code.
const sqliteConstraintUnique = 2067

func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	return errors.As(err, &serr) && serr.Code() == sqliteConstraintUnique
}

func (s *Store) UpdateBook(ctx context.Context, id string, upd circ.BookUpdate) (circ.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Book{}, pwrap("begin transaction", err)
	}
	defer tx.Rollback()

	b, err := scanBook(tx.QueryRowContext(ctx, `
		SELECT id, isbn, title, author, total_copies, available_copies, active, created_at
		FROM books WHERE id = ?
	`, id))
	if err != nil {
		return circ.Book{}, err
	}

	if upd.ISBN != nil {
		b.ISBN = *upd.ISBN
	}
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.TotalCopies != nil {
		newTotal := *upd.TotalCopies
		if newTotal < 1 {
			return circ.Book{}, fmt.Errorf("%w: total_copies must be >= 1", circ.ErrInvalidInput)
		}
		newAvail := b.AvailableCopies + (newTotal - b.TotalCopies)
		if newAvail < 0 {
			return circ.Book{}, fmt.Errorf("%w: %d copies are on loan", circ.ErrInvalidInput, b.TotalCopies-b.AvailableCopies)
		}
		b.TotalCopies = newTotal
		b.AvailableCopies = newAvail
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE books SET isbn = ?, title = ?, author = ?, total_copies = ?, available_copies = ?
		WHERE id = ?
	`, b.ISBN, b.Title, b.Author, b.TotalCopies, b.AvailableCopies, b.ID); err != nil {
		return circ.Book{}, pwrap("update book", err)
	}
	if err := tx.Commit(); err != nil {
		return circ.Book{}, pwrap("commit", err)
	}
	return b, nil
}

func (s *Store) DeactivateBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return pwrap("deactivate book", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return circ.ErrNotFound
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (circ.Book, error) {
	return scanBook(s.db.QueryRowContext(ctx, `
		SELECT id, isbn, title, author, total_copies, available_copies, active, created_at
		FROM books WHERE id = ?
	`, id))
}

func (s *Store) ListBooks(ctx context.Context, filter circ.BookFilter) ([]circ.Book, error) {
	query := `
		SELECT id, isbn, title, author, total_copies, available_copies, active, created_at
		FROM books WHERE 1=1`
	var args []any
	if !filter.IncludeHidden {
		query += ` AND active = 1`
	}
	if filter.OnlyAvailable {
		query += ` AND available_copies > 0`
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += ` AND (lower(title) LIKE ? OR lower(author) LIKE ? OR lower(isbn) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY title ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list books", err)
	}
	defer rows.Close()

	var res []circ.Book
	for rows.Next() {
		var b circ.Book
		var created int64
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &created); err != nil {
			return nil, pwrap("scan book", err)
		}
		b.CreatedAt = fromUnix(created)
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate books", err)
	}
	return res, nil
}

func (s *Store) InventoryCount(ctx context.Context, bookID string) (circ.Availability, error) {
	var av circ.Availability
	err := s.db.QueryRowContext(ctx, `
		SELECT id, available_copies, total_copies FROM books WHERE id = ?
	`, bookID).Scan(&av.BookID, &av.AvailableCopies, &av.TotalCopies)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Availability{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Availability{}, pwrap("select availability", err)
	}
	return av, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (circ.Book, error) {
	var b circ.Book
	var created int64
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Book{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Book{}, pwrap("scan book", err)
	}
	b.CreatedAt = fromUnix(created)
	return b, nil
}

// --- Users ---

func (s *Store) PutUser(ctx context.Context, user circ.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("%w: user id is required", circ.ErrInvalidInput)
	}
	switch user.Role {
	case circ.RoleAdmin, circ.RoleLibrarian, circ.RoleStudent:
	default:
		return fmt.Errorf("%w: unknown role %q", circ.ErrInvalidInput, user.Role)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, active) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role, active = excluded.active
	`, user.ID, user.Name, user.Role, user.Active)
	if err != nil {
		return pwrap("upsert user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (circ.User, error) {
	var u circ.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, role, active FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.User{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.User{}, pwrap("select user", err)
	}
	return u, nil
}

// --- Loans ---

func (s *Store) CreateLoan(ctx context.Context, userID, bookID string) (circ.Loan, error) {
	if userID == "" || bookID == "" {
		return circ.Loan{}, fmt.Errorf("%w: user id and book id are required", circ.ErrInvalidInput)
	}
	now := s.now()
	today := circ.DateOf(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Loan{}, pwrap("begin transaction", err)
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM users WHERE id = ?`, userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Loan{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Loan{}, pwrap("select user", err)
	}
	if !active {
		return circ.Loan{}, circ.ErrUserNotEligible
	}

	var overdue int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loans
		WHERE user_id = ? AND status = 'BORROWED' AND due_date < ?
	`, userID, unix(today)).Scan(&overdue); err != nil {
		return circ.Loan{}, pwrap("count overdue", err)
	}
	if overdue > 0 {
		return circ.Loan{}, circ.ErrOverdueBlock
	}

	var duplicates int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loans
		WHERE user_id = ? AND book_id = ? AND status = 'BORROWED'
	`, userID, bookID).Scan(&duplicates); err != nil {
		return circ.Loan{}, pwrap("count duplicates", err)
	}
	if duplicates > 0 {
		return circ.Loan{}, circ.ErrDuplicateLoan
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies - 1
		WHERE id = ? AND active = 1 AND available_copies > 0
	`, bookID)
	if err != nil {
		return circ.Loan{}, pwrap("reserve copy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, bookID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return circ.Loan{}, circ.ErrNotFound
		}
		if err != nil {
			return circ.Loan{}, pwrap("select book", err)
		}
		return circ.Loan{}, circ.ErrOutOfStock
	}

	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM books WHERE id = ?`, bookID).Scan(&title); err != nil {
		return circ.Loan{}, pwrap("select book title", err)
	}

	loan := circ.Loan{
		ID:         ids.New(),
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: now,
		DueDate:    today.AddDate(0, 0, s.policy.LoanPeriodDays),
		Status:     circ.LoanBorrowed,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loans (id, book_id, user_id, borrow_date, due_date, status, reissued)
		VALUES (?, ?, ?, ?, ?, 'BORROWED', 0)
	`, loan.ID, loan.BookID, loan.UserID, unix(loan.BorrowDate), unix(loan.DueDate)); err != nil {
		return circ.Loan{}, pwrap("insert loan", err)
	}

	msg := fmt.Sprintf("Book '%s' has been issued to you. Due date: %s", title, loan.DueDate.Format("2006-01-02"))
	if err := insertNotification(ctx, tx, userID, msg, now); err != nil {
		return circ.Loan{}, err
	}

	if err := tx.Commit(); err != nil {
		return circ.Loan{}, pwrap("commit", err)
	}
	return loan, nil
}

func (s *Store) ReissueLoan(ctx context.Context, loanID string) (circ.Loan, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Loan{}, pwrap("begin transaction", err)
	}
	defer tx.Rollback()

	loan, err := selectLoan(ctx, tx, loanID)
	if err != nil {
		return circ.Loan{}, err
	}
	if loan.Status != circ.LoanBorrowed || circ.IsOverdue(loan, now) || loan.Reissued {
		return circ.Loan{}, circ.ErrInvalidTransition
	}

	loan.DueDate = loan.DueDate.AddDate(0, 0, s.policy.ReissueExtensionDays)
	loan.Reissued = true
	if _, err := tx.ExecContext(ctx, `
		UPDATE loans SET due_date = ?, reissued = 1 WHERE id = ?
	`, unix(loan.DueDate), loan.ID); err != nil {
		return circ.Loan{}, pwrap("update loan", err)
	}

	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM books WHERE id = ?`, loan.BookID).Scan(&title); err != nil {
		return circ.Loan{}, pwrap("select book title", err)
	}
	msg := fmt.Sprintf("Book '%s' has been reissued. New due date: %s", title, loan.DueDate.Format("2006-01-02"))
	if err := insertNotification(ctx, tx, loan.UserID, msg, now); err != nil {
		return circ.Loan{}, err
	}

	if err := tx.Commit(); err != nil {
		return circ.Loan{}, pwrap("commit", err)
	}
	return loan, nil
}

func (s *Store) ReturnLoan(ctx context.Context, loanID string) (circ.Loan, *circ.Fine, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Loan{}, nil, pwrap("begin transaction", err)
	}
	defer tx.Rollback()

	loan, err := selectLoan(ctx, tx, loanID)
	if err != nil {
		return circ.Loan{}, nil, err
	}
	if loan.Status != circ.LoanBorrowed {
		return circ.Loan{}, nil, circ.ErrInvalidTransition
	}

	ret := now
	loan.Status = circ.LoanReturned
	loan.ReturnDate = &ret
	if _, err := tx.ExecContext(ctx, `
		UPDATE loans SET status = 'RETURNED', return_date = ? WHERE id = ?
	`, unix(ret), loan.ID); err != nil {
		return circ.Loan{}, nil, pwrap("close loan", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies + 1 WHERE id = ?
	`, loan.BookID); err != nil {
		return circ.Loan{}, nil, pwrap("release copy", err)
	}
	var avail, total int
	var title string
	err = tx.QueryRowContext(ctx, `
		SELECT available_copies, total_copies, title FROM books WHERE id = ?
	`, loan.BookID).Scan(&avail, &total, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Loan{}, nil, fmt.Errorf("%w: loan %s references missing book %s", circ.ErrInvariantViolation, loan.ID, loan.BookID)
	}
	if err != nil {
		return circ.Loan{}, nil, pwrap("select book", err)
	}
	if avail > total {
		return circ.Loan{}, nil, fmt.Errorf("%w: release would exceed total copies for book %s", circ.ErrInvariantViolation, loan.BookID)
	}

	var fine *circ.Fine
	if amount := circ.AssessFine(loan, now, s.policy.FinePerDayMinor); amount > 0 {
		f := circ.Fine{
			ID:        ids.New(),
			LoanID:    loan.ID,
			Amount:    amount,
			Status:    circ.FinePending,
			CreatedAt: now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fines (id, loan_id, amount, status, created_at)
			VALUES (?, ?, ?, 'PENDING', ?)
		`, f.ID, f.LoanID, f.Amount, unix(f.CreatedAt)); err != nil {
			return circ.Loan{}, nil, pwrap("insert fine", err)
		}
		msg := fmt.Sprintf("A fine of $%d.%02d has been assessed for the late return of '%s'", amount/100, amount%100, title)
		if err := insertNotification(ctx, tx, loan.UserID, msg, now); err != nil {
			return circ.Loan{}, nil, err
		}
		fine = &f
	}

	if err := tx.Commit(); err != nil {
		return circ.Loan{}, nil, pwrap("commit", err)
	}
	return loan, fine, nil
}

func (s *Store) ListActiveLoans(ctx context.Context, userID string) ([]circ.Loan, error) {
	query := `
		SELECT id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		FROM loans WHERE status = 'BORROWED'`
	var args []any
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY due_date ASC`
	return s.queryLoans(ctx, query, args)
}

func (s *Store) ListOverdueLoans(ctx context.Context) ([]circ.Loan, error) {
	today := circ.DateOf(s.now())
	return s.queryLoans(ctx, `
		SELECT id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		FROM loans WHERE status = 'BORROWED' AND due_date < ?
		ORDER BY due_date ASC
	`, []any{unix(today)})
}

func (s *Store) queryLoans(ctx context.Context, query string, args []any) ([]circ.Loan, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list loans", err)
	}
	defer rows.Close()

	var res []circ.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loan.Status = circ.ClassifyLoan(loan, now)
		res = append(res, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate loans", err)
	}
	return res, nil
}

func selectLoan(ctx context.Context, tx *sql.Tx, loanID string) (circ.Loan, error) {
	loan, err := scanLoan(tx.QueryRowContext(ctx, `
		SELECT id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		FROM loans WHERE id = ?
	`, loanID))
	if err != nil {
		return circ.Loan{}, err
	}
	return loan, nil
}

func scanLoan(row rowScanner) (circ.Loan, error) {
	var l circ.Loan
	var borrow, due int64
	var ret sql.NullInt64
	err := row.Scan(&l.ID, &l.BookID, &l.UserID, &borrow, &due, &ret, &l.Status, &l.Reissued)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Loan{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Loan{}, pwrap("scan loan", err)
	}
	l.BorrowDate = fromUnix(borrow)
	l.DueDate = fromUnix(due)
	if ret.Valid {
		t := fromUnix(ret.Int64)
		l.ReturnDate = &t
	}
	return l, nil
}

// --- Fines ---

func (s *Store) PayFine(ctx context.Context, fineID string) (circ.Fine, error) {
	return s.settleFine(ctx, fineID, circ.FinePaid)
}

func (s *Store) WaiveFine(ctx context.Context, fineID string) (circ.Fine, error) {
	return s.settleFine(ctx, fineID, circ.FineWaived)
}

func (s *Store) settleFine(ctx context.Context, fineID string, to circ.FineStatus) (circ.Fine, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Fine{}, pwrap("begin transaction", err)
	}
	defer tx.Rollback()

	f, err := scanFine(tx.QueryRowContext(ctx, `
		SELECT id, loan_id, amount, status, created_at, paid_at FROM fines WHERE id = ?
	`, fineID))
	if err != nil {
		return circ.Fine{}, err
	}
	if f.Status != circ.FinePending {
		return circ.Fine{}, circ.ErrAlreadyProcessed
	}

	f.Status = to
	if to == circ.FinePaid {
		f.PaidAt = &now
		if _, err := tx.ExecContext(ctx, `UPDATE fines SET status = ?, paid_at = ? WHERE id = ?`, to, unix(now), f.ID); err != nil {
			return circ.Fine{}, pwrap("settle fine", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE fines SET status = ? WHERE id = ?`, to, f.ID); err != nil {
			return circ.Fine{}, pwrap("settle fine", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return circ.Fine{}, pwrap("commit", err)
	}
	return f, nil
}

func (s *Store) ListPendingFines(ctx context.Context, userID string) ([]circ.Fine, error) {
	query := `
		SELECT f.id, f.loan_id, f.amount, f.status, f.created_at, f.paid_at
		FROM fines f`
	var args []any
	if userID != "" {
		query += ` JOIN loans l ON l.id = f.loan_id WHERE f.status = 'PENDING' AND l.user_id = ?`
		args = append(args, userID)
	} else {
		query += ` WHERE f.status = 'PENDING'`
	}
	query += ` ORDER BY f.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list fines", err)
	}
	defer rows.Close()

	var res []circ.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate fines", err)
	}
	return res, nil
}

func scanFine(row rowScanner) (circ.Fine, error) {
	var f circ.Fine
	var created int64
	var paid sql.NullInt64
	err := row.Scan(&f.ID, &f.LoanID, &f.Amount, &f.Status, &created, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Fine{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Fine{}, pwrap("scan fine", err)
	}
	f.CreatedAt = fromUnix(created)
	if paid.Valid {
		t := fromUnix(paid.Int64)
		f.PaidAt = &t
	}
	return f, nil
}

// --- Notifications ---

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]circ.Notification, error) {
	query := `SELECT id, user_id, message, created_at, read FROM notifications`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list notifications", err)
	}
	defer rows.Close()

	var res []circ.Notification
	for rows.Next() {
		var n circ.Notification
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &created, &n.Read); err != nil {
			return nil, pwrap("scan notification", err)
		}
		n.CreatedAt = fromUnix(created)
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate notifications", err)
	}
	return res, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return pwrap("mark notification read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return circ.ErrNotFound
	}
	return nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, userID, message string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, message, created_at, read)
		VALUES (?, ?, ?, ?, 0)
	`, ids.New(), userID, message, unix(now)); err != nil {
		return pwrap("insert notification", err)
	}
	return nil
}
