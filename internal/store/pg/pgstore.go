// Package pg implements the circulation ledger on PostgreSQL. Every
// operation runs in a single transaction; copy counts are mutated only by
// conditional single-statement updates whose affected-row count decides the
// outcome.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"librario.org/internal/circ"
	"librario.org/internal/ids"
)

func newID() string { return ids.New() }

const (
	openAttempts = 3
	openBackoff  = time.Second

	pgErrUniqueViolation = "23505"
)

type Store struct {
	db     *sql.DB
	policy circ.Policy
	now    circ.Clock
}

var _ circ.Service = (*Store)(nil)

// Open connects to PostgreSQL with bounded ping retries before giving up.
// Policy rejections are never retried; only connectivity is.
func Open(dsn string, policy circ.Policy, clock circ.Clock) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	var pingErr error
	for i := 0; i < openAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(openBackoff)
	}
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping after %d attempts: %w", openAttempts,
			errors.Join(circ.ErrPersistenceFailure, pingErr))
	}

	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, policy: policy, now: clock}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB, policy circ.Policy, clock circ.Clock) *Store {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, policy: policy, now: clock}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func pwrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(circ.ErrPersistenceFailure, err))
}

// --- Catalog ---

func (s *Store) AddBook(ctx context.Context, book circ.Book) (circ.Book, error) {
	if strings.TrimSpace(book.Title) == "" {
		return circ.Book{}, fmt.Errorf("%w: title is required", circ.ErrInvalidInput)
	}
	if book.TotalCopies < 1 {
		return circ.Book{}, fmt.Errorf("%w: total_copies must be >= 1", circ.ErrInvalidInput)
	}
	book.ID = newID()
	book.AvailableCopies = book.TotalCopies
	book.Active = true
	book.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		insert into books(id, isbn, title, author, total_copies, available_copies, active, created_at)
		values ($1,$2,$3,$4,$5,$6,true,$7)
	`, book.ID, book.ISBN, book.Title, book.Author, book.TotalCopies, book.AvailableCopies, book.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return circ.Book{}, circ.ErrDuplicateISBN
		}
		return circ.Book{}, pwrap("insert book", err)
	}
	return book, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func (s *Store) UpdateBook(ctx context.Context, id string, upd circ.BookUpdate) (circ.Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return circ.Book{}, pwrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var b circ.Book
	err = tx.QueryRowContext(ctx, `
		select id, isbn, title, author, total_copies, available_copies, active, created_at
		from books where id=$1 for update
	`, id).Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Book{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Book{}, pwrap("select book", err)
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
		update books set isbn=$2, title=$3, author=$4, total_copies=$5, available_copies=$6
		where id=$1
	`, b.ID, b.ISBN, b.Title, b.Author, b.TotalCopies, b.AvailableCopies); err != nil {
		return circ.Book{}, pwrap("update book", err)
	}
	if err := tx.Commit(); err != nil {
		return circ.Book{}, pwrap("commit", err)
	}
	return b, nil
}

func (s *Store) DeactivateBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update books set active=false where id=$1`, id)
	if err != nil {
		return pwrap("deactivate book", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return circ.ErrNotFound
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (circ.Book, error) {
	var b circ.Book
	err := s.db.QueryRowContext(ctx, `
		select id, isbn, title, author, total_copies, available_copies, active, created_at
		from books where id=$1
	`, id).Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Book{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Book{}, pwrap("select book", err)
	}
	return b, nil
}

func (s *Store) ListBooks(ctx context.Context, filter circ.BookFilter) ([]circ.Book, error) {
	query := `
		select id, isbn, title, author, total_copies, available_copies, active, created_at
		from books where 1=1`
	var args []any
	if !filter.IncludeHidden {
		query += ` and active`
	}
	if filter.OnlyAvailable {
		query += ` and available_copies > 0`
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		query += fmt.Sprintf(` and (lower(title) like $%d or lower(author) like $%d or lower(isbn) like $%d)`,
			len(args), len(args), len(args))
	}
	query += ` order by title asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list books", err)
	}
	defer rows.Close()

	var res []circ.Book
	for rows.Next() {
		var b circ.Book
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.AvailableCopies, &b.Active, &b.CreatedAt); err != nil {
			return nil, pwrap("scan book", err)
		}
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
		select id, available_copies, total_copies from books where id=$1
	`, bookID).Scan(&av.BookID, &av.AvailableCopies, &av.TotalCopies)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Availability{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Availability{}, pwrap("select availability", err)
	}
	return av, nil
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
		insert into users(id, name, role, active) values ($1,$2,$3,$4)
		on conflict (id) do update set name=excluded.name, role=excluded.role, active=excluded.active
	`, user.ID, user.Name, user.Role, user.Active)
	if err != nil {
		return pwrap("upsert user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (circ.User, error) {
	var u circ.User
	err := s.db.QueryRowContext(ctx, `select id, name, role, active from users where id=$1`, id).
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
		return circ.Loan{}, pwrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `select active from users where id=$1`, userID).Scan(&active)
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
		select count(*) from loans
		where user_id=$1 and status='BORROWED' and due_date < $2
	`, userID, today).Scan(&overdue); err != nil {
		return circ.Loan{}, pwrap("count overdue", err)
	}
	if overdue > 0 {
		return circ.Loan{}, circ.ErrOverdueBlock
	}

	var duplicates int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from loans
		where user_id=$1 and book_id=$2 and status='BORROWED'
	`, userID, bookID).Scan(&duplicates); err != nil {
		return circ.Loan{}, pwrap("count duplicates", err)
	}
	if duplicates > 0 {
		return circ.Loan{}, circ.ErrDuplicateLoan
	}

	// Reserve one copy. The affected-row count is the synchronization point:
	// under concurrency exactly one caller wins the last copy.
	var title string
	err = tx.QueryRowContext(ctx, `
		update books set available_copies = available_copies - 1
		where id=$1 and active and available_copies > 0
		returning title
	`, bookID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		var exists int
		if err := tx.QueryRowContext(ctx, `select 1 from books where id=$1`, bookID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return circ.Loan{}, circ.ErrNotFound
		} else if err != nil {
			return circ.Loan{}, pwrap("select book", err)
		}
		return circ.Loan{}, circ.ErrOutOfStock
	}
	if err != nil {
		return circ.Loan{}, pwrap("reserve copy", err)
	}

	loan := circ.Loan{
		ID:         newID(),
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: now,
		DueDate:    today.AddDate(0, 0, s.policy.LoanPeriodDays),
		Status:     circ.LoanBorrowed,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into loans(id, book_id, user_id, borrow_date, due_date, status, reissued)
		values ($1,$2,$3,$4,$5,'BORROWED',false)
	`, loan.ID, loan.BookID, loan.UserID, loan.BorrowDate, loan.DueDate); err != nil {
		return circ.Loan{}, pwrap("insert loan", err)
	}

	msg := fmt.Sprintf("Book '%s' has been issued to you. Due date: %s", title, loan.DueDate.Format("2006-01-02"))
	if err := s.insertNotification(ctx, tx, userID, msg, now); err != nil {
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
		return circ.Loan{}, pwrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	loan, err := selectLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return circ.Loan{}, err
	}
	if loan.Status != circ.LoanBorrowed || circ.IsOverdue(loan, now) || loan.Reissued {
		return circ.Loan{}, circ.ErrInvalidTransition
	}

	loan.DueDate = loan.DueDate.AddDate(0, 0, s.policy.ReissueExtensionDays)
	loan.Reissued = true
	if _, err := tx.ExecContext(ctx, `
		update loans set due_date=$2, reissued=true where id=$1
	`, loan.ID, loan.DueDate); err != nil {
		return circ.Loan{}, pwrap("update loan", err)
	}

	var title string
	if err := tx.QueryRowContext(ctx, `select title from books where id=$1`, loan.BookID).Scan(&title); err != nil {
		return circ.Loan{}, pwrap("select book title", err)
	}
	msg := fmt.Sprintf("Book '%s' has been reissued. New due date: %s", title, loan.DueDate.Format("2006-01-02"))
	if err := s.insertNotification(ctx, tx, loan.UserID, msg, now); err != nil {
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
		return circ.Loan{}, nil, pwrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	loan, err := selectLoanForUpdate(ctx, tx, loanID)
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
		update loans set status='RETURNED', return_date=$2 where id=$1
	`, loan.ID, ret); err != nil {
		return circ.Loan{}, nil, pwrap("close loan", err)
	}

	// Release the copy and verify the invariant in the same statement.
	var avail, total int
	var title string
	err = tx.QueryRowContext(ctx, `
		update books set available_copies = available_copies + 1
		where id=$1
		returning available_copies, total_copies, title
	`, loan.BookID).Scan(&avail, &total, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Loan{}, nil, fmt.Errorf("%w: loan %s references missing book %s", circ.ErrInvariantViolation, loan.ID, loan.BookID)
	}
	if err != nil {
		return circ.Loan{}, nil, pwrap("release copy", err)
	}
	if avail > total {
		// Fatal: some other path incremented without a matching reserve.
		return circ.Loan{}, nil, fmt.Errorf("%w: release would exceed total copies for book %s", circ.ErrInvariantViolation, loan.BookID)
	}

	var fine *circ.Fine
	if amount := circ.AssessFine(loan, now, s.policy.FinePerDayMinor); amount > 0 {
		f := circ.Fine{
			ID:        newID(),
			LoanID:    loan.ID,
			Amount:    amount,
			Status:    circ.FinePending,
			CreatedAt: now,
		}
		if _, err := tx.ExecContext(ctx, `
			insert into fines(id, loan_id, amount, status, created_at)
			values ($1,$2,$3,'PENDING',$4)
		`, f.ID, f.LoanID, f.Amount, f.CreatedAt); err != nil {
			return circ.Loan{}, nil, pwrap("insert fine", err)
		}
		msg := fmt.Sprintf("A fine of $%d.%02d has been assessed for the late return of '%s'", amount/100, amount%100, title)
		if err := s.insertNotification(ctx, tx, loan.UserID, msg, now); err != nil {
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
		select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		from loans where status='BORROWED'`
	var args []any
	if userID != "" {
		args = append(args, userID)
		query += ` and user_id=$1`
	}
	query += ` order by due_date asc`
	return s.queryLoans(ctx, query, args, true)
}

func (s *Store) ListOverdueLoans(ctx context.Context) ([]circ.Loan, error) {
	today := circ.DateOf(s.now())
	query := `
		select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		from loans where status='BORROWED' and due_date < $1
		order by due_date asc`
	return s.queryLoans(ctx, query, []any{today}, true)
}

func (s *Store) queryLoans(ctx context.Context, query string, args []any, classify bool) ([]circ.Loan, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list loans", err)
	}
	defer rows.Close()

	var res []circ.Loan
	for rows.Next() {
		var l circ.Loan
		var ret sql.NullTime
		if err := rows.Scan(&l.ID, &l.BookID, &l.UserID, &l.BorrowDate, &l.DueDate, &ret, &l.Status, &l.Reissued); err != nil {
			return nil, pwrap("scan loan", err)
		}
		if ret.Valid {
			t := ret.Time
			l.ReturnDate = &t
		}
		if classify {
			l.Status = circ.ClassifyLoan(l, now)
		}
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate loans", err)
	}
	return res, nil
}

func selectLoanForUpdate(ctx context.Context, tx *sql.Tx, loanID string) (circ.Loan, error) {
	var l circ.Loan
	var ret sql.NullTime
	err := tx.QueryRowContext(ctx, `
		select id, book_id, user_id, borrow_date, due_date, return_date, status, reissued
		from loans where id=$1 for update
	`, loanID).Scan(&l.ID, &l.BookID, &l.UserID, &l.BorrowDate, &l.DueDate, &ret, &l.Status, &l.Reissued)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Loan{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Loan{}, pwrap("select loan", err)
	}
	if ret.Valid {
		t := ret.Time
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
		return circ.Fine{}, pwrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var f circ.Fine
	var paidAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		select id, loan_id, amount, status, created_at, paid_at
		from fines where id=$1 for update
	`, fineID).Scan(&f.ID, &f.LoanID, &f.Amount, &f.Status, &f.CreatedAt, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return circ.Fine{}, circ.ErrNotFound
	}
	if err != nil {
		return circ.Fine{}, pwrap("select fine", err)
	}
	if f.Status != circ.FinePending {
		return circ.Fine{}, circ.ErrAlreadyProcessed
	}

	f.Status = to
	if to == circ.FinePaid {
		f.PaidAt = &now
		if _, err := tx.ExecContext(ctx, `update fines set status=$2, paid_at=$3 where id=$1`, f.ID, to, now); err != nil {
			return circ.Fine{}, pwrap("settle fine", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `update fines set status=$2 where id=$1`, f.ID, to); err != nil {
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
		select f.id, f.loan_id, f.amount, f.status, f.created_at, f.paid_at
		from fines f`
	var args []any
	if userID != "" {
		args = append(args, userID)
		query += ` join loans l on l.id = f.loan_id where f.status='PENDING' and l.user_id=$1`
	} else {
		query += ` where f.status='PENDING'`
	}
	query += ` order by f.created_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list fines", err)
	}
	defer rows.Close()

	var res []circ.Fine
	for rows.Next() {
		var f circ.Fine
		var paidAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.LoanID, &f.Amount, &f.Status, &f.CreatedAt, &paidAt); err != nil {
			return nil, pwrap("scan fine", err)
		}
		if paidAt.Valid {
			t := paidAt.Time
			f.PaidAt = &t
		}
		res = append(res, f)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate fines", err)
	}
	return res, nil
}

// --- Notifications ---

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]circ.Notification, error) {
	query := `select id, user_id, message, created_at, read from notifications`
	var args []any
	if userID != "" {
		args = append(args, userID)
		query += ` where user_id=$1`
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pwrap("list notifications", err)
	}
	defer rows.Close()

	var res []circ.Notification
	for rows.Next() {
		var n circ.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.CreatedAt, &n.Read); err != nil {
			return nil, pwrap("scan notification", err)
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, pwrap("iterate notifications", err)
	}
	return res, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update notifications set read=true where id=$1`, id)
	if err != nil {
		return pwrap("mark notification read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return circ.ErrNotFound
	}
	return nil
}

func (s *Store) insertNotification(ctx context.Context, tx *sql.Tx, userID, message string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		insert into notifications(id, user_id, message, created_at, read)
		values ($1,$2,$3,$4,false)
	`, newID(), userID, message, now); err != nil {
		return pwrap("insert notification", err)
	}
	return nil
}
