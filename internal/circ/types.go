package circ

import (
	"errors"
	"time"
)

// Role classifies library users.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
	RoleStudent   Role = "STUDENT"
)

// LoanStatus is the persisted loan state. OVERDUE is derived at read time
// from the due date, never written to the store.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanReturned LoanStatus = "RETURNED"
)

// FineStatus transitions PENDING -> PAID or PENDING -> WAIVED, both terminal.
type FineStatus string

const (
	FinePending FineStatus = "PENDING"
	FinePaid    FineStatus = "PAID"
	FineWaived  FineStatus = "WAIVED"
)

// Book is a catalog entry with its copy counts. AvailableCopies is the only
// contended mutable field; it stays within [0, TotalCopies] at all times.
type Book struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// User is the read-side projection of an externally managed account.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

// Loan records one copy of one book held by one user between borrow and return.
type Loan struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     LoanStatus `json:"status"`
	Reissued   bool       `json:"reissued"`
}

// Fine is a monetary penalty, in minor units (cents), tied 1:1 to a loan.
type Fine struct {
	ID        string     `json:"id"`
	LoanID    string     `json:"loan_id"`
	Amount    int64      `json:"amount"` // minor units
	Status    FineStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// Notification is an append-only record of a circulation event for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Availability reports a book's copy counts.
type Availability struct {
	BookID          string `json:"book_id"`
	AvailableCopies int    `json:"available_copies"`
	TotalCopies     int    `json:"total_copies"`
}

// Policy holds the lending parameters. All durations are whole days.
type Policy struct {
	LoanPeriodDays       int
	ReissueExtensionDays int
	FinePerDayMinor      int64 // cents per day late
}

// DefaultPolicy mirrors the historical lending rules: a 14-day loan window,
// a single 7-day reissue, 50 cents per day late.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays:       14,
		ReissueExtensionDays: 7,
		FinePerDayMinor:      50,
	}
}

// Clock supplies "now". The core never reads the wall clock directly.
type Clock func() time.Time

var (
	ErrOutOfStock         = errors.New("circ: no copies available")
	ErrDuplicateLoan      = errors.New("circ: user already holds this book")
	ErrDuplicateISBN      = errors.New("circ: isbn already in catalog")
	ErrOverdueBlock       = errors.New("circ: user has overdue loans")
	ErrUserNotEligible    = errors.New("circ: user is not eligible to borrow")
	ErrInvalidTransition  = errors.New("circ: invalid loan transition")
	ErrAlreadyProcessed   = errors.New("circ: fine already processed")
	ErrNotFound           = errors.New("circ: not found")
	ErrInvariantViolation = errors.New("circ: inventory invariant violated")
	ErrPersistenceFailure = errors.New("circ: persistence failure")
	ErrInvalidInput       = errors.New("circ: invalid input")
)
