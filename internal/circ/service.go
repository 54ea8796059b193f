package circ

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"librario.org/internal/ids"
)

// Service defines the circulation ledger operations.
type Service interface {
	// Catalog.
	AddBook(ctx context.Context, book Book) (Book, error)
	UpdateBook(ctx context.Context, id string, upd BookUpdate) (Book, error)
	DeactivateBook(ctx context.Context, id string) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	InventoryCount(ctx context.Context, bookID string) (Availability, error)

	// Users are managed by an external identity collaborator; PutUser is the
	// ingestion point, the core only reads id/role/active.
	PutUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)

	// Loan lifecycle.
	CreateLoan(ctx context.Context, userID, bookID string) (Loan, error)
	ReissueLoan(ctx context.Context, loanID string) (Loan, error)
	ReturnLoan(ctx context.Context, loanID string) (Loan, *Fine, error)
	ListActiveLoans(ctx context.Context, userID string) ([]Loan, error)
	ListOverdueLoans(ctx context.Context) ([]Loan, error)

	// Fines.
	PayFine(ctx context.Context, fineID string) (Fine, error)
	WaiveFine(ctx context.Context, fineID string) (Fine, error)
	ListPendingFines(ctx context.Context, userID string) ([]Fine, error)

	// Notifications.
	ListNotifications(ctx context.Context, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// BookUpdate is a partial catalog update; nil fields are left unchanged.
// Changing TotalCopies shifts AvailableCopies by the same delta so the number
// of copies on loan is preserved.
type BookUpdate struct {
	ISBN        *string
	Title       *string
	Author      *string
	TotalCopies *int
}

// BookFilter narrows ListBooks results.
type BookFilter struct {
	Query         string // matches title, author or ISBN, case-insensitive
	OnlyAvailable bool
	IncludeHidden bool // include deactivated books
}

// InMemory implements Service with in-process concurrency safety. The SQL
// stores implement the same contract against durable storage.
type InMemory struct {
	policy Policy
	now    Clock

	mu     sync.RWMutex
	books  map[string]*Book
	users  map[string]User
	loans  map[string]*Loan
	fines  map[string]*Fine
	notifs []Notification
}

// NewInMemory creates an empty circulation ledger. A nil clock means UTC wall
// time.
func NewInMemory(policy Policy, clock Clock) *InMemory {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &InMemory{
		policy: policy,
		now:    clock,
		books:  make(map[string]*Book),
		users:  make(map[string]User),
		loans:  make(map[string]*Loan),
		fines:  make(map[string]*Fine),
	}
}

var _ Service = (*InMemory)(nil)

// --- Catalog ---

func (s *InMemory) AddBook(ctx context.Context, book Book) (Book, error) {
	if strings.TrimSpace(book.Title) == "" {
		return Book{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if book.TotalCopies < 1 {
		return Book{}, fmt.Errorf("%w: total_copies must be >= 1", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if isbn := strings.TrimSpace(book.ISBN); isbn != "" {
		for _, b := range s.books {
			if b.ISBN == isbn {
				return Book{}, ErrDuplicateISBN
			}
		}
	}

	book.ID = ids.New()
	book.AvailableCopies = book.TotalCopies
	book.Active = true
	book.CreatedAt = s.now()
	s.books[book.ID] = &book
	return book, nil
}

func (s *InMemory) UpdateBook(ctx context.Context, id string, upd BookUpdate) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
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
			return Book{}, fmt.Errorf("%w: total_copies must be >= 1", ErrInvalidInput)
		}
		newAvail := b.AvailableCopies + (newTotal - b.TotalCopies)
		if newAvail < 0 {
			return Book{}, fmt.Errorf("%w: %d copies are on loan", ErrInvalidInput, b.TotalCopies-b.AvailableCopies)
		}
		b.TotalCopies = newTotal
		b.AvailableCopies = newAvail
	}
	return *b, nil
}

func (s *InMemory) DeactivateBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	b.Active = false
	return nil
}

func (s *InMemory) GetBook(ctx context.Context, id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return *b, nil
}

func (s *InMemory) ListBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var res []Book
	for _, b := range s.books {
		if !b.Active && !filter.IncludeHidden {
			continue
		}
		if filter.OnlyAvailable && b.AvailableCopies == 0 {
			continue
		}
		if q != "" && !matchesBook(*b, q) {
			continue
		}
		res = append(res, *b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

func (s *InMemory) InventoryCount(ctx context.Context, bookID string) (Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return Availability{}, ErrNotFound
	}
	return Availability{BookID: b.ID, AvailableCopies: b.AvailableCopies, TotalCopies: b.TotalCopies}, nil
}

func matchesBook(b Book, q string) bool {
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q) ||
		strings.Contains(strings.ToLower(b.ISBN), q)
}

// --- Users ---

func (s *InMemory) PutUser(ctx context.Context, user User) error {
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	switch user.Role {
	case RoleAdmin, RoleLibrarian, RoleStudent:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, user.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// --- Loans ---

func (s *InMemory) CreateLoan(ctx context.Context, userID, bookID string) (Loan, error) {
	if userID == "" || bookID == "" {
		return Loan{}, fmt.Errorf("%w: user id and book id are required", ErrInvalidInput)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return Loan{}, ErrNotFound
	}
	if !user.Active {
		return Loan{}, ErrUserNotEligible
	}

	// Overdue block over all of the user's open loans, then the duplicate
	// check; same order as the SQL stores.
	for _, l := range s.loans {
		if l.UserID == userID && l.Status == LoanBorrowed && IsOverdue(*l, now) {
			return Loan{}, ErrOverdueBlock
		}
	}
	for _, l := range s.loans {
		if l.UserID == userID && l.Status == LoanBorrowed && l.BookID == bookID {
			return Loan{}, ErrDuplicateLoan
		}
	}

	book, ok := s.books[bookID]
	if !ok {
		return Loan{}, ErrNotFound
	}
	if !book.Active || book.AvailableCopies <= 0 {
		return Loan{}, ErrOutOfStock
	}
	book.AvailableCopies--

	loan := Loan{
		ID:         ids.New(),
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: now,
		DueDate:    DateOf(now).AddDate(0, 0, s.policy.LoanPeriodDays),
		Status:     LoanBorrowed,
	}
	s.loans[loan.ID] = &loan

	s.emit(userID, issuedMessage(book.Title, loan.DueDate), now)
	return loan, nil
}

func (s *InMemory) ReissueLoan(ctx context.Context, loanID string) (Loan, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return Loan{}, ErrNotFound
	}
	if loan.Status != LoanBorrowed || IsOverdue(*loan, now) || loan.Reissued {
		return Loan{}, ErrInvalidTransition
	}

	loan.DueDate = loan.DueDate.AddDate(0, 0, s.policy.ReissueExtensionDays)
	loan.Reissued = true

	title := loanID
	if b, ok := s.books[loan.BookID]; ok {
		title = b.Title
	}
	s.emit(loan.UserID, reissuedMessage(title, loan.DueDate), now)
	return *loan, nil
}

func (s *InMemory) ReturnLoan(ctx context.Context, loanID string) (Loan, *Fine, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return Loan{}, nil, ErrNotFound
	}
	if loan.Status != LoanBorrowed {
		return Loan{}, nil, ErrInvalidTransition
	}

	book, ok := s.books[loan.BookID]
	if !ok {
		return Loan{}, nil, fmt.Errorf("%w: loan %s references missing book %s", ErrInvariantViolation, loanID, loan.BookID)
	}
	if book.AvailableCopies+1 > book.TotalCopies {
		return Loan{}, nil, fmt.Errorf("%w: release would exceed total copies for book %s", ErrInvariantViolation, book.ID)
	}
	book.AvailableCopies++

	ret := now
	loan.Status = LoanReturned
	loan.ReturnDate = &ret

	var fine *Fine
	if amount := AssessFine(*loan, now, s.policy.FinePerDayMinor); amount > 0 {
		f := Fine{
			ID:        ids.New(),
			LoanID:    loan.ID,
			Amount:    amount,
			Status:    FinePending,
			CreatedAt: now,
		}
		s.fines[f.ID] = &f
		fine = &f
		s.emit(loan.UserID, fineMessage(book.Title, amount), now)
	}
	return *loan, fine, nil
}

func (s *InMemory) ListActiveLoans(ctx context.Context, userID string) ([]Loan, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Loan
	for _, l := range s.loans {
		if l.Status != LoanBorrowed {
			continue
		}
		if userID != "" && l.UserID != userID {
			continue
		}
		out := *l
		out.Status = ClassifyLoan(out, now)
		res = append(res, out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DueDate.Before(res[j].DueDate) })
	return res, nil
}

func (s *InMemory) ListOverdueLoans(ctx context.Context) ([]Loan, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Loan
	for _, l := range s.loans {
		if l.Status != LoanBorrowed || !IsOverdue(*l, now) {
			continue
		}
		out := *l
		out.Status = LoanOverdue
		res = append(res, out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DueDate.Before(res[j].DueDate) })
	return res, nil
}

// --- Fines ---

func (s *InMemory) PayFine(ctx context.Context, fineID string) (Fine, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fines[fineID]
	if !ok {
		return Fine{}, ErrNotFound
	}
	if f.Status != FinePending {
		return Fine{}, ErrAlreadyProcessed
	}
	paid := now
	f.Status = FinePaid
	f.PaidAt = &paid
	return *f, nil
}

func (s *InMemory) WaiveFine(ctx context.Context, fineID string) (Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fines[fineID]
	if !ok {
		return Fine{}, ErrNotFound
	}
	if f.Status != FinePending {
		return Fine{}, ErrAlreadyProcessed
	}
	f.Status = FineWaived
	return *f, nil
}

func (s *InMemory) ListPendingFines(ctx context.Context, userID string) ([]Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Fine
	for _, f := range s.fines {
		if f.Status != FinePending {
			continue
		}
		if userID != "" {
			loan, ok := s.loans[f.LoanID]
			if !ok || loan.UserID != userID {
				continue
			}
		}
		res = append(res, *f)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// --- Notifications ---

func (s *InMemory) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Notification
	for _, n := range s.notifs {
		if userID != "" && n.UserID != userID {
			continue
		}
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *InMemory) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifs {
		if s.notifs[i].ID == id {
			s.notifs[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// emit appends a notification. Callers hold s.mu.
func (s *InMemory) emit(userID, message string, now time.Time) {
	s.notifs = append(s.notifs, Notification{
		ID:        ids.New(),
		UserID:    userID,
		Message:   message,
		CreatedAt: now,
	})
}

// Notification texts, kept stable for external consumers.

func issuedMessage(title string, due time.Time) string {
	return fmt.Sprintf("Book '%s' has been issued to you. Due date: %s", title, due.Format("2006-01-02"))
}

func reissuedMessage(title string, due time.Time) string {
	return fmt.Sprintf("Book '%s' has been reissued. New due date: %s", title, due.Format("2006-01-02"))
}

func fineMessage(title string, amount int64) string {
	return fmt.Sprintf("A fine of $%d.%02d has been assessed for the late return of '%s'", amount/100, amount%100, title)
}
