package circ

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

func newTestLedger(t *testing.T) (*InMemory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewInMemory(DefaultPolicy(), clock.Now), clock
}

func seedBook(t *testing.T, s *InMemory, title string, copies int) Book {
	t.Helper()
	b, err := s.AddBook(context.Background(), Book{Title: title, Author: "anon", TotalCopies: copies})
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	return b
}

func seedStudent(t *testing.T, s *InMemory, id string) {
	t.Helper()
	if err := s.PutUser(context.Background(), User{ID: id, Name: id, Role: RoleStudent, Active: true}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
}

func TestCreateLoanDecrementsStock(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "The Go Programming Language", 2)
	seedStudent(t, s, "student-1")

	loan, err := s.CreateLoan(ctx, "student-1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loan.Status != LoanBorrowed {
		t.Fatalf("unexpected status: %s", loan.Status)
	}
	wantDue := DateOf(clock.Now()).AddDate(0, 0, 14)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("due date = %v, want %v", loan.DueDate, wantDue)
	}
	if loan.DueDate.Before(loan.BorrowDate.Truncate(24 * time.Hour)) {
		t.Fatalf("due date precedes borrow date")
	}

	av, err := s.InventoryCount(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if av.AvailableCopies != 1 || av.TotalCopies != 2 {
		t.Fatalf("availability = %d/%d, want 1/2", av.AvailableCopies, av.TotalCopies)
	}
}

// Scenario: two copies, three borrowers. The third observes OutOfStock.
func TestCreateLoanExhaustsStock(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Dune", 2)
	for _, id := range []string{"s1", "s2", "s3"} {
		seedStudent(t, s, id)
	}

	if _, err := s.CreateLoan(ctx, "s1", book.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateLoan(ctx, "s2", book.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateLoan(ctx, "s3", book.ID); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	av, _ := s.InventoryCount(ctx, book.ID)
	if av.AvailableCopies != 0 {
		t.Fatalf("available = %d, want 0", av.AvailableCopies)
	}
}

func TestCreateLoanPolicyRejections(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Neuromancer", 3)

	if _, err := s.CreateLoan(ctx, "ghost", book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}

	if err := s.PutUser(ctx, User{ID: "inactive", Role: RoleStudent, Active: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateLoan(ctx, "inactive", book.ID); !errors.Is(err, ErrUserNotEligible) {
		t.Fatalf("inactive user: expected ErrUserNotEligible, got %v", err)
	}

	seedStudent(t, s, "dup")
	if _, err := s.CreateLoan(ctx, "dup", book.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateLoan(ctx, "dup", book.ID); !errors.Is(err, ErrDuplicateLoan) {
		t.Fatalf("expected ErrDuplicateLoan, got %v", err)
	}

	inactive := seedBook(t, s, "Hidden", 1)
	if err := s.DeactivateBook(ctx, inactive.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateLoan(ctx, "dup", inactive.ID); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("inactive book: expected ErrOutOfStock, got %v", err)
	}
}

// Scenario: a user with any overdue loan is blocked from borrowing a
// different title, regardless of that title's stock.
func TestCreateLoanOverdueBlock(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	first := seedBook(t, s, "Snow Crash", 1)
	second := seedBook(t, s, "Cryptonomicon", 5)
	seedStudent(t, s, "late")

	if _, err := s.CreateLoan(ctx, "late", first.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(15) // past the 14-day window

	if _, err := s.CreateLoan(ctx, "late", second.ID); !errors.Is(err, ErrOverdueBlock) {
		t.Fatalf("expected ErrOverdueBlock, got %v", err)
	}
}

// Scenario: borrowed day 0, due day 14, reissued day 5 -> due day 21; a
// second reissue is rejected.
func TestReissueOnce(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Hyperion", 1)
	seedStudent(t, s, "s1")

	loan, err := s.CreateLoan(ctx, "s1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(5)

	reissued, err := s.ReissueLoan(ctx, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := loan.DueDate.AddDate(0, 0, 7); !reissued.DueDate.Equal(want) {
		t.Fatalf("due date = %v, want %v", reissued.DueDate, want)
	}
	if !reissued.Reissued {
		t.Fatal("reissued flag not set")
	}

	if _, err := s.ReissueLoan(ctx, loan.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second reissue: expected ErrInvalidTransition, got %v", err)
	}
}

func TestReissueRejectedWhenOverdue(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Foundation", 1)
	seedStudent(t, s, "s1")

	loan, err := s.CreateLoan(ctx, "s1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(20)

	if _, err := s.ReissueLoan(ctx, loan.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// Round-trip: borrowing then returning restores availability.
func TestReturnRestoresStock(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Ubik", 3)
	seedStudent(t, s, "s1")

	loan, err := s.CreateLoan(ctx, "s1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(3)

	returned, fine, err := s.ReturnLoan(ctx, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if returned.Status != LoanReturned || returned.ReturnDate == nil {
		t.Fatalf("loan not closed: %+v", returned)
	}
	if fine != nil {
		t.Fatalf("unexpected fine on timely return: %+v", fine)
	}

	av, _ := s.InventoryCount(ctx, book.ID)
	if av.AvailableCopies != 3 {
		t.Fatalf("available = %d, want 3", av.AvailableCopies)
	}

	if _, _, err := s.ReturnLoan(ctx, loan.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double return: expected ErrInvalidTransition, got %v", err)
	}
}

func TestReturnLateCreatesFine(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Solaris", 1)
	seedStudent(t, s, "s1")

	loan, err := s.CreateLoan(ctx, "s1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(19) // due at day 14, returned at day 19

	_, fine, err := s.ReturnLoan(ctx, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fine == nil {
		t.Fatal("expected a fine")
	}
	if want := int64(5) * DefaultPolicy().FinePerDayMinor; fine.Amount != want {
		t.Fatalf("fine amount = %d, want %d", fine.Amount, want)
	}
	if fine.Status != FinePending {
		t.Fatalf("fine status = %s, want PENDING", fine.Status)
	}

	pending, err := s.ListPendingFines(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != fine.ID {
		t.Fatalf("pending fines = %+v", pending)
	}
}

// Scenario: paying a fine twice returns AlreadyProcessed on the second call.
func TestPayFineTerminal(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Roadside Picnic", 1)
	seedStudent(t, s, "s1")

	loan, _ := s.CreateLoan(ctx, "s1", book.ID)
	clock.Advance(16)
	_, fine, err := s.ReturnLoan(ctx, loan.ID)
	if err != nil || fine == nil {
		t.Fatalf("return: fine=%v err=%v", fine, err)
	}

	paid, err := s.PayFine(ctx, fine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paid.Status != FinePaid || paid.PaidAt == nil {
		t.Fatalf("fine not paid: %+v", paid)
	}

	if _, err := s.PayFine(ctx, fine.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if _, err := s.WaiveFine(ctx, fine.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("waive after pay: expected ErrAlreadyProcessed, got %v", err)
	}
}

// Two concurrent borrows race for the last copy: exactly one wins.
func TestConcurrentBorrowLastCopy(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "The Dispossessed", 1)

	const N = 16
	for i := 0; i < N; i++ {
		seedStudent(t, s, userID(i))
	}

	var wg sync.WaitGroup
	errs := make([]error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateLoan(ctx, userID(i), book.ID)
		}(i)
	}
	wg.Wait()

	var ok, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || outOfStock != N-1 {
		t.Fatalf("ok=%d outOfStock=%d, want 1/%d", ok, outOfStock, N-1)
	}

	av, _ := s.InventoryCount(ctx, book.ID)
	if av.AvailableCopies != 0 {
		t.Fatalf("available = %d, want 0", av.AvailableCopies)
	}
}

func TestNotificationsEmitted(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Blindsight", 1)
	seedStudent(t, s, "s1")

	loan, err := s.CreateLoan(ctx, "s1", book.ID)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(16)
	if _, _, err := s.ReturnLoan(ctx, loan.ID); err != nil {
		t.Fatal(err)
	}

	notifs, err := s.ListNotifications(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(notifs) != 2 {
		t.Fatalf("notifications = %d, want 2 (issue + fine)", len(notifs))
	}
	for _, n := range notifs {
		if n.Read {
			t.Fatalf("notification created read: %+v", n)
		}
	}

	if err := s.MarkNotificationRead(ctx, notifs[0].ID); err != nil {
		t.Fatal(err)
	}
	notifs, _ = s.ListNotifications(ctx, "s1")
	var read int
	for _, n := range notifs {
		if n.Read {
			read++
		}
	}
	if read != 1 {
		t.Fatalf("read = %d, want 1", read)
	}
}

func TestUpdateBookKeepsLoanedCopies(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	book := seedBook(t, s, "Anathem", 2)
	seedStudent(t, s, "s1")
	if _, err := s.CreateLoan(ctx, "s1", book.ID); err != nil {
		t.Fatal(err)
	}

	// 1 copy out; shrinking to a single copy leaves zero available.
	one := 1
	updated, err := s.UpdateBook(ctx, book.ID, BookUpdate{TotalCopies: &one})
	if err != nil {
		t.Fatal(err)
	}
	if updated.TotalCopies != 1 || updated.AvailableCopies != 0 {
		t.Fatalf("after shrink: %d/%d, want 0/1", updated.AvailableCopies, updated.TotalCopies)
	}

	// Shrinking below the loaned-out count must fail.
	zero := 0
	if _, err := s.UpdateBook(ctx, book.ID, BookUpdate{TotalCopies: &zero}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListBooksFilter(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	seedBook(t, s, "Go in Action", 1)
	gone := seedBook(t, s, "Gone with the Wind", 1)
	if err := s.DeactivateBook(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}

	books, err := s.ListBooks(ctx, BookFilter{Query: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 || books[0].Title != "Go in Action" {
		t.Fatalf("unexpected result: %+v", books)
	}
}

// A borrower holding the requested title plus a different overdue loan is
// rejected for the overdue loan, regardless of map iteration order.
func TestCreateLoanOverdueBlockBeforeDuplicate(t *testing.T) {
	s, clock := newTestLedger(t)
	ctx := context.Background()
	late := seedBook(t, s, "Kindred", 1)
	held := seedBook(t, s, "Parable of the Sower", 2)
	seedStudent(t, s, "student-1")

	if _, err := s.CreateLoan(ctx, "student-1", late.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10)
	if _, err := s.CreateLoan(ctx, "student-1", held.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(6) // first loan is now 2 days overdue, second is not

	for i := 0; i < 25; i++ {
		if _, err := s.CreateLoan(ctx, "student-1", held.ID); !errors.Is(err, ErrOverdueBlock) {
			t.Fatalf("iteration %d: got %v, want ErrOverdueBlock", i, err)
		}
	}
}

func TestAddBookDuplicateISBN(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := s.AddBook(ctx, Book{Title: "Dune", ISBN: "9780441172719", TotalCopies: 1}); err != nil {
		t.Fatal(err)
	}
	_, err := s.AddBook(ctx, Book{Title: "Dune (reissue)", ISBN: "9780441172719", TotalCopies: 3})
	if !errors.Is(err, ErrDuplicateISBN) {
		t.Fatalf("got %v, want ErrDuplicateISBN", err)
	}

	// Books without an ISBN never collide.
	if _, err := s.AddBook(ctx, Book{Title: "Pamphlet A", TotalCopies: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddBook(ctx, Book{Title: "Pamphlet B", TotalCopies: 1}); err != nil {
		t.Fatal(err)
	}
}

func userID(i int) string {
	return "user-" + string(rune('a'+i))
}
