package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"librario.org/internal/circ"
	"librario.org/internal/store/sqlite"
)

// Drives one full circulation cycle against a throwaway SQLite database:
// borrow, reissue, late return, fine payment. A virtual clock makes the
// loan overdue without waiting.
func main() {
	dir, err := os.MkdirTemp("", "librario-smoke-")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	now := time.Now().UTC()
	clock := func() time.Time { return now }

	store, err := sqlite.Open(filepath.Join(dir, "circ.db"), circ.DefaultPolicy(), clock)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	book, err := store.AddBook(ctx, circ.Book{Title: "Smoke Test Chronicles", Author: "Nobody", TotalCopies: 1})
	if err != nil {
		log.Fatalf("add book: %v", err)
	}
	if err := store.PutUser(ctx, circ.User{ID: "smoke-user", Name: "Smoke User", Role: circ.RoleStudent, Active: true}); err != nil {
		log.Fatalf("put user: %v", err)
	}

	loan, err := store.CreateLoan(ctx, "smoke-user", book.ID)
	if err != nil {
		log.Fatalf("borrow: %v", err)
	}
	av, err := store.InventoryCount(ctx, book.ID)
	if err != nil {
		log.Fatalf("availability: %v", err)
	}
	if av.AvailableCopies != 0 {
		log.Fatalf("copy not reserved: %d available", av.AvailableCopies)
	}

	loan, err = store.ReissueLoan(ctx, loan.ID)
	if err != nil {
		log.Fatalf("reissue: %v", err)
	}

	// Jump three days past the extended due date.
	now = loan.DueDate.AddDate(0, 0, 3)

	returned, fine, err := store.ReturnLoan(ctx, loan.ID)
	if err != nil {
		log.Fatalf("return: %v", err)
	}
	if returned.Status != circ.LoanReturned {
		log.Fatalf("unexpected loan status: %s", returned.Status)
	}
	if fine == nil {
		log.Fatal("expected a fine for the late return")
	}
	want := int64(3) * circ.DefaultPolicy().FinePerDayMinor
	if fine.Amount != want {
		log.Fatalf("unexpected fine: got %d, want %d", fine.Amount, want)
	}

	paid, err := store.PayFine(ctx, fine.ID)
	if err != nil {
		log.Fatalf("pay fine: %v", err)
	}
	if paid.Status != circ.FinePaid {
		log.Fatalf("unexpected fine status: %s", paid.Status)
	}

	av, err = store.InventoryCount(ctx, book.ID)
	if err != nil {
		log.Fatalf("availability: %v", err)
	}
	if av.AvailableCopies != 1 {
		log.Fatalf("copy not released: %d available", av.AvailableCopies)
	}

	fmt.Printf("✅ circulation smoke test passed: loan=%s fine=%d\n", loan.ID, fine.Amount)
}
