package circ

import "time"

// DateOf truncates an instant to its UTC calendar day. Lending policy works
// in whole days: a loan is overdue starting the day after its due date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b, negative when
// b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// ClassifyLoan derives the effective status of a loan as of now. A stored
// BORROWED loan whose due date has passed is OVERDUE for policy purposes;
// that classification is never persisted.
func ClassifyLoan(loan Loan, now time.Time) LoanStatus {
	if loan.Status != LoanBorrowed {
		return loan.Status
	}
	if DateOf(now).After(DateOf(loan.DueDate)) {
		return LoanOverdue
	}
	return LoanBorrowed
}

// IsOverdue reports whether the loan is past due and still out.
func IsOverdue(loan Loan, now time.Time) bool {
	return ClassifyLoan(loan, now) == LoanOverdue
}
