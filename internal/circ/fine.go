package circ

import "time"

// DaysLate returns how many whole days past its due date the loan is as of
// now. Zero when returned on time or early.
func DaysLate(loan Loan, now time.Time) int {
	late := DaysBetween(loan.DueDate, now)
	if late < 0 {
		return 0
	}
	return late
}

// AssessFine computes the fine amount, in minor units, owed on a loan
// returned as of now. A zero amount means no fine is due and no Fine record
// should be created.
func AssessFine(loan Loan, now time.Time, perDayMinor int64) int64 {
	return int64(DaysLate(loan, now)) * perDayMinor
}
