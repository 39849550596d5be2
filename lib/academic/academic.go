// Package academic holds the calendar arithmetic of the university: ISO
// weeks, week parity, academic years and semesters.
package academic

import "time"

const (
	// AutumnStart is the month the academic year and its odd semester start in.
	AutumnStart = time.September
	// SpringStart is the month the even semester starts in.
	SpringStart = time.February
)

// ISOWeek returns the ISO 8601 year and week number of t.
func ISOWeek(t time.Time) (year, week int) {
	return t.ISOWeek()
}

// IsEvenWeek returns the parity of an ISO week number, invert flips it for
// years where the university counts the other way around.
func IsEvenWeek(week int, invert bool) bool {
	even := week%2 == 0
	if invert {
		return !even
	}
	return even
}

// Week is an ISO week with its parity.
type Week struct {
	Year   int  `json:"year"`
	Number int  `json:"week"`
	Even   bool `json:"is_even"`
}

func WeekOf(t time.Time, invert bool) Week {
	year, week := t.ISOWeek()
	return Week{Year: year, Number: week, Even: IsEvenWeek(week, invert)}
}

// AcademicYear returns the calendar year the academic year containing t
// started in, ex. 2024 for any day between 2024-09-01 and 2025-08-31.
func AcademicYear(t time.Time) int {
	if t.Month() >= AutumnStart {
		return t.Year()
	}
	return t.Year() - 1
}

// CurrentSemester returns the 1-based semester a student admitted in the
// autumn of admissionYear is in at t. Autumn semesters (September to
// January) are odd, spring semesters (February to August) are even. Dates
// before admission give 1.
func CurrentSemester(admissionYear int, t time.Time) int {
	yearsIn := AcademicYear(t) - admissionYear
	semester := yearsIn*2 + 1
	if t.Month() >= SpringStart && t.Month() < AutumnStart {
		semester++
	}
	if semester < 1 {
		return 1
	}
	return semester
}
