package academic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

func TestISOWeek(t *testing.T) {
	testCases := []struct {
		date       time.Time
		expectYear int
		expectWeek int
	}{
		{date: date(2025, time.November, 3), expectYear: 2025, expectWeek: 45},
		{date: date(2025, time.October, 27), expectYear: 2025, expectWeek: 44},
		// belongs to the first week of the next ISO year
		{date: date(2024, time.December, 30), expectYear: 2025, expectWeek: 1},
		// belongs to the last week of the previous ISO year
		{date: date(2021, time.January, 3), expectYear: 2020, expectWeek: 53},
	}

	for _, test := range testCases {
		year, week := ISOWeek(test.date)
		require.Equal(t, test.expectYear, year, test.date.String())
		require.Equal(t, test.expectWeek, week, test.date.String())
	}
}

func TestIsEvenWeek(t *testing.T) {
	require.True(t, IsEvenWeek(44, false))
	require.False(t, IsEvenWeek(45, false))
	require.False(t, IsEvenWeek(44, true))
	require.True(t, IsEvenWeek(45, true))

	week := WeekOf(date(2025, time.November, 3), false)
	require.Equal(t, Week{Year: 2025, Number: 45, Even: false}, week)
}

func TestAcademicYear(t *testing.T) {
	require.Equal(t, 2024, AcademicYear(date(2024, time.September, 1)))
	require.Equal(t, 2024, AcademicYear(date(2025, time.January, 20)))
	require.Equal(t, 2024, AcademicYear(date(2025, time.August, 31)))
	require.Equal(t, 2025, AcademicYear(date(2025, time.September, 1)))
}

func TestCurrentSemester(t *testing.T) {
	testCases := []struct {
		admission int
		date      time.Time
		expect    int
	}{
		{admission: 2024, date: date(2024, time.September, 1), expect: 1},
		{admission: 2024, date: date(2025, time.January, 25), expect: 1},
		{admission: 2024, date: date(2025, time.February, 1), expect: 2},
		{admission: 2024, date: date(2025, time.July, 10), expect: 2},
		{admission: 2024, date: date(2025, time.November, 3), expect: 3},
		{admission: 2022, date: date(2026, time.March, 1), expect: 8},
		{admission: 2026, date: date(2025, time.November, 3), expect: 1},
	}

	for _, test := range testCases {
		require.Equal(t, test.expect, CurrentSemester(test.admission, test.date), test.date.String())
	}
}
