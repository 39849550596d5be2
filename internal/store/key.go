package store

import (
	"fmt"
	"strings"
)

// Key addresses one cached extraction result. Variant tells apart results
// of the same domain fetched with different parameters.
type Key struct {
	Username string
	Domain   string
	Variant  string
}

func (k Key) String() string {
	if k.Variant == "" {
		return fmt.Sprintf("%s/%s", k.Username, k.Domain)
	}
	return fmt.Sprintf("%s/%s/%s", k.Username, k.Domain, k.Variant)
}

// DateVariant is the variant of a single day, date is YYYY-MM-DD.
func DateVariant(date string) string {
	return date
}

// WeekVariant is the variant of an ISO week, ex. 2025-W07.
func WeekVariant(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// TupleVariant joins filter values, empty values are kept so that the
// position of each value stays significant.
func TupleVariant(values ...string) string {
	allEmpty := true
	for _, v := range values {
		if v != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return ""
	}
	return strings.Join(values, ":")
}
