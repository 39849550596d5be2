package assert

import "fmt"

// NotNil panics if value is nil, it is meant for constructor arguments that
// the caller is never expected to omit.
func NotNil(value any, name ...string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", describe(name)))
	}
}

func NotEmptyStr(str string, name ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", describe(name)))
	}
}

func Positive[T ~int | ~int64 | ~float64](value T, name ...string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %v", describe(name), value))
	}
}

func describe(name []string) string {
	if len(name) == 0 {
		return "value"
	}
	return name[0]
}
