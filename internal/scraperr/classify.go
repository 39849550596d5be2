package scraperr

import (
	"context"
	"errors"
	"strings"
)

// signatures of the automation layer and the network stack, the automation
// layer reports everything as plain strings so this is the only place that
// looks at message text.
var (
	retryableSignatures = []string{
		"err_aborted",
		"detached",
		"closed",
		"timeout",
		"timed out",
		"network",
		"econnrefused",
		"econnreset",
		"etimedout",
		"connection reset",
		"connection refused",
		"fetch failed",
		"failed to fetch",
		"navigation timeout",
		"waiting for selector",
		"lifecyclewatcher disposed",
		"navigating frame was detached",
		"context deadline exceeded",
		"net::err_",
	}

	authSignatures = []string{
		"waiting for selector `#username`",
		"timeouterror",
		"неверный логин",
		"invalid credentials",
		"invalid username or password",
		"authorization failed",
		"аутентификация",
	}

	sessionFatalSignatures = []string{
		"detached",
		"target closed",
		"session closed",
		"browser closed",
		"page closed",
		"err_aborted",
		"invalid context",
	}
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Classify derives a kind from an untagged error, authentication signatures
// take priority over retryable ones since a credential field wait timeout
// matches both. IsRetryable still looks at the retryable signatures of such
// errors.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, authSignatures) {
		return KindAuthentication
	}
	if containsAny(msg, retryableSignatures) {
		return KindTransient
	}
	return KindFatal
}

func matchesRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), retryableSignatures)
}

func matchesSessionFatal(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), sessionFatalSignatures)
}
