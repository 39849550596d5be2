package scraperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		err    error
		expect Kind
	}{
		{err: errors.New("read tcp 10.0.0.1:443: ECONNRESET"), expect: KindTransient},
		{err: errors.New("dial tcp: connect: connection refused"), expect: KindTransient},
		{err: errors.New("Navigation timeout of 30000 ms exceeded"), expect: KindTransient},
		{err: errors.New("page.navigate: net::ERR_ABORTED"), expect: KindTransient},
		{err: errors.New("Navigating frame was detached"), expect: KindTransient},
		{err: fmt.Errorf("wait: %w", context.DeadlineExceeded), expect: KindTransient},
		{err: errors.New("Waiting for selector `#username` failed"), expect: KindAuthentication},
		{err: errors.New("Неверный логин или пароль."), expect: KindAuthentication},
		{err: errors.New("invalid credentials"), expect: KindAuthentication},
		{err: errors.New("unexpected token < in JSON"), expect: KindFatal},
		{err: errors.New("something else entirely"), expect: KindFatal},
	}

	for _, test := range testCases {
		require.Equal(t, test.expect, Classify(test.err), test.err.Error())
	}
}

func TestKindOfPrefersTag(t *testing.T) {
	// the message would classify as transient, the tag must win
	err := Wrap(KindContentShape, "engine.marks", errors.New("waiting for selector timeout"))
	require.Equal(t, KindContentShape, KindOf(err))

	wrapped := fmt.Errorf("outer: %w", New(KindValidation, "engine.tasks", "username and password are required"))
	require.Equal(t, KindValidation, KindOf(wrapped))
	require.True(t, IsValidation(wrapped))
	require.False(t, IsRetryable(wrapped))
}

func TestPredicates(t *testing.T) {
	require.True(t, IsRetryable(errors.New("ECONNRESET")))
	require.True(t, IsRetryable(New(KindContentShape, "engine.profile", "profile card did not render")))
	require.False(t, IsRetryable(errors.New("no such thing")))
	require.False(t, IsRetryable(nil))

	require.True(t, IsRetryable(errors.New("TimeoutError: Waiting for selector `#username` failed")))
	require.True(t, IsRetryable(errors.New("TimeoutError: Navigation timeout of 30000 ms exceeded")))
	require.True(t, IsRetryable(Wrap(KindAuthentication, "auth.login", context.DeadlineExceeded)))
	require.False(t, IsRetryable(New(KindAuthentication, "auth.login", "invalid username or password")))

	require.True(t, IsAuth(New(KindAuthentication, "auth.login", "invalid username or password")))
	require.False(t, IsAuth(errors.New("ECONNRESET")))
}

func TestIsSessionFatal(t *testing.T) {
	testCases := []struct {
		err    error
		expect bool
	}{
		{err: errors.New("Target closed"), expect: true},
		{err: errors.New("net::ERR_ABORTED at https://pro.guap.ru"), expect: true},
		{err: errors.New("Navigating frame was detached"), expect: true},
		{err: errors.New("ECONNRESET"), expect: false},
		{err: context.Canceled, expect: false},
		{err: New(KindContentShape, "engine.marks", "cards did not render"), expect: false},
		{err: &Error{Kind: KindTransient, SessionFatal: true, Message: "tab crashed"}, expect: true},
		{err: nil, expect: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.expect, IsSessionFatal(test.err), fmt.Sprint(test.err))
	}
}

func TestFromAutomationKeepsTag(t *testing.T) {
	tagged := New(KindAuthentication, "auth.login", "invalid username or password")
	require.Same(t, tagged, FromAutomation("engine.tasks", tagged))

	err := FromAutomation("browser.navigate", errors.New("net::ERR_ABORTED"))
	var out *Error
	require.True(t, errors.As(err, &out))
	require.Equal(t, KindTransient, out.Kind)
	require.True(t, out.SessionFatal)
}

func TestMessage(t *testing.T) {
	require.Equal(t, "invalid username or password", Message(
		fmt.Errorf("create session: %w", New(KindAuthentication, "auth.login", "invalid username or password")),
	))
	require.Equal(t, "operation timed out", Message(context.DeadlineExceeded))
	require.Equal(t, "", Message(nil))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindFatal, KindValidation, KindAuthentication, KindTransient, KindContentShape} {
		require.Equal(t, k, ParseKind(k.String()))
	}
	require.Equal(t, KindFatal, ParseKind("unknown"))
}
