// Package session keeps one authenticated browser page per portal account,
// creating, reusing, expiring and invalidating them.
package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"guapassist-backend/internal/browser"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Credentials are passed through to the sign-in flow and never persisted,
// sessions only keep a digest of the password to tell accounts apart.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

func (c Credentials) digest() [sha256.Size]byte {
	return sha256.Sum256([]byte(c.Password))
}

// Authenticator drives the portal sign-in on a freshly launched page.
//
// note: fault injection point
type Authenticator interface {
	// Login signs in and returns the location the page ended up on.
	Login(ctx context.Context, page browser.Page, creds Credentials) (string, error)
	// IsLoginSuccessful is the only authority on whether Login worked.
	IsLoginSuccessful(location string) bool
	// FailureMessage reads the portal's own error text after a failed login.
	FailureMessage(ctx context.Context, page browser.Page) string
}

// ErrInvalidCredentials is wrapped by the error CreateSession returns when
// the portal rejected the credentials.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CreationError is an infrastructure failure while launching a browser or
// running the sign-in flow.
type CreationError struct {
	Username string
	Err      error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create session for %s: %s", e.Username, e.Err.Error())
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// Session is one authenticated page bound to one account. Every field
// except the immutable ones is guarded by the owning Manager.
type Session struct {
	ID       uuid.UUID
	Username string

	page   browser.Page
	digest [sha256.Size]byte
	// lock is a 1 slot semaphore, holding it means holding the page.
	lock chan struct{}
	// done is closed once the page is closed.
	done   chan struct{}
	closed atomic.Bool

	createdAt      time.Time
	lastActivityAt time.Time
	valid          bool
}

func newSession(creds Credentials, page browser.Page, now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		Username:       creds.Username,
		page:           page,
		digest:         creds.digest(),
		lock:           make(chan struct{}, 1),
		done:           make(chan struct{}),
		createdAt:      now,
		lastActivityAt: now,
		valid:          true,
	}
}

// Page returns the page of the session, it must only be used while holding
// a lease on the session.
func (s *Session) Page() browser.Page {
	return s.page
}

func (s *Session) matches(creds Credentials) bool {
	digest := creds.digest()
	return subtle.ConstantTimeCompare(s.digest[:], digest[:]) == 1
}

func (s *Session) tryLock() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Info is a point in time view of a session for operational listings.
type Info struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Valid          bool      `json:"valid"`
	Leased         bool      `json:"leased"`
}

type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}
