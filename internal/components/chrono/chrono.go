package chrono

import (
	"sync"
	"time"
	_ "time/tzdata"
)

var msk *time.Location

func init() {
	var err error
	msk, err = time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
}

// MSK returns a [*time.Location] for Europe/Moscow, the timezone the portal operates in.
func MSK() *time.Location {
	return msk
}

// TimeAPI is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type TimeAPI interface {
	// Now returns the current time, the timezone of the time will default to Europe/Moscow.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(msk)
}

// Fake is a TimeAPI that only moves when told to.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
