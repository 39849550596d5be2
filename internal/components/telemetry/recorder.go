package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelBroken Level = iota
	LevelWarning
	LevelDebug
	LevelCount
)

type Report struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder keeps every report in memory so tests can assert on what a
// component reported. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Report{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Report{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Report{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Report{Level: LevelCount, ID: id, Count: count})
}

// Reports returns a copy of everything recorded so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Has returns true if a report with the given level has an id ending with the given suffix.
// Suffix matching lets tests ignore the namespace added by ScopedAPI.
func (r *Recorder) Has(level Level, idSuffix string) bool {
	for _, report := range r.Reports() {
		if report.Level == level && strings.HasSuffix(report.ID, idSuffix) {
			return true
		}
	}
	return false
}
