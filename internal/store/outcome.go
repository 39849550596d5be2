package store

import (
	"context"
	"database/sql"
	"fmt"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/store/db"
	"time"
)

const report_outcome_record = "outcome_log.record"

// Outcome is the result of a single extraction attempt.
type Outcome struct {
	Username     string    `json:"username"`
	Domain       string    `json:"domain"`
	Success      bool      `json:"success"`
	ItemsCount   int       `json:"items_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OutcomeLog records extraction attempts. Writing to it never fails the
// extraction being recorded.
type OutcomeLog struct {
	qry  *db.Queries
	time chrono.TimeAPI
	tel  telemetry.API
}

func NewOutcomeLog(database *sql.DB, timeApi chrono.TimeAPI, tel telemetry.API) *OutcomeLog {
	assert.NotNil(database, "database")
	assert.NotNil(timeApi, "time")
	assert.NotNil(tel, "tel")
	return &OutcomeLog{
		qry:  db.New(database),
		time: timeApi,
		tel:  telemetry.NewScopedAPI("store", tel),
	}
}

// Record stores o, a zero CreatedAt is replaced with the current time.
// Failures are reported and swallowed.
func (l *OutcomeLog) Record(ctx context.Context, o Outcome) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = l.time.Now()
	}
	err := l.qry.CreateExtractionLog(ctx, db.CreateExtractionLogParams{
		Username:     o.Username,
		Domain:       o.Domain,
		Success:      o.Success,
		ItemsCount:   int64(o.ItemsCount),
		ErrorMessage: o.ErrorMessage,
		CreatedAt:    o.CreatedAt.Unix(),
	})
	if err != nil {
		l.tel.ReportWarning(report_outcome_record, o.Username, o.Domain, err)
	}
}

// Recent returns up to limit of the latest outcomes of username, newest
// first.
func (l *OutcomeLog) Recent(ctx context.Context, username string, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.qry.GetRecentExtractionLogs(ctx, db.GetRecentExtractionLogsParams{
		Username: username,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("recent outcomes of %s: %w", username, err)
	}
	out := make([]Outcome, len(rows))
	for i, r := range rows {
		out[i] = Outcome{
			Username:     r.Username,
			Domain:       r.Domain,
			Success:      r.Success,
			ItemsCount:   int(r.ItemsCount),
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    time.Unix(r.CreatedAt, 0).In(chrono.MSK()),
		}
	}
	return out, nil
}
