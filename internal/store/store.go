// Package store persists the latest extraction result of every account and
// the log of extraction attempts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"guapassist-backend/internal/components/assert"
	"guapassist-backend/internal/components/chrono"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/store/db"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	report_store_memory = "store.memory"
	report_store_forget = "store.forget"
)

// DefaultFreshFor is how long a stored result is served instead of
// extracting again.
const DefaultFreshFor = 30 * time.Minute

type Options struct {
	FreshFor time.Duration
	// MemoryEntries is the size of the in-memory tier, zero disables it.
	MemoryEntries int
}

type entry struct {
	data      []byte
	updatedAt time.Time
}

type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	time   chrono.TimeAPI
	tel    telemetry.API

	freshFor time.Duration
	memory   *expirable.LRU[Key, entry]
}

func NewStore(database *sql.DB, timeApi chrono.TimeAPI, tel telemetry.API, opts Options) *Store {
	assert.NotNil(database, "database")
	assert.NotNil(timeApi, "time")
	assert.NotNil(tel, "tel")

	if opts.FreshFor <= 0 {
		opts.FreshFor = DefaultFreshFor
	}
	s := &Store{
		qry:      db.New(database),
		makeTx:   db.NewMakeTx(database),
		time:     timeApi,
		tel:      telemetry.NewScopedAPI("store", tel),
		freshFor: opts.FreshFor,
	}
	if opts.MemoryEntries > 0 {
		s.memory = expirable.NewLRU[Key, entry](opts.MemoryEntries, nil, opts.FreshFor)
	}
	return s
}

func (s *Store) FreshFor() time.Duration {
	return s.freshFor
}

// Put replaces the stored value of key with the json encoding of value and
// stamps it with the current time.
func (s *Store) Put(ctx context.Context, key Key, value any) (time.Time, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("put %s: encode: %w", key, err)
	}
	now := s.time.Now()
	err = s.qry.UpsertRecord(ctx, db.UpsertRecordParams{
		Username:  key.Username,
		Domain:    key.Domain,
		Variant:   key.Variant,
		Data:      string(data),
		UpdatedAt: now.Unix(),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("put %s: %w", key, err)
	}
	if s.memory != nil {
		s.memory.Add(key, entry{data: data, updatedAt: now})
	}
	return now, nil
}

func (s *Store) isFresh(updatedAt time.Time) bool {
	return s.time.Now().Sub(updatedAt) < s.freshFor
}

// Fresh decodes the stored value of key into out if it was stored less than
// FreshFor ago. ok is false when nothing fresh is stored, out is left
// untouched in that case.
func (s *Store) Fresh(ctx context.Context, key Key, out any) (updatedAt time.Time, ok bool, err error) {
	if s.memory != nil {
		cached, hit := s.memory.Get(key)
		if hit && s.isFresh(cached.updatedAt) {
			err = json.Unmarshal(cached.data, out)
			if err == nil {
				return cached.updatedAt, true, nil
			}
			s.tel.ReportWarning(report_store_memory, key.String(), err)
			s.memory.Remove(key)
		}
	}

	row, err := s.qry.GetRecord(ctx, db.GetRecordParams{
		Username: key.Username,
		Domain:   key.Domain,
		Variant:  key.Variant,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fresh %s: %w", key, err)
	}

	updatedAt = time.Unix(row.UpdatedAt, 0).In(chrono.MSK())
	if !s.isFresh(updatedAt) {
		return updatedAt, false, nil
	}
	err = json.Unmarshal([]byte(row.Data), out)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fresh %s: decode: %w", key, err)
	}
	if s.memory != nil {
		s.memory.Add(key, entry{data: []byte(row.Data), updatedAt: updatedAt})
	}
	return updatedAt, true, nil
}

// Forget removes every stored value of username and returns how many there
// were.
func (s *Store) Forget(ctx context.Context, username string) (int, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", username, err)
	}
	defer discard()

	count, err := tx.CountUserRecords(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", username, err)
	}
	err = tx.DeleteUserRecords(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", username, err)
	}
	err = commit()
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", username, err)
	}

	if s.memory != nil {
		for _, key := range s.memory.Keys() {
			if key.Username == username {
				s.memory.Remove(key)
			}
		}
	}
	s.tel.ReportDebug(report_store_forget, username, count)
	return int(count), nil
}
