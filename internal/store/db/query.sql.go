package db

import (
	"context"
)

const getRecord = `-- name: GetRecord :one
select username, domain, variant, data, updated_at from records
where username = ? and domain = ? and variant = ?
`

type GetRecordParams struct {
	Username string
	Domain   string
	Variant  string
}

func (q *Queries) GetRecord(ctx context.Context, arg GetRecordParams) (Record, error) {
	row := q.db.QueryRowContext(ctx, getRecord, arg.Username, arg.Domain, arg.Variant)
	var i Record
	err := row.Scan(
		&i.Username,
		&i.Domain,
		&i.Variant,
		&i.Data,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertRecord = `-- name: UpsertRecord :exec
insert into records(username, domain, variant, data, updated_at)
values (?, ?, ?, ?, ?)
on conflict (username, domain, variant) do update set
    data = excluded.data,
    updated_at = excluded.updated_at
`

type UpsertRecordParams struct {
	Username  string
	Domain    string
	Variant   string
	Data      string
	UpdatedAt int64
}

func (q *Queries) UpsertRecord(ctx context.Context, arg UpsertRecordParams) error {
	_, err := q.db.ExecContext(ctx, upsertRecord,
		arg.Username,
		arg.Domain,
		arg.Variant,
		arg.Data,
		arg.UpdatedAt,
	)
	return err
}

const countUserRecords = `-- name: CountUserRecords :one
select count(*) from records where username = ?
`

func (q *Queries) CountUserRecords(ctx context.Context, username string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUserRecords, username)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteUserRecords = `-- name: DeleteUserRecords :exec
delete from records where username = ?
`

func (q *Queries) DeleteUserRecords(ctx context.Context, username string) error {
	_, err := q.db.ExecContext(ctx, deleteUserRecords, username)
	return err
}

const createExtractionLog = `-- name: CreateExtractionLog :exec
insert into extraction_log(username, domain, success, items_count, error_message, created_at)
values (?, ?, ?, ?, ?, ?)
`

type CreateExtractionLogParams struct {
	Username     string
	Domain       string
	Success      bool
	ItemsCount   int64
	ErrorMessage string
	CreatedAt    int64
}

func (q *Queries) CreateExtractionLog(ctx context.Context, arg CreateExtractionLogParams) error {
	_, err := q.db.ExecContext(ctx, createExtractionLog,
		arg.Username,
		arg.Domain,
		arg.Success,
		arg.ItemsCount,
		arg.ErrorMessage,
		arg.CreatedAt,
	)
	return err
}

const getRecentExtractionLogs = `-- name: GetRecentExtractionLogs :many
select id, username, domain, success, items_count, error_message, created_at from extraction_log
where username = ?
order by created_at desc, id desc
limit ?
`

type GetRecentExtractionLogsParams struct {
	Username string
	Limit    int64
}

func (q *Queries) GetRecentExtractionLogs(ctx context.Context, arg GetRecentExtractionLogsParams) ([]ExtractionLog, error) {
	rows, err := q.db.QueryContext(ctx, getRecentExtractionLogs, arg.Username, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExtractionLog
	for rows.Next() {
		var i ExtractionLog
		if err := rows.Scan(
			&i.ID,
			&i.Username,
			&i.Domain,
			&i.Success,
			&i.ItemsCount,
			&i.ErrorMessage,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
