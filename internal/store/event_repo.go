package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// eventRepo implements EventRepo with sqlx and the global sequence counter.
type eventRepo struct {
	db  *sqlx.DB
	seq *sequenceCounter
}

type importRow struct {
	ID       int64  `db:"id"`
	Sequence int64  `db:"sequence"`
	TsMs     int64  `db:"ts_ms"`
	BatchID  string `db:"batch_id"`
	UserID   string `db:"user_id"`
	Source   string `db:"source"`
	Strategy string `db:"strategy"`
	Found    int    `db:"found"`
	Added    int    `db:"added"`
}

type refreshRow struct {
	ID                int64  `db:"id"`
	Sequence          int64  `db:"sequence"`
	TsMs              int64  `db:"ts_ms"`
	Forced            bool   `db:"forced"`
	UsedFallback      bool   `db:"used_fallback"`
	Remote            int    `db:"remote"`
	Downloaded        int    `db:"downloaded"`
	Skipped           int    `db:"skipped"`
	Failed            int    `db:"failed"`
	Missing           int    `db:"missing"`
	Extra             int    `db:"extra"`
	Invalid           int    `db:"invalid"`
	TotalAchievements int    `db:"total_achievements"`
	DurationMs        int64  `db:"duration_ms"`
	ErrorMessage      string `db:"error_message"`
}

func (r *eventRepo) AppendImport(ctx context.Context, data ImportEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO import_events (sequence, ts_ms, batch_id, user_id, source, strategy, found, added)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, time.Now().UnixMilli(), data.BatchID, data.UserID, data.Source, data.Strategy, data.Found, data.Added,
	)
	if err != nil {
		return fmt.Errorf("save import event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryImports(ctx context.Context, opts QueryOpts) ([]ImportEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.After > 0 {
		where = append(where, "sequence > ?")
		args = append(args, opts.After)
	}

	q := `SELECT id, sequence, ts_ms, batch_id, user_id, source, strategy, found, added FROM import_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sequence DESC"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []importRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query import events: %w", err)
	}

	events := make([]ImportEvent, len(rows))
	for i, row := range rows {
		events[i] = ImportEvent{
			ID:        row.ID,
			Sequence:  row.Sequence,
			Timestamp: time.UnixMilli(row.TsMs),
			ImportEventData: ImportEventData{
				BatchID:  row.BatchID,
				UserID:   row.UserID,
				Source:   row.Source,
				Strategy: row.Strategy,
				Found:    row.Found,
				Added:    row.Added,
			},
		}
	}
	return events, nil
}

func (r *eventRepo) AppendRefresh(ctx context.Context, data RefreshEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO refresh_events (sequence, ts_ms, forced, used_fallback, remote, downloaded, skipped,
			failed, missing, extra, invalid, total_achievements, duration_ms, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, time.Now().UnixMilli(), data.Forced, data.UsedFallback, data.Remote, data.Downloaded, data.Skipped,
		data.Failed, data.Missing, data.Extra, data.Invalid, data.TotalAchievements, data.Duration.Milliseconds(), data.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save refresh event: %w", err)
	}
	return nil
}

func (r *eventRepo) LatestRefresh(ctx context.Context) (*RefreshEvent, error) {
	var row refreshRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM refresh_events ORDER BY sequence DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest refresh: %w", err)
	}

	return &RefreshEvent{
		ID:        row.ID,
		Sequence:  row.Sequence,
		Timestamp: time.UnixMilli(row.TsMs),
		RefreshEventData: RefreshEventData{
			Forced:            row.Forced,
			UsedFallback:      row.UsedFallback,
			Remote:            row.Remote,
			Downloaded:        row.Downloaded,
			Skipped:           row.Skipped,
			Failed:            row.Failed,
			Missing:           row.Missing,
			Extra:             row.Extra,
			Invalid:           row.Invalid,
			TotalAchievements: row.TotalAchievements,
			Duration:          time.Duration(row.DurationMs) * time.Millisecond,
			ErrorMessage:      row.ErrorMessage,
		},
	}, nil
}
