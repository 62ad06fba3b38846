package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, type, thread_id, subject_id, actor_id, payload, delivered, created_at`

// queryAppendEvent inserts e and fills in its id and second-truncated timestamp.
func queryAppendEvent(ctx context.Context, db executor, e *model.Event) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO events (type, thread_id, subject_id, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		string(e.Type), e.ThreadID, e.SubjectID, e.ActorID, jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// queryEvents returns events strictly after since, oldest first.
func queryEvents(ctx context.Context, db executor, threadID int64, since model.Cursor, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE thread_id = $1 AND created_at > to_timestamp($2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3`,
		threadID, int64(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryLatestEventTime(ctx context.Context, db executor, threadID int64) (model.Cursor, error) {
	var ts int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(EXTRACT(EPOCH FROM MAX(created_at))::BIGINT, 0)
		FROM events
		WHERE thread_id = $1`,
		threadID,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	return model.Cursor(ts), nil
}

func queryListEventsBefore(ctx context.Context, db executor, before time.Time, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryDeleteEventsBefore(ctx context.Context, db executor, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryEventStats(ctx context.Context, db executor, since time.Time, top int) (*model.EventStats, error) {
	stats := &model.EventStats{
		Since:  since.Unix(),
		ByType: make(map[string]int64),
	}

	rows, err := db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM events
		WHERE created_at >= $1
		GROUP BY type`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByType[typ] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day, COUNT(*)
		FROM events
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("count by day: %w", err)
	}
	for rows.Next() {
		var d model.DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByDay = append(stats.ByDay, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT e.thread_id, COALESCE(q.title, ''), COUNT(*) AS n
		FROM events e
		LEFT JOIN questions q ON q.id = e.thread_id
		WHERE e.created_at >= $1
		GROUP BY e.thread_id, q.title
		ORDER BY n DESC, e.thread_id ASC
		LIMIT $2`,
		since, top,
	)
	if err != nil {
		return nil, fmt.Errorf("top threads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc model.ThreadCount
		if err := rows.Scan(&tc.ThreadID, &tc.Title, &tc.Count); err != nil {
			return nil, err
		}
		stats.TopThreads = append(stats.TopThreads, tc)
	}
	return stats, rows.Err()
}
