package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanQuestion scans a single row into a model.Question.
// The row must contain columns in the order defined by questionColumns.
func scanQuestion(row scannable) (*model.Question, error) {
	var q model.Question
	err := row.Scan(
		&q.ID,
		&q.Title,
		&q.AuthorID,
		&q.VotesUp,
		&q.VotesDown,
		&q.State,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// scanAnswer scans a single row into a model.Answer.
// The row must contain columns in the order defined by answerColumns.
func scanAnswer(row scannable) (*model.Answer, error) {
	var a model.Answer
	err := row.Scan(
		&a.ID,
		&a.QuestionID,
		&a.AuthorID,
		&a.Body,
		&a.IsBest,
		&a.VotesUp,
		&a.VotesDown,
		&a.State,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// scanAnswers scans multiple rows into a slice of model.Answer pointers.
func scanAnswers(rows *sql.Rows) ([]*model.Answer, error) {
	var answers []*model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return answers, nil
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var payload []byte
	err := row.Scan(
		&e.ID,
		&e.Type,
		&e.ThreadID,
		&e.SubjectID,
		&e.ActorID,
		&payload,
		&e.Delivered,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
// Empty payloads are stored as an empty object.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte(`{}`)
	}
	return []byte(m)
}

// Postgres error codes treated as a lost race.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translateError maps driver errors onto the model error taxonomy.
// what names the missing row for not-found errors.
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", what, model.ErrConflict, pqErr.Message)
		}
	}
	return err
}

// expectRow returns a not-found error when an UPDATE matched nothing.
func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
