package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// questionColumns is the column list used for SELECT statements on the questions table.
const questionColumns = `id, title, author_id, votes_up, votes_down, state, created_at, updated_at`

// answerColumns is the column list used for SELECT statements on the answers table.
const answerColumns = `id, question_id, author_id, body, is_best, votes_up, votes_down, state, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func what(kind string, id int64) string {
	return kind + " " + strconv.FormatInt(id, 10)
}

func queryCreateQuestion(ctx context.Context, db executor, q *model.Question) error {
	if q.State == "" {
		q.State = model.StatePublished
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO questions (title, author_id, state)
		VALUES ($1, $2, $3)
		RETURNING id, votes_up, votes_down, created_at, updated_at`,
		q.Title, q.AuthorID, string(q.State),
	).Scan(&q.ID, &q.VotesUp, &q.VotesDown, &q.CreatedAt, &q.UpdatedAt)
}

func queryGetQuestion(ctx context.Context, db executor, id int64) (*model.Question, error) {
	row := db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	return q, translateError(err, what("question", id))
}

func queryLockQuestion(ctx context.Context, db executor, id int64) (*model.Question, error) {
	row := db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1 FOR UPDATE`, id)
	q, err := scanQuestion(row)
	return q, translateError(err, what("question", id))
}

func queryUpdateQuestionTitle(ctx context.Context, db executor, id int64, title string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE questions SET title = $2, updated_at = NOW()
		WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return err
	}
	return expectRow(res, what("question", id))
}

func querySetQuestionState(ctx context.Context, db executor, id int64, state model.State) error {
	res, err := db.ExecContext(ctx, `
		UPDATE questions SET state = $2, updated_at = NOW()
		WHERE id = $1`,
		id, string(state),
	)
	if err != nil {
		return err
	}
	return expectRow(res, what("question", id))
}

func queryCreateAnswer(ctx context.Context, db executor, a *model.Answer) error {
	if a.State == "" {
		a.State = model.StatePublished
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO answers (question_id, author_id, body, state)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_best, votes_up, votes_down, created_at`,
		a.QuestionID, a.AuthorID, a.Body, string(a.State),
	).Scan(&a.ID, &a.IsBest, &a.VotesUp, &a.VotesDown, &a.CreatedAt)
}

func queryGetAnswer(ctx context.Context, db executor, id int64) (*model.Answer, error) {
	row := db.QueryRowContext(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, id)
	a, err := scanAnswer(row)
	return a, translateError(err, what("answer", id))
}

func queryListAnswers(ctx context.Context, db executor, questionID int64) ([]*model.Answer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+answerColumns+`
		FROM answers
		WHERE question_id = $1
		ORDER BY created_at ASC, id ASC`,
		questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnswers(rows)
}

func querySetAnswerState(ctx context.Context, db executor, id int64, state model.State) error {
	res, err := db.ExecContext(ctx, `UPDATE answers SET state = $2 WHERE id = $1`, id, string(state))
	if err != nil {
		return err
	}
	return expectRow(res, what("answer", id))
}

func queryClearBest(ctx context.Context, db executor, questionID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE answers SET is_best = FALSE
		WHERE question_id = $1 AND is_best`,
		questionID,
	)
	return err
}

func querySetBest(ctx context.Context, db executor, answerID int64) error {
	res, err := db.ExecContext(ctx, `UPDATE answers SET is_best = TRUE WHERE id = $1`, answerID)
	if err != nil {
		return translateError(err, what("answer", answerID))
	}
	return expectRow(res, what("answer", answerID))
}

// subjectTable returns the table holding the counters for typ, and the
// expression yielding its thread id. Values come from a closed set.
func subjectTable(typ model.SubjectType) (table, threadCol string, err error) {
	switch typ {
	case model.SubjectQuestion:
		return "questions", "id", nil
	case model.SubjectAnswer:
		return "answers", "question_id", nil
	}
	return "", "", fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, typ)
}

func queryLockVoteSubject(ctx context.Context, db executor, typ model.SubjectType, id int64) (*model.VoteSubject, error) {
	table, threadCol, err := subjectTable(typ)
	if err != nil {
		return nil, err
	}
	s := model.VoteSubject{Type: typ}
	err = db.QueryRowContext(ctx, `
		SELECT id, `+threadCol+`, author_id, votes_up, votes_down
		FROM `+table+`
		WHERE id = $1
		FOR UPDATE`,
		id,
	).Scan(&s.ID, &s.ThreadID, &s.AuthorID, &s.Counts.Up, &s.Counts.Down)
	if err != nil {
		return nil, translateError(err, what(string(typ), id))
	}
	return &s, nil
}

func queryGetVote(ctx context.Context, db executor, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) {
	var v model.VoteRecord
	err := db.QueryRowContext(ctx, `
		SELECT subject_id, subject_type, user_id, value, created_at
		FROM votes
		WHERE subject_id = $1 AND subject_type = $2 AND user_id = $3`,
		subjectID, string(typ), userID,
	).Scan(&v.SubjectID, &v.SubjectType, &v.UserID, &v.Value, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func queryInsertVote(ctx context.Context, db executor, v *model.VoteRecord) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO votes (subject_id, subject_type, user_id, value)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		v.SubjectID, string(v.SubjectType), v.UserID, v.Value,
	).Scan(&v.CreatedAt)
	return translateError(err, "vote")
}

func queryUpdateVote(ctx context.Context, db executor, v *model.VoteRecord) error {
	res, err := db.ExecContext(ctx, `
		UPDATE votes SET value = $4
		WHERE subject_id = $1 AND subject_type = $2 AND user_id = $3`,
		v.SubjectID, string(v.SubjectType), v.UserID, v.Value,
	)
	if err != nil {
		return err
	}
	return expectRow(res, "vote")
}

func queryDeleteVote(ctx context.Context, db executor, typ model.SubjectType, subjectID, userID int64) error {
	res, err := db.ExecContext(ctx, `
		DELETE FROM votes
		WHERE subject_id = $1 AND subject_type = $2 AND user_id = $3`,
		subjectID, string(typ), userID,
	)
	if err != nil {
		return err
	}
	return expectRow(res, "vote")
}

func queryApplyVoteDelta(ctx context.Context, db executor, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error) {
	var c model.VoteCounts
	table, _, err := subjectTable(typ)
	if err != nil {
		return c, err
	}
	err = db.QueryRowContext(ctx, `
		UPDATE `+table+`
		SET votes_up = votes_up + $2, votes_down = votes_down + $3
		WHERE id = $1
		RETURNING votes_up, votes_down`,
		id, up, down,
	).Scan(&c.Up, &c.Down)
	return c, translateError(err, what(string(typ), id))
}

func queryGetVoteCounts(ctx context.Context, db executor, typ model.SubjectType, id int64) (model.VoteCounts, error) {
	var c model.VoteCounts
	table, _, err := subjectTable(typ)
	if err != nil {
		return c, err
	}
	err = db.QueryRowContext(ctx, `SELECT votes_up, votes_down FROM `+table+` WHERE id = $1`, id).
		Scan(&c.Up, &c.Down)
	return c, translateError(err, what(string(typ), id))
}
