// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	return queryCreateQuestion(ctx, s.db, q)
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return queryGetQuestion(ctx, s.db, id)
}

// LockQuestion outside a transaction degrades to a plain read.
func (s *PostgresStore) LockQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return queryGetQuestion(ctx, s.db, id)
}

func (s *PostgresStore) UpdateQuestionTitle(ctx context.Context, id int64, title string) error {
	return queryUpdateQuestionTitle(ctx, s.db, id, title)
}

func (s *PostgresStore) SetQuestionState(ctx context.Context, id int64, state model.State) error {
	return querySetQuestionState(ctx, s.db, id, state)
}

func (s *PostgresStore) CreateAnswer(ctx context.Context, a *model.Answer) error {
	return queryCreateAnswer(ctx, s.db, a)
}

func (s *PostgresStore) GetAnswer(ctx context.Context, id int64) (*model.Answer, error) {
	return queryGetAnswer(ctx, s.db, id)
}

func (s *PostgresStore) ListAnswers(ctx context.Context, questionID int64) ([]*model.Answer, error) {
	return queryListAnswers(ctx, s.db, questionID)
}

func (s *PostgresStore) SetAnswerState(ctx context.Context, id int64, state model.State) error {
	return querySetAnswerState(ctx, s.db, id, state)
}

func (s *PostgresStore) ClearBest(ctx context.Context, questionID int64) error {
	return queryClearBest(ctx, s.db, questionID)
}

func (s *PostgresStore) SetBest(ctx context.Context, answerID int64) error {
	return querySetBest(ctx, s.db, answerID)
}

func (s *PostgresStore) LockVoteSubject(ctx context.Context, typ model.SubjectType, id int64) (*model.VoteSubject, error) {
	return queryLockVoteSubject(ctx, s.db, typ, id)
}

func (s *PostgresStore) GetVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) {
	return queryGetVote(ctx, s.db, typ, subjectID, userID)
}

func (s *PostgresStore) InsertVote(ctx context.Context, v *model.VoteRecord) error {
	return queryInsertVote(ctx, s.db, v)
}

func (s *PostgresStore) UpdateVote(ctx context.Context, v *model.VoteRecord) error {
	return queryUpdateVote(ctx, s.db, v)
}

func (s *PostgresStore) DeleteVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) error {
	return queryDeleteVote(ctx, s.db, typ, subjectID, userID)
}

func (s *PostgresStore) ApplyVoteDelta(ctx context.Context, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error) {
	return queryApplyVoteDelta(ctx, s.db, typ, id, up, down)
}

func (s *PostgresStore) GetVoteCounts(ctx context.Context, typ model.SubjectType, id int64) (model.VoteCounts, error) {
	return queryGetVoteCounts(ctx, s.db, typ, id)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return queryAppendEvent(ctx, s.db, e)
}

func (s *PostgresStore) QueryEvents(ctx context.Context, threadID int64, since model.Cursor, limit int) ([]*model.Event, error) {
	return queryEvents(ctx, s.db, threadID, since, limit)
}

func (s *PostgresStore) LatestEventTime(ctx context.Context, threadID int64) (model.Cursor, error) {
	return queryLatestEventTime(ctx, s.db, threadID)
}

func (s *PostgresStore) ListEventsBefore(ctx context.Context, before time.Time, limit int) ([]*model.Event, error) {
	return queryListEventsBefore(ctx, s.db, before, limit)
}

func (s *PostgresStore) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	return queryDeleteEventsBefore(ctx, s.db, before)
}

func (s *PostgresStore) EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error) {
	return queryEventStats(ctx, s.db, since, top)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err, "commit"))
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	return queryCreateQuestion(ctx, s.tx, q)
}

func (s *txStore) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return queryGetQuestion(ctx, s.tx, id)
}

func (s *txStore) LockQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return queryLockQuestion(ctx, s.tx, id)
}

func (s *txStore) UpdateQuestionTitle(ctx context.Context, id int64, title string) error {
	return queryUpdateQuestionTitle(ctx, s.tx, id, title)
}

func (s *txStore) SetQuestionState(ctx context.Context, id int64, state model.State) error {
	return querySetQuestionState(ctx, s.tx, id, state)
}

func (s *txStore) CreateAnswer(ctx context.Context, a *model.Answer) error {
	return queryCreateAnswer(ctx, s.tx, a)
}

func (s *txStore) GetAnswer(ctx context.Context, id int64) (*model.Answer, error) {
	return queryGetAnswer(ctx, s.tx, id)
}

func (s *txStore) ListAnswers(ctx context.Context, questionID int64) ([]*model.Answer, error) {
	return queryListAnswers(ctx, s.tx, questionID)
}

func (s *txStore) SetAnswerState(ctx context.Context, id int64, state model.State) error {
	return querySetAnswerState(ctx, s.tx, id, state)
}

func (s *txStore) ClearBest(ctx context.Context, questionID int64) error {
	return queryClearBest(ctx, s.tx, questionID)
}

func (s *txStore) SetBest(ctx context.Context, answerID int64) error {
	return querySetBest(ctx, s.tx, answerID)
}

func (s *txStore) LockVoteSubject(ctx context.Context, typ model.SubjectType, id int64) (*model.VoteSubject, error) {
	return queryLockVoteSubject(ctx, s.tx, typ, id)
}

func (s *txStore) GetVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) {
	return queryGetVote(ctx, s.tx, typ, subjectID, userID)
}

func (s *txStore) InsertVote(ctx context.Context, v *model.VoteRecord) error {
	return queryInsertVote(ctx, s.tx, v)
}

func (s *txStore) UpdateVote(ctx context.Context, v *model.VoteRecord) error {
	return queryUpdateVote(ctx, s.tx, v)
}

func (s *txStore) DeleteVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) error {
	return queryDeleteVote(ctx, s.tx, typ, subjectID, userID)
}

func (s *txStore) ApplyVoteDelta(ctx context.Context, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error) {
	return queryApplyVoteDelta(ctx, s.tx, typ, id, up, down)
}

func (s *txStore) GetVoteCounts(ctx context.Context, typ model.SubjectType, id int64) (model.VoteCounts, error) {
	return queryGetVoteCounts(ctx, s.tx, typ, id)
}

func (s *txStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return queryAppendEvent(ctx, s.tx, e)
}

func (s *txStore) QueryEvents(ctx context.Context, threadID int64, since model.Cursor, limit int) ([]*model.Event, error) {
	return queryEvents(ctx, s.tx, threadID, since, limit)
}

func (s *txStore) LatestEventTime(ctx context.Context, threadID int64) (model.Cursor, error) {
	return queryLatestEventTime(ctx, s.tx, threadID)
}

func (s *txStore) ListEventsBefore(ctx context.Context, before time.Time, limit int) ([]*model.Event, error) {
	return queryListEventsBefore(ctx, s.tx, before, limit)
}

func (s *txStore) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	return queryDeleteEventsBefore(ctx, s.tx, before)
}

func (s *txStore) EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error) {
	return queryEventStats(ctx, s.tx, since, top)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
