package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// Store defines the persistence interface for threads, votes, and the event log.
//
// Lookups of missing rows return an error wrapping model.ErrNotFound.
type Store interface {
	// Questions
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)
	LockQuestion(ctx context.Context, id int64) (*model.Question, error) // row lock until the unit ends
	UpdateQuestionTitle(ctx context.Context, id int64, title string) error
	SetQuestionState(ctx context.Context, id int64, state model.State) error

	// Answers
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, id int64) (*model.Answer, error)
	ListAnswers(ctx context.Context, questionID int64) ([]*model.Answer, error)
	SetAnswerState(ctx context.Context, id int64, state model.State) error
	ClearBest(ctx context.Context, questionID int64) error
	SetBest(ctx context.Context, answerID int64) error

	// Votes
	LockVoteSubject(ctx context.Context, typ model.SubjectType, id int64) (*model.VoteSubject, error)
	GetVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) // nil, nil when absent
	InsertVote(ctx context.Context, v *model.VoteRecord) error
	UpdateVote(ctx context.Context, v *model.VoteRecord) error
	DeleteVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) error
	ApplyVoteDelta(ctx context.Context, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error)
	GetVoteCounts(ctx context.Context, typ model.SubjectType, id int64) (model.VoteCounts, error)

	// Event log
	AppendEvent(ctx context.Context, e *model.Event) error
	QueryEvents(ctx context.Context, threadID int64, since model.Cursor, limit int) ([]*model.Event, error)
	LatestEventTime(ctx context.Context, threadID int64) (model.Cursor, error)
	ListEventsBefore(ctx context.Context, before time.Time, limit int) ([]*model.Event, error)
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
	EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
