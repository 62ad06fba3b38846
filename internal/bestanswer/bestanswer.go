// Package bestanswer selects the accepted answer of a question.
package bestanswer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

// maxAttempts bounds how often a selection races another one before
// ErrConflict is returned.
const maxAttempts = 2

// MarkBestResult describes the selection that was committed.
type MarkBestResult struct {
	QuestionID       int64        `json:"question_id"`
	AnswerID         int64        `json:"answer_id"`
	PreviousAnswerID int64        `json:"previous_answer_id,omitempty"`
	Event            *model.Event `json:"-"`
}

// Selector marks answers as best.
type Selector struct {
	store  store.Store
	log    *eventlog.Log
	logger *slog.Logger
}

// New returns a Selector.
func New(s store.Store, log *eventlog.Log, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{store: s, log: log, logger: logger}
}

// MarkBest makes answerID the only best answer of its question. Only the
// question author or a moderator may do so. Marking the current best answer
// again leaves the same state and appends another event.
func (s *Selector) MarkBest(ctx context.Context, p model.Principal, answerID int64) (*MarkBestResult, error) {
	if answerID <= 0 {
		return nil, fmt.Errorf("%w: answer id must be positive", model.ErrInvalidArgument)
	}
	if !p.Authenticated {
		return nil, fmt.Errorf("%w: selecting a best answer requires a signed-in user", model.ErrPermissionDenied)
	}

	var (
		res *MarkBestResult
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = s.markBest(ctx, p, answerID)
		if err == nil || !errors.Is(err, model.ErrConflict) {
			break
		}
		s.logger.Info("best answer selection raced, retrying", "answer_id", answerID, "attempt", attempt, "error", err)
	}
	if err != nil {
		return nil, err
	}
	s.log.Notify(ctx, res.Event)
	return res, nil
}

func (s *Selector) markBest(ctx context.Context, p model.Principal, answerID int64) (*MarkBestResult, error) {
	var res MarkBestResult
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		answer, err := tx.GetAnswer(ctx, answerID)
		if err != nil {
			return err
		}
		question, err := tx.LockQuestion(ctx, answer.QuestionID)
		if err != nil {
			return err
		}
		if question.AuthorID != p.UserID && !p.CanModerate {
			return fmt.Errorf("%w: only the question author or a moderator can select the best answer", model.ErrPermissionDenied)
		}

		answers, err := tx.ListAnswers(ctx, question.ID)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		for _, a := range answers {
			if a.IsBest {
				res.PreviousAnswerID = a.ID
			}
		}

		if err := tx.ClearBest(ctx, question.ID); err != nil {
			return fmt.Errorf("clear best: %w", err)
		}
		if err := tx.SetBest(ctx, answerID); err != nil {
			return err
		}

		ev, err := model.NewEvent(model.EventBestAnswer, question.ID, answerID, p.UserID, model.BestAnswerPayload{
			AnswerID:         answerID,
			PreviousAnswerID: res.PreviousAnswerID,
		})
		if err != nil {
			return err
		}
		if _, err := s.log.Append(ctx, tx, ev); err != nil {
			return err
		}
		res.QuestionID = question.ID
		res.AnswerID = answerID
		res.Event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
