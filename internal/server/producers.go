package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

// questionAuthor returns the author of a question. Authors never change, so
// cached entries stay valid until evicted.
func (s *Server) questionAuthor(ctx context.Context, questionID int64) (int64, error) {
	if author, ok := s.authors.Get(questionID); ok {
		return author, nil
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}
	s.authors.Add(q.ID, q.AuthorID)
	return q.AuthorID, nil
}

// CreateQuestion starts a new thread. No event is appended; nobody can be
// watching a thread that does not exist yet.
func (s *Server) CreateQuestion(ctx context.Context, p model.Principal, title string) (*model.Question, error) {
	if !p.Authenticated {
		return nil, fmt.Errorf("%w: asking requires a signed-in user", model.ErrPermissionDenied)
	}
	q := &model.Question{
		Title:    strings.TrimSpace(title),
		AuthorID: p.UserID,
		State:    model.StatePublished,
	}
	if err := model.ValidateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.authors.Add(q.ID, q.AuthorID)
	return q, nil
}

// UpdateQuestion retitles a question. Only its author or a moderator may.
func (s *Server) UpdateQuestion(ctx context.Context, p model.Principal, questionID int64, title string) (*model.Question, error) {
	if !p.Authenticated {
		return nil, fmt.Errorf("%w: editing requires a signed-in user", model.ErrPermissionDenied)
	}
	author, err := s.questionAuthor(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if author != p.UserID && !p.CanModerate {
		return nil, fmt.Errorf("%w: only the author or a moderator can edit question %d", model.ErrPermissionDenied, questionID)
	}
	title = strings.TrimSpace(title)
	if err := model.ValidateQuestion(&model.Question{Title: title, AuthorID: author}); err != nil {
		return nil, err
	}

	var (
		q   *model.Question
		evt *model.Event
	)
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.UpdateQuestionTitle(ctx, questionID, title); err != nil {
			return err
		}
		var err error
		if q, err = tx.GetQuestion(ctx, questionID); err != nil {
			return err
		}
		evt, err = model.NewEvent(model.EventQuestionUpdate, questionID, questionID, p.UserID, model.QuestionUpdatePayload{
			QuestionID: questionID,
			Title:      title,
			Fields:     []string{"title"},
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update question %d: %w", questionID, err)
	}
	s.log.Notify(ctx, evt)
	return q, nil
}

// SubmitAnswer adds an answer to a question. Submissions are rate limited
// per user.
func (s *Server) SubmitAnswer(ctx context.Context, p model.Principal, questionID int64, body string) (*model.Answer, error) {
	if !p.Authenticated {
		return nil, fmt.Errorf("%w: answering requires a signed-in user", model.ErrPermissionDenied)
	}
	a := &model.Answer{
		QuestionID: questionID,
		AuthorID:   p.UserID,
		Body:       strings.TrimSpace(body),
		State:      model.StatePublished,
	}
	if err := model.ValidateAnswer(a); err != nil {
		return nil, err
	}
	if _, err := s.questionAuthor(ctx, questionID); err != nil {
		return nil, err
	}
	if err := s.answers.allow(p.UserID); err != nil {
		return nil, err
	}

	var evt *model.Event
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateAnswer(ctx, a); err != nil {
			return err
		}
		var err error
		evt, err = model.NewEvent(model.EventNewAnswer, questionID, a.ID, p.UserID, model.NewAnswerPayload{
			AnswerID: a.ID,
			AuthorID: a.AuthorID,
			Excerpt:  model.Excerpt(a.Body),
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit answer to question %d: %w", questionID, err)
	}
	s.log.Notify(ctx, evt)
	return a, nil
}

// ModerateRequest names a moderation action.
type ModerateRequest struct {
	SubjectType model.SubjectType      `json:"subject_type"`
	SubjectID   int64                  `json:"subject_id"`
	Action      model.ModerationAction `json:"action"`
	Reason      string                 `json:"reason,omitempty"`
}

// Moderate changes the visibility state of a question or answer.
func (s *Server) Moderate(ctx context.Context, p model.Principal, req ModerateRequest) (*model.Event, error) {
	if !p.Authenticated || !p.CanModerate {
		return nil, fmt.Errorf("%w: moderation requires the moderate capability", model.ErrPermissionDenied)
	}
	if !req.SubjectType.IsValid() {
		return nil, fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, req.SubjectType)
	}
	state, ok := req.Action.TargetState()
	if !ok {
		return nil, fmt.Errorf("%w: moderation action %q", model.ErrInvalidArgument, req.Action)
	}
	if req.SubjectID <= 0 {
		return nil, fmt.Errorf("%w: subject id must be positive", model.ErrInvalidArgument)
	}

	var evt *model.Event
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		threadID := req.SubjectID
		switch req.SubjectType {
		case model.SubjectQuestion:
			if err := tx.SetQuestionState(ctx, req.SubjectID, state); err != nil {
				return err
			}
		case model.SubjectAnswer:
			a, err := tx.GetAnswer(ctx, req.SubjectID)
			if err != nil {
				return err
			}
			threadID = a.QuestionID
			if err := tx.SetAnswerState(ctx, req.SubjectID, state); err != nil {
				return err
			}
		}
		var err error
		evt, err = model.NewEvent(model.EventModeration, threadID, req.SubjectID, p.UserID, model.ModerationPayload{
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			Action:      req.Action,
			Reason:      req.Reason,
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("moderate %s %d: %w", req.SubjectType, req.SubjectID, err)
	}
	s.log.Notify(ctx, evt)
	return evt, nil
}
