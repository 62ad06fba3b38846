// Package vote applies up/down votes with toggle semantics and keeps the
// denormalized counters equal to the vote records.
package vote

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

// CastVoteRequest identifies the subject and direction of a vote.
type CastVoteRequest struct {
	SubjectType model.SubjectType `json:"subject_type"`
	SubjectID   int64             `json:"subject_id"`
	Value       int               `json:"value"`
}

// CastVoteResult reports what a cast did.
type CastVoteResult struct {
	Applied  bool             `json:"applied"`
	Action   model.VoteAction `json:"action"`
	UserVote int              `json:"user_vote"` // 0 when the vote was removed
	Counts   model.VoteCounts `json:"counts"`
	Event    *model.Event     `json:"-"`
}

// Ledger records votes.
type Ledger struct {
	store store.Store
	log   *eventlog.Log
}

// New returns a Ledger writing to s and appending to log.
func New(s store.Store, log *eventlog.Log) *Ledger {
	return &Ledger{store: s, log: log}
}

func validate(p model.Principal, req CastVoteRequest) error {
	if !p.Authenticated || !p.CanVote {
		return fmt.Errorf("%w: voting requires the vote capability", model.ErrPermissionDenied)
	}
	if !model.ValidVoteValue(req.Value) {
		return fmt.Errorf("%w: vote value must be 1 or -1, got %d", model.ErrInvalidArgument, req.Value)
	}
	if !req.SubjectType.IsValid() {
		return fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, req.SubjectType)
	}
	if req.SubjectID <= 0 {
		return fmt.Errorf("%w: subject id must be positive", model.ErrInvalidArgument)
	}
	return nil
}

// column returns the (up, down) counter change for adding n votes of value v.
func column(v, n int) (up, down int) {
	if v > 0 {
		return n, 0
	}
	return 0, n
}

// CastVote applies a vote by p. Casting the same value twice removes the
// vote; casting the opposite value switches it. The subject row stays locked
// from the record lookup until commit, so casts on one subject serialize.
func (l *Ledger) CastVote(ctx context.Context, p model.Principal, req CastVoteRequest) (*CastVoteResult, error) {
	if err := validate(p, req); err != nil {
		return nil, err
	}

	var res CastVoteResult
	err := l.store.RunInTransaction(ctx, func(tx store.Store) error {
		subject, err := tx.LockVoteSubject(ctx, req.SubjectType, req.SubjectID)
		if err != nil {
			return err
		}
		if subject.AuthorID == p.UserID {
			return fmt.Errorf("%s %d: %w", req.SubjectType, req.SubjectID, model.ErrSelfVote)
		}

		existing, err := tx.GetVote(ctx, req.SubjectType, req.SubjectID, p.UserID)
		if err != nil {
			return fmt.Errorf("look up vote: %w", err)
		}

		var up, down, delta int
		switch {
		case existing == nil:
			rec := &model.VoteRecord{
				SubjectID:   req.SubjectID,
				SubjectType: req.SubjectType,
				UserID:      p.UserID,
				Value:       req.Value,
			}
			if err := tx.InsertVote(ctx, rec); err != nil {
				return fmt.Errorf("insert vote: %w", err)
			}
			up, down = column(req.Value, 1)
			delta = req.Value
			res.Action, res.UserVote = model.VoteAdded, req.Value

		case existing.Value == req.Value:
			if err := tx.DeleteVote(ctx, req.SubjectType, req.SubjectID, p.UserID); err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
			up, down = column(req.Value, -1)
			delta = -req.Value
			res.Action, res.UserVote = model.VoteRemoved, 0

		default:
			old := existing.Value
			existing.Value = req.Value
			if err := tx.UpdateVote(ctx, existing); err != nil {
				return fmt.Errorf("update vote: %w", err)
			}
			oldUp, oldDown := column(old, -1)
			newUp, newDown := column(req.Value, 1)
			up, down = oldUp+newUp, oldDown+newDown
			delta = req.Value - old
			res.Action, res.UserVote = model.VoteChanged, req.Value
		}

		counts, err := tx.ApplyVoteDelta(ctx, req.SubjectType, req.SubjectID, up, down)
		if err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		res.Counts = counts

		ev, err := model.NewEvent(model.EventVoteUpdate, subject.ThreadID, subject.ID, p.UserID, model.VotePayload{
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			Delta:       delta,
			VotesUp:     counts.Up,
			VotesDown:   counts.Down,
		})
		if err != nil {
			return err
		}
		if _, err := l.log.Append(ctx, tx, ev); err != nil {
			return err
		}
		res.Event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Applied = true
	l.log.Notify(ctx, res.Event)
	return &res, nil
}

// UserVote returns userID's current vote on the subject: 1, -1, or 0.
func (l *Ledger) UserVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) (int, error) {
	if !typ.IsValid() {
		return 0, fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, typ)
	}
	v, err := l.store.GetVote(ctx, typ, subjectID, userID)
	if err != nil || v == nil {
		return 0, err
	}
	return v.Value, nil
}

// Counts returns the subject's current counters.
func (l *Ledger) Counts(ctx context.Context, typ model.SubjectType, subjectID int64) (model.VoteCounts, error) {
	if !typ.IsValid() {
		return model.VoteCounts{}, fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, typ)
	}
	return l.store.GetVoteCounts(ctx, typ, subjectID)
}
