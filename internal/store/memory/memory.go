// Package memory implements store.Store in process memory. It backs tests
// and single-instance development servers.
//
// Transactions hold the store lock for their whole duration, so every unit
// is serialized; a failed unit restores the snapshot taken when it began.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store"
)

type voteKey struct {
	typ     model.SubjectType
	subject int64
	user    int64
}

type state struct {
	questions map[int64]model.Question
	answers   map[int64]model.Answer
	votes     map[voteKey]model.VoteRecord
	events    []*model.Event

	nextQuestion int64
	nextAnswer   int64
	nextEvent    int64
}

func (st *state) clone() *state {
	c := *st
	c.questions = maps.Clone(st.questions)
	c.answers = maps.Clone(st.answers)
	c.votes = maps.Clone(st.votes)
	c.events = slices.Clone(st.events)
	return &c
}

// Store is an in-memory store.Store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store using the wall clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty store that stamps rows with now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		st: &state{
			questions: make(map[int64]model.Question),
			answers:   make(map[int64]model.Answer),
			votes:     make(map[voteKey]model.VoteRecord),
		},
		now: now,
	}
}

// RunInTransaction runs fn with exclusive access to the store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &txStore{ops: ops{st: s.st, now: s.now}}
	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		*s.st = *snapshot
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) locked() (ops, func()) {
	s.mu.Lock()
	return ops{st: s.st, now: s.now}, s.mu.Unlock
}

func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) error {
	o, unlock := s.locked()
	defer unlock()
	return o.CreateQuestion(ctx, q)
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.GetQuestion(ctx, id)
}

func (s *Store) LockQuestion(ctx context.Context, id int64) (*model.Question, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.GetQuestion(ctx, id)
}

func (s *Store) UpdateQuestionTitle(ctx context.Context, id int64, title string) error {
	o, unlock := s.locked()
	defer unlock()
	return o.UpdateQuestionTitle(ctx, id, title)
}

func (s *Store) SetQuestionState(ctx context.Context, id int64, state model.State) error {
	o, unlock := s.locked()
	defer unlock()
	return o.SetQuestionState(ctx, id, state)
}

func (s *Store) CreateAnswer(ctx context.Context, a *model.Answer) error {
	o, unlock := s.locked()
	defer unlock()
	return o.CreateAnswer(ctx, a)
}

func (s *Store) GetAnswer(ctx context.Context, id int64) (*model.Answer, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.GetAnswer(ctx, id)
}

func (s *Store) ListAnswers(ctx context.Context, questionID int64) ([]*model.Answer, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.ListAnswers(ctx, questionID)
}

func (s *Store) SetAnswerState(ctx context.Context, id int64, state model.State) error {
	o, unlock := s.locked()
	defer unlock()
	return o.SetAnswerState(ctx, id, state)
}

func (s *Store) ClearBest(ctx context.Context, questionID int64) error {
	o, unlock := s.locked()
	defer unlock()
	return o.ClearBest(ctx, questionID)
}

func (s *Store) SetBest(ctx context.Context, answerID int64) error {
	o, unlock := s.locked()
	defer unlock()
	return o.SetBest(ctx, answerID)
}

func (s *Store) LockVoteSubject(ctx context.Context, typ model.SubjectType, id int64) (*model.VoteSubject, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.LockVoteSubject(ctx, typ, id)
}

func (s *Store) GetVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.GetVote(ctx, typ, subjectID, userID)
}

func (s *Store) InsertVote(ctx context.Context, v *model.VoteRecord) error {
	o, unlock := s.locked()
	defer unlock()
	return o.InsertVote(ctx, v)
}

func (s *Store) UpdateVote(ctx context.Context, v *model.VoteRecord) error {
	o, unlock := s.locked()
	defer unlock()
	return o.UpdateVote(ctx, v)
}

func (s *Store) DeleteVote(ctx context.Context, typ model.SubjectType, subjectID, userID int64) error {
	o, unlock := s.locked()
	defer unlock()
	return o.DeleteVote(ctx, typ, subjectID, userID)
}

func (s *Store) ApplyVoteDelta(ctx context.Context, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.ApplyVoteDelta(ctx, typ, id, up, down)
}

func (s *Store) GetVoteCounts(ctx context.Context, typ model.SubjectType, id int64) (model.VoteCounts, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.GetVoteCounts(ctx, typ, id)
}

func (s *Store) AppendEvent(ctx context.Context, e *model.Event) error {
	o, unlock := s.locked()
	defer unlock()
	return o.AppendEvent(ctx, e)
}

func (s *Store) QueryEvents(ctx context.Context, threadID int64, since model.Cursor, limit int) ([]*model.Event, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.QueryEvents(ctx, threadID, since, limit)
}

func (s *Store) LatestEventTime(ctx context.Context, threadID int64) (model.Cursor, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.LatestEventTime(ctx, threadID)
}

func (s *Store) ListEventsBefore(ctx context.Context, before time.Time, limit int) ([]*model.Event, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.ListEventsBefore(ctx, before, limit)
}

func (s *Store) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.DeleteEventsBefore(ctx, before)
}

func (s *Store) EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error) {
	o, unlock := s.locked()
	defer unlock()
	return o.EventStats(ctx, since, top)
}

// txStore runs operations against the state owned by an open transaction.
type txStore struct {
	ops
}

var _ store.Store = (*txStore)(nil)

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) LockQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return t.GetQuestion(ctx, id)
}

// Close is a no-op for a transaction store.
func (t *txStore) Close() error { return nil }

// ops implements the row operations without locking. The caller holds the lock.
type ops struct {
	st  *state
	now func() time.Time
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, model.ErrNotFound)
}

func (o ops) CreateQuestion(_ context.Context, q *model.Question) error {
	o.st.nextQuestion++
	q.ID = o.st.nextQuestion
	if q.State == "" {
		q.State = model.StatePublished
	}
	q.VotesUp, q.VotesDown = 0, 0
	q.CreatedAt = o.now().UTC()
	q.UpdatedAt = q.CreatedAt
	o.st.questions[q.ID] = *q
	return nil
}

func (o ops) GetQuestion(_ context.Context, id int64) (*model.Question, error) {
	q, ok := o.st.questions[id]
	if !ok {
		return nil, notFound("question", id)
	}
	return &q, nil
}

func (o ops) UpdateQuestionTitle(_ context.Context, id int64, title string) error {
	q, ok := o.st.questions[id]
	if !ok {
		return notFound("question", id)
	}
	q.Title = title
	q.UpdatedAt = o.now().UTC()
	o.st.questions[id] = q
	return nil
}

func (o ops) SetQuestionState(_ context.Context, id int64, state model.State) error {
	q, ok := o.st.questions[id]
	if !ok {
		return notFound("question", id)
	}
	q.State = state
	q.UpdatedAt = o.now().UTC()
	o.st.questions[id] = q
	return nil
}

func (o ops) CreateAnswer(_ context.Context, a *model.Answer) error {
	if _, ok := o.st.questions[a.QuestionID]; !ok {
		return notFound("question", a.QuestionID)
	}
	o.st.nextAnswer++
	a.ID = o.st.nextAnswer
	if a.State == "" {
		a.State = model.StatePublished
	}
	a.IsBest = false
	a.VotesUp, a.VotesDown = 0, 0
	a.CreatedAt = o.now().UTC()
	o.st.answers[a.ID] = *a
	return nil
}

func (o ops) GetAnswer(_ context.Context, id int64) (*model.Answer, error) {
	a, ok := o.st.answers[id]
	if !ok {
		return nil, notFound("answer", id)
	}
	return &a, nil
}

func (o ops) ListAnswers(_ context.Context, questionID int64) ([]*model.Answer, error) {
	var out []*model.Answer
	for _, a := range o.st.answers {
		if a.QuestionID == questionID {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(x, y *model.Answer) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out, nil
}

func (o ops) SetAnswerState(_ context.Context, id int64, state model.State) error {
	a, ok := o.st.answers[id]
	if !ok {
		return notFound("answer", id)
	}
	a.State = state
	o.st.answers[id] = a
	return nil
}

func (o ops) ClearBest(_ context.Context, questionID int64) error {
	for id, a := range o.st.answers {
		if a.QuestionID == questionID && a.IsBest {
			a.IsBest = false
			o.st.answers[id] = a
		}
	}
	return nil
}

func (o ops) SetBest(_ context.Context, answerID int64) error {
	a, ok := o.st.answers[answerID]
	if !ok {
		return notFound("answer", answerID)
	}
	for id, other := range o.st.answers {
		if id != answerID && other.QuestionID == a.QuestionID && other.IsBest {
			return fmt.Errorf("answer %d: %w: question %d already has a best answer", answerID, model.ErrConflict, a.QuestionID)
		}
	}
	a.IsBest = true
	o.st.answers[answerID] = a
	return nil
}

func (o ops) LockVoteSubject(_ context.Context, typ model.SubjectType, id int64) (*model.VoteSubject, error) {
	switch typ {
	case model.SubjectQuestion:
		q, ok := o.st.questions[id]
		if !ok {
			return nil, notFound("question", id)
		}
		return &model.VoteSubject{Type: typ, ID: id, ThreadID: q.ID, AuthorID: q.AuthorID,
			Counts: model.VoteCounts{Up: q.VotesUp, Down: q.VotesDown}}, nil
	case model.SubjectAnswer:
		a, ok := o.st.answers[id]
		if !ok {
			return nil, notFound("answer", id)
		}
		return &model.VoteSubject{Type: typ, ID: id, ThreadID: a.QuestionID, AuthorID: a.AuthorID,
			Counts: model.VoteCounts{Up: a.VotesUp, Down: a.VotesDown}}, nil
	}
	return nil, fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, typ)
}

func (o ops) GetVote(_ context.Context, typ model.SubjectType, subjectID, userID int64) (*model.VoteRecord, error) {
	v, ok := o.st.votes[voteKey{typ, subjectID, userID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (o ops) InsertVote(_ context.Context, v *model.VoteRecord) error {
	k := voteKey{v.SubjectType, v.SubjectID, v.UserID}
	if _, ok := o.st.votes[k]; ok {
		return fmt.Errorf("vote: %w", model.ErrConflict)
	}
	v.CreatedAt = o.now().UTC()
	o.st.votes[k] = *v
	return nil
}

func (o ops) UpdateVote(_ context.Context, v *model.VoteRecord) error {
	k := voteKey{v.SubjectType, v.SubjectID, v.UserID}
	cur, ok := o.st.votes[k]
	if !ok {
		return fmt.Errorf("vote: %w", model.ErrNotFound)
	}
	cur.Value = v.Value
	o.st.votes[k] = cur
	return nil
}

func (o ops) DeleteVote(_ context.Context, typ model.SubjectType, subjectID, userID int64) error {
	k := voteKey{typ, subjectID, userID}
	if _, ok := o.st.votes[k]; !ok {
		return fmt.Errorf("vote: %w", model.ErrNotFound)
	}
	delete(o.st.votes, k)
	return nil
}

func (o ops) ApplyVoteDelta(_ context.Context, typ model.SubjectType, id int64, up, down int) (model.VoteCounts, error) {
	switch typ {
	case model.SubjectQuestion:
		q, ok := o.st.questions[id]
		if !ok {
			return model.VoteCounts{}, notFound("question", id)
		}
		q.VotesUp += up
		q.VotesDown += down
		o.st.questions[id] = q
		return model.VoteCounts{Up: q.VotesUp, Down: q.VotesDown}, nil
	case model.SubjectAnswer:
		a, ok := o.st.answers[id]
		if !ok {
			return model.VoteCounts{}, notFound("answer", id)
		}
		a.VotesUp += up
		a.VotesDown += down
		o.st.answers[id] = a
		return model.VoteCounts{Up: a.VotesUp, Down: a.VotesDown}, nil
	}
	return model.VoteCounts{}, fmt.Errorf("%w: subject type %q", model.ErrInvalidArgument, typ)
}

func (o ops) GetVoteCounts(ctx context.Context, typ model.SubjectType, id int64) (model.VoteCounts, error) {
	s, err := o.LockVoteSubject(ctx, typ, id)
	if err != nil {
		return model.VoteCounts{}, err
	}
	return s.Counts, nil
}

func (o ops) AppendEvent(_ context.Context, e *model.Event) error {
	o.st.nextEvent++
	e.ID = o.st.nextEvent
	e.CreatedAt = o.now().UTC().Truncate(time.Second)
	if len(e.Payload) == 0 {
		e.Payload = []byte(`{}`)
	}
	cp := *e
	o.st.events = append(o.st.events, &cp)
	return nil
}

func compareEvents(x, y *model.Event) int {
	if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(x.ID, y.ID)
}

func (o ops) QueryEvents(_ context.Context, threadID int64, since model.Cursor, limit int) ([]*model.Event, error) {
	after := since.Time()
	var out []*model.Event
	for _, e := range o.st.events {
		if e.ThreadID == threadID && e.CreatedAt.After(after) {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, compareEvents)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o ops) LatestEventTime(_ context.Context, threadID int64) (model.Cursor, error) {
	var latest model.Cursor
	for _, e := range o.st.events {
		if e.ThreadID == threadID {
			latest = latest.Advance(e.CreatedAt.Unix())
		}
	}
	return latest, nil
}

func (o ops) ListEventsBefore(_ context.Context, before time.Time, limit int) ([]*model.Event, error) {
	var out []*model.Event
	for _, e := range o.st.events {
		if e.CreatedAt.Before(before) {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, compareEvents)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o ops) DeleteEventsBefore(_ context.Context, before time.Time) (int64, error) {
	kept := o.st.events[:0]
	var n int64
	for _, e := range o.st.events {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	o.st.events = kept
	return n, nil
}

func (o ops) EventStats(_ context.Context, since time.Time, top int) (*model.EventStats, error) {
	stats := &model.EventStats{Since: since.Unix(), ByType: make(map[string]int64)}
	byDay := make(map[string]int64)
	byThread := make(map[int64]int64)
	for _, e := range o.st.events {
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByType[string(e.Type)]++
		byDay[e.CreatedAt.UTC().Format("2006-01-02")]++
		byThread[e.ThreadID]++
	}
	for _, day := range slices.Sorted(maps.Keys(byDay)) {
		stats.ByDay = append(stats.ByDay, model.DayCount{Day: day, Count: byDay[day]})
	}
	for id, n := range byThread {
		stats.TopThreads = append(stats.TopThreads, model.ThreadCount{
			ThreadID: id,
			Title:    o.st.questions[id].Title,
			Count:    n,
		})
	}
	slices.SortFunc(stats.TopThreads, func(x, y model.ThreadCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.ThreadID, y.ThreadID)
	})
	if top > 0 && len(stats.TopThreads) > top {
		stats.TopThreads = stats.TopThreads[:top]
	}
	return stats, nil
}
