package model

import "time"

// SubjectType names what a vote or moderation action targets.
type SubjectType string

const (
	SubjectQuestion SubjectType = "question"
	SubjectAnswer   SubjectType = "answer"
)

// IsValid checks whether the subject type is a known value.
func (s SubjectType) IsValid() bool {
	return s == SubjectQuestion || s == SubjectAnswer
}

// State is the moderation state of a question or answer.
type State string

const (
	StatePublished   State = "published"
	StateUnpublished State = "unpublished"
	StateTrashed     State = "trashed"
)

// IsValid checks whether the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StatePublished, StateUnpublished, StateTrashed:
		return true
	}
	return false
}

// ModerationAction is what a moderator did to a subject.
type ModerationAction string

const (
	ActionPublish   ModerationAction = "publish"
	ActionUnpublish ModerationAction = "unpublish"
	ActionTrash     ModerationAction = "trash"
	ActionUnknown   ModerationAction = "unknown"
)

// TargetState returns the state an action moves its subject to.
func (a ModerationAction) TargetState() (State, bool) {
	switch a {
	case ActionPublish:
		return StatePublished, true
	case ActionUnpublish:
		return StateUnpublished, true
	case ActionTrash:
		return StateTrashed, true
	}
	return "", false
}

// Question is the root of a thread. Its ID is the thread ID.
type Question struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	AuthorID  int64     `json:"author_id"`
	VotesUp   int       `json:"votes_up"`
	VotesDown int       `json:"votes_down"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer is a reply within a thread.
type Answer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	AuthorID   int64     `json:"author_id"`
	Body       string    `json:"body"`
	IsBest     bool      `json:"is_best"`
	VotesUp    int       `json:"votes_up"`
	VotesDown  int       `json:"votes_down"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}
