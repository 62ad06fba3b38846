package model

import "time"

// VoteRecord is one user's current vote on one subject.
type VoteRecord struct {
	SubjectID   int64       `json:"subject_id"`
	SubjectType SubjectType `json:"subject_type"`
	UserID      int64       `json:"user_id"`
	Value       int         `json:"value"`
	CreatedAt   time.Time   `json:"created_at"`
}

// VoteCounts are the denormalized counters kept on a subject row.
type VoteCounts struct {
	Up   int `json:"votes_up"`
	Down int `json:"votes_down"`
}

// Score returns up minus down.
func (c VoteCounts) Score() int {
	return c.Up - c.Down
}

// VoteSubject is the locked view of a votable row used by the ledger.
type VoteSubject struct {
	Type     SubjectType
	ID       int64
	ThreadID int64
	AuthorID int64
	Counts   VoteCounts
}

// VoteAction describes what a cast did to the voter's record.
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteRemoved VoteAction = "removed"
	VoteChanged VoteAction = "changed"
)

// ValidVoteValue reports whether v is an up or down vote.
func ValidVoteValue(v int) bool {
	return v == 1 || v == -1
}
