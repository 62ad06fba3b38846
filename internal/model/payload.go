package model

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Payload is the typed body of an event. The concrete type is selected by
// the event type; see DecodePayload.
type Payload interface {
	EventType() EventType
}

// NewAnswerPayload announces an answer posted to the thread.
type NewAnswerPayload struct {
	AnswerID int64  `json:"answer_id"`
	AuthorID int64  `json:"author_id"`
	Excerpt  string `json:"excerpt"`
}

// VotePayload carries the absolute counter totals after a vote was applied.
// Consumers must render VotesUp/VotesDown and never accumulate Delta.
type VotePayload struct {
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   int64       `json:"subject_id"`
	Delta       int         `json:"delta"`
	VotesUp     int         `json:"votes_up"`
	VotesDown   int         `json:"votes_down"`
}

// QuestionUpdatePayload reports an edit to the question.
type QuestionUpdatePayload struct {
	QuestionID int64    `json:"question_id"`
	Title      string   `json:"title,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// ModerationPayload reports a moderation action on a question or answer.
type ModerationPayload struct {
	SubjectType SubjectType      `json:"subject_type"`
	SubjectID   int64            `json:"subject_id"`
	Action      ModerationAction `json:"action"`
	Reason      string           `json:"reason,omitempty"`
}

// BestAnswerPayload reports a change of the accepted answer.
type BestAnswerPayload struct {
	AnswerID         int64 `json:"answer_id"`
	PreviousAnswerID int64 `json:"previous_answer_id,omitempty"`
}

// RawPayload holds the body of an event type this build does not know.
type RawPayload struct {
	Type EventType
	Data json.RawMessage
}

func (NewAnswerPayload) EventType() EventType      { return EventNewAnswer }
func (VotePayload) EventType() EventType           { return EventVoteUpdate }
func (QuestionUpdatePayload) EventType() EventType { return EventQuestionUpdate }
func (ModerationPayload) EventType() EventType     { return EventModeration }
func (BestAnswerPayload) EventType() EventType     { return EventBestAnswer }
func (p RawPayload) EventType() EventType          { return p.Type }

// DecodePayload unmarshals raw into the payload type registered for typ.
// Unknown and marker types decode to RawPayload.
func DecodePayload(typ EventType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var (
		p   Payload
		err error
	)
	switch typ {
	case EventNewAnswer:
		var v NewAnswerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventVoteUpdate:
		var v VotePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventQuestionUpdate:
		var v QuestionUpdatePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventModeration:
		var v ModerationPayload
		err = json.Unmarshal(raw, &v)
		if v.Action == "" {
			v.Action = ActionUnknown
		}
		p = v
	case EventBestAnswer:
		var v BestAnswerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return RawPayload{Type: typ, Data: raw}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", typ, err)
	}
	return p, nil
}

// ExcerptLength is the maximum number of runes kept by Excerpt.
const ExcerptLength = 200

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Excerpt strips markup from body, collapses whitespace, and truncates the
// result to ExcerptLength runes.
func Excerpt(body string) string {
	s := html.UnescapeString(tagPattern.ReplaceAllString(body, " "))
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= ExcerptLength {
		return s
	}
	return strings.TrimSpace(string(r[:ExcerptLength])) + "..."
}
