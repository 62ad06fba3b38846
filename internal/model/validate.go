package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

const (
	maxTitleLength  = 300
	minAnswerLength = 10
	maxAnswerLength = 30000
)

// ValidateQuestion checks a question before it is stored.
func ValidateQuestion(q *Question) error {
	var ve ValidationError

	title := strings.TrimSpace(q.Title)
	if title == "" {
		ve.add("title", "is required")
	} else if len([]rune(title)) > maxTitleLength {
		ve.add("title", "must be %d characters or fewer", maxTitleLength)
	}
	if q.AuthorID <= 0 {
		ve.add("author_id", "is required")
	}
	if q.State != "" && !q.State.IsValid() {
		ve.add("state", "invalid value %q", q.State)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateAnswer checks an answer before it is stored.
func ValidateAnswer(a *Answer) error {
	var ve ValidationError

	n := len([]rune(strings.TrimSpace(a.Body)))
	switch {
	case n == 0:
		ve.add("body", "is required")
	case n < minAnswerLength:
		ve.add("body", "must be at least %d characters", minAnswerLength)
	case n > maxAnswerLength:
		ve.add("body", "must be %d characters or fewer", maxAnswerLength)
	}
	if a.QuestionID <= 0 {
		ve.add("question_id", "is required")
	}
	if a.AuthorID <= 0 {
		ve.add("author_id", "is required")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
