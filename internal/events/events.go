// Package events carries append notices between the event log and waiting
// readers. Notices are wake-up hints only; the log stays authoritative.
package events

import (
	"context"
	"errors"
	"strconv"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// SubjectPrefix is the root of every notice subject.
const SubjectPrefix = "threadlive.thread"

// AllThreads matches notices for every thread.
const AllThreads = SubjectPrefix + ".>"

// ThreadSubject returns the subject a notice for typ on threadID is published to,
// e.g. "threadlive.thread.42.vote_update".
func ThreadSubject(threadID int64, typ model.EventType) string {
	return SubjectPrefix + "." + strconv.FormatInt(threadID, 10) + "." + string(typ)
}

// ThreadWildcard matches every notice for threadID.
func ThreadWildcard(threadID int64) string {
	return SubjectPrefix + "." + strconv.FormatInt(threadID, 10) + ".>"
}

// Notice announces that an event was appended to a thread's log.
type Notice struct {
	ThreadID  int64           `json:"thread_id"`
	EventID   int64           `json:"event_id"`
	Type      model.EventType `json:"type"`
	Timestamp int64           `json:"timestamp"`
}

// NoticeFor builds the notice for an appended event.
func NoticeFor(e *model.Event) Notice {
	return Notice{
		ThreadID:  e.ThreadID,
		EventID:   e.ID,
		Type:      e.Type,
		Timestamp: e.CreatedAt.Unix(),
	}
}

// Subject returns the subject n is published on.
func (n Notice) Subject() string {
	return ThreadSubject(n.ThreadID, n.Type)
}

// Publisher is the interface for emitting notices.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// MultiPublisher publishes to every wrapped publisher.
type MultiPublisher []Publisher

// Publish sends event to each publisher and joins their errors.
func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped publisher.
func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
