// Package notify defines the outbound collaborators that receive accounting side effects.
package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Notification asks the notification collaborator to alert a user.
type Notification struct {
	UserID  uint64 `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// SystemComment asks the comment collaborator to record an audit note on a request.
type SystemComment struct {
	RequestID uint64 `json:"request_id"`
	UserID    uint64 `json:"user_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

// Comment types.
const (
	CommentTypeRevision = "revision"
	CommentTypeCreated  = "created"
)

// Notifier delivers user notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, n Notification) error
}

// Commenter records system comments.
type Commenter interface {
	CreateSystemComment(ctx context.Context, c SystemComment) error
}

// LogSink implements Notifier and Commenter by logging.
type LogSink struct{}

// CreateNotification logs the notification.
func (LogSink) CreateNotification(_ context.Context, n Notification) error {
	log.WithFields(log.Fields{
		"user_id": n.UserID,
		"title":   n.Title,
		"link":    n.Link,
	}).Info(n.Message)
	return nil
}

// CreateSystemComment logs the comment.
func (LogSink) CreateSystemComment(_ context.Context, c SystemComment) error {
	log.WithFields(log.Fields{
		"request_id": c.RequestID,
		"user_id":    c.UserID,
		"type":       c.Type,
	}).Info(c.Content)
	return nil
}

// Dispatch runs a side effect and swallows its failure. A panic is recovered
// and logged like an error. It reports whether fn succeeded.
func Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("effect", name).WithError(fmt.Errorf("panic: %v", r)).Warn("notify: side effect failed")
			ok = false
		}
	}()
	if errRun := fn(ctx); errRun != nil {
		log.WithField("effect", name).WithError(errRun).Warn("notify: side effect failed")
		return false
	}
	return true
}
