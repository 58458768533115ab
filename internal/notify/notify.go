package notify

import (
	"context"
	"log"
	"time"

	"safeline/internal/domain"
	"safeline/internal/repo"
)

// Dispatcher delivers in-app notifications on a best-effort, at-most-once
// basis. Send never returns an error: delivery failures are logged and
// discarded so they cannot block or roll back the transition that triggered
// them.
type Dispatcher struct {
	Repo    repo.Repo
	Enabled bool
	Logger  *log.Logger
	Now     func() time.Time
}

func (d Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Send records one notification for a single user.
func (d Dispatcher) Send(ctx context.Context, userID, title, message string) {
	if !d.Enabled || userID == "" {
		return
	}
	n := domain.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		CreatedAt: d.now().UTC().Format(time.RFC3339),
	}
	if err := d.Repo.InsertNotification(ctx, n); err != nil {
		d.logger().Printf("notify: deliver to %s failed: %v", userID, err)
	}
}

// SendAll fans out to several users, deduplicating recipients.
func (d Dispatcher) SendAll(ctx context.Context, userIDs []string, title, message string) {
	seen := map[string]bool{}
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		d.Send(ctx, id, title, message)
	}
}
