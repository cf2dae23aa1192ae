package domain

import "time"

// NotificationType classifies outbound notifications.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
	NotificationAdmin   NotificationType = "admin"
)

// NotificationStatus tracks delivery lifecycle. Transitions are monotonic:
// pending is the only non-terminal state.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCancelled NotificationStatus = "cancelled"
)

// Terminal reports whether no further status transitions are allowed.
func (s NotificationStatus) Terminal() bool {
	return s != NotificationPending
}

// Notification is a unit of outbound communication, either targeted at one
// user or broadcast to all active users.
type Notification struct {
	ID           int64
	UserID       *int64
	Title        string
	Message      string
	Type         NotificationType
	Status       NotificationStatus
	ScheduledAt  time.Time
	SentAt       *time.Time
	ErrorMessage string
	IsBroadcast  bool
	Priority     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
