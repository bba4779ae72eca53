package domain

import "time"

// Agent models a support operator eligible to be bound to sessions.
//
// CurrentLoad counts the agent's ACTIVE sessions and never exceeds
// MaxConcurrentChats. An empty Capabilities set means the agent services
// every category.
type Agent struct {
	ID                 string
	UserID             string
	Email              string
	PasswordHash       string
	DisplayName        string
	IsOnline           bool
	OnlineSince        *time.Time
	Capabilities       []string
	CurrentLoad        int
	MaxConcurrentChats int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanService reports whether the agent's capability set covers the category.
func (a *Agent) CanService(category string) bool {
	if len(a.Capabilities) == 0 {
		return true
	}
	for _, c := range a.Capabilities {
		if c == category {
			return true
		}
	}
	return false
}

// HasSpareCapacity reports whether another session may be bound.
func (a *Agent) HasSpareCapacity() bool {
	return a.CurrentLoad < a.MaxConcurrentChats
}
