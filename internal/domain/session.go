package domain

import "time"

// SessionStatus enumerates lifecycle states for chat sessions.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "WAITING"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusResolved SessionStatus = "RESOLVED"
	SessionStatusClosed   SessionStatus = "CLOSED"
)

// SessionPriority enumerates queue urgency.
type SessionPriority string

const (
	SessionPriorityLow    SessionPriority = "LOW"
	SessionPriorityMedium SessionPriority = "MEDIUM"
	SessionPriorityHigh   SessionPriority = "HIGH"
	SessionPriorityUrgent SessionPriority = "URGENT"
)

// Rank returns the ordinal used for queue ordering; higher is more urgent.
func (p SessionPriority) Rank() int {
	switch p {
	case SessionPriorityUrgent:
		return 4
	case SessionPriorityHigh:
		return 3
	case SessionPriorityMedium:
		return 2
	case SessionPriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether the priority is a known value.
func (p SessionPriority) Valid() bool {
	return p.Rank() > 0
}

// CloseReason records why a session ended.
type CloseReason string

const (
	CloseReasonCustomer CloseReason = "customer_closed"
	CloseReasonAgent    CloseReason = "agent_closed"
	CloseReasonTimedOut CloseReason = "timed_out"
)

// Session is the aggregate for one customer-support conversation.
//
// AgentID is non-nil exactly while the status is ACTIVE or RESOLVED; a
// CLOSED session keeps the last bound agent for audit but accepts no
// further mutation. Rating and Feedback may only be set once, on the
// transition into CLOSED.
type Session struct {
	ID            string
	PublicID      string
	CustomerID    *string
	TenantID      *string
	AgentID       *string
	Status        SessionStatus
	Category      string
	Priority      SessionPriority
	CloseReason   *CloseReason
	Rating        *int
	Feedback      *string
	CreatedAt     time.Time
	LastMessageAt time.Time
	ClosedAt      *time.Time
}
