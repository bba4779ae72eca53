package domain

import "time"

// SenderType indicates who authored a chat message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "CUSTOMER"
	SenderTypeAgent    SenderType = "AGENT"
	SenderTypeSystem   SenderType = "SYSTEM"
)

// PartyRole identifies one side of a conversation for read tracking.
type PartyRole string

const (
	PartyRoleCustomer PartyRole = "customer"
	PartyRoleAgent    PartyRole = "agent"
)

// Message is one immutable entry in a session's append-only log.
//
// Seq is assigned by the store, monotonic and gapless within a session,
// and is the source of truth for ordering. CreatedAt is display-only.
type Message struct {
	Seq        int64
	SessionID  string
	SenderID   *string
	SenderType SenderType
	SenderName string
	Body       string
	ClientKey  *string
	ReadBy     []PartyRole
	CreatedAt  time.Time
}

// ReadByRole reports whether the given role has acknowledged the message.
func (m *Message) ReadByRole(role PartyRole) bool {
	for _, r := range m.ReadBy {
		if r == role {
			return true
		}
	}
	return false
}
