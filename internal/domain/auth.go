package domain

import "time"

// SubjectType differentiates visitor vs agent tokens.
type SubjectType string

const (
	SubjectTypeVisitor SubjectType = "VISITOR"
	SubjectTypeAgent   SubjectType = "AGENT"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	SessionID *string
	ExpiresAt time.Time
	IssuedAt  time.Time
}
