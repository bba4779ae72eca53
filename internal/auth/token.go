package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens for both the
// agent console and the customer widget. Visitor tokens are scoped to a
// single session; agent tokens identify the operator.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes the JWT payload.
type Claims struct {
	SubjectID string             `json:"sub_id"`
	Subject   domain.SubjectType `json:"subject"`
	SessionID *string            `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAgentToken signs a console token for the agent.
func (tm *TokenManager) GenerateAgentToken(agentID string) (string, time.Time, error) {
	return tm.generate(agentID, domain.SubjectTypeAgent, nil)
}

// GenerateVisitorToken signs a widget token bound to one session. The
// visitor id may be empty for anonymous sessions.
func (tm *TokenManager) GenerateVisitorToken(visitorID, sessionPublicID string) (string, time.Time, error) {
	return tm.generate(visitorID, domain.SubjectTypeVisitor, &sessionPublicID)
}

func (tm *TokenManager) generate(subjectID string, subject domain.SubjectType, sessionID *string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.ttl)
	claims := &Claims{
		SubjectID: subjectID,
		Subject:   subject,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
