package models

// Identity is the authenticated principal a request acts on behalf of.
type Identity interface {
	UserID() int64
	IsAuthenticated() bool
}

// SessionIdentity is the Identity resolved from a session token.
type SessionIdentity struct {
	ID       int64
	Username string
	Token    string
	// Renewed reports whether resolving the identity extended the session.
	Renewed bool
}

func (s *SessionIdentity) UserID() int64 {
	if s == nil {
		return 0
	}
	return s.ID
}

func (s *SessionIdentity) IsAuthenticated() bool {
	return s != nil && s.ID > 0
}
