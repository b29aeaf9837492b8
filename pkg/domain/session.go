package domain

import "time"

type User struct {
	ID              string `json:"_id"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email"`
	Credits         int    `json:"credits"`
	HasSubscription bool   `json:"hasSubscription"`
	Plan            string `json:"plan,omitempty"`
}

// Session is an authenticated user as seen by the workflow. A nil *Session
// means unauthenticated.
type Session struct {
	Token     string    `json:"-"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Credits returns the known balance, zero for a nil session.
func (s *Session) Credits() int {
	if s == nil {
		return 0
	}
	return s.User.Credits
}
