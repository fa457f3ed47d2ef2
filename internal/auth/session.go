package auth

import (
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "AUTHENTICATED"
	}
	return "ANONYMOUS"
}

// Session binds at most one principal. The zero value is anonymous.
type Session struct {
	state    State
	userID   int64
	username string
	loggedAt time.Time
}

func AnonymousSession() Session { return Session{} }

func newSession(user domain.Principal, loggedAt time.Time) Session {
	return Session{
		state:    Authenticated,
		userID:   user.UserID,
		username: user.Username,
		loggedAt: loggedAt,
	}
}

func (s Session) State() State { return s.state }

func (s Session) IsAuthenticated() bool { return s.state == Authenticated }

// UserID returns domain.ErrNotLoggedIn for an anonymous session.
func (s Session) UserID() (int64, error) {
	if s.state != Authenticated {
		return 0, domain.ErrNotLoggedIn
	}
	return s.userID, nil
}

func (s Session) Username() string { return s.username }

func (s Session) LoggedAt() time.Time { return s.loggedAt }
