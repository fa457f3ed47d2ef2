package storages

import (
	"context"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

// AccountStore persists principals and their portfolios.
type AccountStore interface {
	// CreateUser assigns user_id = max(existing)+1 and fails with
	// domain.ErrUserExists on a duplicate username.
	CreateUser(ctx context.Context, username, hashedPassword, salt string, registeredAt time.Time) (domain.Principal, error)
	GetUserByName(ctx context.Context, username string) (domain.Principal, error)
	GetUserByID(ctx context.Context, userID int64) (domain.Principal, error)
	RenameUser(ctx context.Context, userID int64, username string) error
	// LoadPortfolio returns an empty portfolio when none is stored.
	LoadPortfolio(ctx context.Context, userID int64) (*domain.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio *domain.Portfolio) error
}

// SessionMarker is the resumable login state.
type SessionMarker struct {
	UserID   *int64    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	LoggedAt time.Time `json:"logged_at,omitempty"`
}

type SessionStore interface {
	LoadSession(ctx context.Context) (SessionMarker, error)
	SaveSession(ctx context.Context, marker SessionMarker) error
	ClearSession(ctx context.Context) error
}
