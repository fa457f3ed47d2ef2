package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/audit"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 4

type Service struct {
	users    storages.AccountStore
	sessions storages.SessionStore
	audit    audit.Sink
	metrics  *metrics.WalletMetrics
	cost     int
	now      func() time.Time
}

// NewService builds the credential service. sessions may be nil when the
// caller keeps sessions itself (HTTP tokens).
func NewService(users storages.AccountStore, sessions storages.SessionStore, sink audit.Sink, m *metrics.WalletMetrics, bcryptCost int) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:    users,
		sessions: sessions,
		audit:    sink,
		metrics:  m,
		cost:     bcryptCost,
		now:      time.Now,
	}
}

func (s *Service) record(action string, userID int64, username string, err error) {
	s.audit.Record(audit.NewEvent(action, userID, username, "", decimal.Zero, err))
	s.metrics.RecordOperation(action, "", 0, domain.ErrorKind(err))
}

// Register creates a principal with an empty portfolio.
func (s *Service) Register(ctx context.Context, username, password string) (user domain.Principal, err error) {
	username = strings.TrimSpace(username)
	defer func() { s.record("register", user.UserID, username, err) }()

	if username == "" {
		return domain.Principal{}, fmt.Errorf("%w: username must not be empty", domain.ErrValidation)
	}
	if len(password) < MinPasswordLength {
		return domain.Principal{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}

	salt, err := newSalt()
	if err != nil {
		return domain.Principal{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password+salt), s.cost)
	if err != nil {
		logrus.WithError(err).Error("failed to hash password")
		return domain.Principal{}, err
	}

	user, err = s.users.CreateUser(ctx, username, string(hash), salt, s.now())
	if err != nil {
		return domain.Principal{}, err
	}
	if err := s.users.SavePortfolio(ctx, domain.NewPortfolio(user.UserID)); err != nil {
		return domain.Principal{}, fmt.Errorf("create portfolio: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": user.Username,
		"user_id":  user.UserID,
	}).Info("user registered")
	return user, nil
}

// Login checks credentials and, when a session store is set, persists the
// session marker.
func (s *Service) Login(ctx context.Context, username, password string) (sess Session, err error) {
	username = strings.TrimSpace(username)
	defer func() { s.record("login", sess.userID, username, err) }()

	if username == "" {
		return Session{}, fmt.Errorf("%w: username must not be empty", domain.ErrValidation)
	}

	user, err := s.users.GetUserByName(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password+user.Salt)) != nil {
		logrus.WithField("username", username).Warn("wrong password")
		return Session{}, fmt.Errorf("%w: wrong password", domain.ErrAuthentication)
	}

	now := s.now().UTC()
	if s.sessions != nil {
		id := user.UserID
		marker := storages.SessionMarker{UserID: &id, Username: user.Username, LoggedAt: now}
		if err := s.sessions.SaveSession(ctx, marker); err != nil {
			return Session{}, fmt.Errorf("save session: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"username": user.Username,
		"user_id":  user.UserID,
	}).Info("login successful")
	return newSession(user, now), nil
}

// Logout drops the persisted session. Logging out an anonymous session is
// not an error.
func (s *Service) Logout(ctx context.Context, sess Session) error {
	var err error
	if s.sessions != nil {
		err = s.sessions.ClearSession(ctx)
	}
	s.record("logout", sess.userID, sess.username, err)
	return err
}

// Current resumes the session stored by the last Login. A missing marker, a
// marker without user_id or one pointing at a deleted user is anonymous.
func (s *Service) Current(ctx context.Context) (Session, error) {
	if s.sessions == nil {
		return AnonymousSession(), nil
	}
	marker, err := s.sessions.LoadSession(ctx)
	if err != nil {
		return Session{}, err
	}
	if marker.UserID == nil {
		return AnonymousSession(), nil
	}

	user, err := s.users.GetUserByID(ctx, *marker.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		logrus.WithField("user_id", *marker.UserID).Warn("session refers to unknown user")
		return AnonymousSession(), nil
	}
	if err != nil {
		return Session{}, err
	}
	return newSession(user, marker.LoggedAt), nil
}

// Resume returns an authenticated session for a user id taken from a
// verified token.
func (s *Service) Resume(ctx context.Context, userID int64) (Session, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return newSession(user, s.now().UTC()), nil
}

// Rename changes the username of the session's principal and keeps the
// persisted session marker in step.
func (s *Service) Rename(ctx context.Context, sess Session, username string) (renamed Session, err error) {
	username = strings.TrimSpace(username)
	defer func() { s.record("rename", sess.userID, username, err) }()

	userID, err := sess.UserID()
	if err != nil {
		return Session{}, err
	}
	if err := s.users.RenameUser(ctx, userID, username); err != nil {
		return Session{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}

	if s.sessions != nil {
		marker := storages.SessionMarker{UserID: &userID, Username: user.Username, LoggedAt: sess.loggedAt}
		if err := s.sessions.SaveSession(ctx, marker); err != nil {
			return Session{}, fmt.Errorf("save session: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"previous": sess.username,
		"username": user.Username,
	}).Info("user renamed")
	return newSession(user, sess.loggedAt), nil
}

func newSalt() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
