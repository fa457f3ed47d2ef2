package jsonfile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

/*
Documents

users.json       [{user_id, username, hashed_password, salt, registration_date}]
portfolios.json  [{user_id, wallets: {CODE: {currency_code, balance}}}]
session.json     {user_id, username, logged_at} or {}

Every mutation rewrites the whole document through WriteAtomic.
*/

type walletDoc struct {
	CurrencyCode string  `json:"currency_code"`
	Balance      float64 `json:"balance"`
}

type portfolioDoc struct {
	UserID  int64                `json:"user_id"`
	Wallets map[string]walletDoc `json:"wallets"`
}

type Store struct {
	usersPath      string
	portfoliosPath string
	sessionPath    string

	mu sync.Mutex
}

var (
	_ storages.AccountStore = (*Store)(nil)
	_ storages.SessionStore = (*Store)(nil)
)

func NewStore(usersPath, portfoliosPath, sessionPath string) *Store {
	return &Store{
		usersPath:      usersPath,
		portfoliosPath: portfoliosPath,
		sessionPath:    sessionPath,
	}
}

func (s *Store) loadUsers() ([]domain.Principal, error) {
	var users []domain.Principal
	if _, err := ReadJSON(s.usersPath, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, username, hashedPassword, salt string, registeredAt time.Time) (domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		logrus.WithError(err).Error("failed to load users")
		return domain.Principal{}, err
	}

	var maxID int64
	for _, u := range users {
		if u.Username == username {
			logrus.WithField("username", username).Error("username already exists")
			return domain.Principal{}, fmt.Errorf("%w: %s", domain.ErrUserExists, username)
		}
		if u.UserID > maxID {
			maxID = u.UserID
		}
	}

	user := domain.Principal{
		UserID:           maxID + 1,
		Username:         username,
		HashedPassword:   hashedPassword,
		Salt:             salt,
		RegistrationDate: registeredAt.UTC(),
	}
	users = append(users, user)
	if err := WriteAtomic(s.usersPath, users); err != nil {
		logrus.WithField("username", username).WithError(err).Error("failed to save users")
		return domain.Principal{}, err
	}

	logrus.WithFields(logrus.Fields{
		"username": username,
		"user_id":  user.UserID,
	}).Debug("user registered in users document")
	return user, nil
}

func (s *Store) GetUserByName(ctx context.Context, username string) (domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		return domain.Principal{}, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.Principal{}, fmt.Errorf("%w: '%s'", domain.ErrUserNotFound, username)
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		return domain.Principal{}, err
	}
	for _, u := range users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return domain.Principal{}, fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
}

func (s *Store) RenameUser(ctx context.Context, userID int64, username string) error {
	username = strings.TrimSpace(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	idx := -1
	for i, u := range users {
		if u.Username == username && u.UserID != userID {
			return fmt.Errorf("%w: %s", domain.ErrUserExists, username)
		}
		if u.UserID == userID {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
	}
	if err := users[idx].Rename(username); err != nil {
		return err
	}
	return WriteAtomic(s.usersPath, users)
}

func (s *Store) loadPortfolios() ([]portfolioDoc, error) {
	var docs []portfolioDoc
	if _, err := ReadJSON(s.portfoliosPath, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) LoadPortfolio(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadPortfolios()
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("failed to load portfolios")
		return nil, err
	}
	p := domain.NewPortfolio(userID)
	for _, doc := range docs {
		if doc.UserID != userID {
			continue
		}
		for code, w := range doc.Wallets {
			if w.Balance < 0 {
				return nil, fmt.Errorf("corrupt portfolio for user %d: negative %s balance", userID, code)
			}
			p.Wallets[code] = &domain.Wallet{
				CurrencyCode: code,
				Balance:      decimal.NewFromFloat(w.Balance),
			}
		}
		break
	}
	return p, nil
}

func (s *Store) SavePortfolio(ctx context.Context, portfolio *domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadPortfolios()
	if err != nil {
		return err
	}
	doc := portfolioDoc{UserID: portfolio.UserID, Wallets: make(map[string]walletDoc, len(portfolio.Wallets))}
	for code, w := range portfolio.Wallets {
		doc.Wallets[code] = walletDoc{CurrencyCode: code, Balance: w.Balance.InexactFloat64()}
	}

	replaced := false
	for i := range docs {
		if docs[i].UserID == portfolio.UserID {
			docs[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, doc)
	}

	if err := WriteAtomic(s.portfoliosPath, docs); err != nil {
		logrus.WithField("user_id", portfolio.UserID).WithError(err).Error("failed to save portfolio")
		return err
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context) (storages.SessionMarker, error) {
	var marker storages.SessionMarker
	if _, err := ReadJSON(s.sessionPath, &marker); err != nil {
		return storages.SessionMarker{}, err
	}
	return marker, nil
}

func (s *Store) SaveSession(ctx context.Context, marker storages.SessionMarker) error {
	return WriteAtomic(s.sessionPath, marker)
}

func (s *Store) ClearSession(ctx context.Context) error {
	return WriteAtomic(s.sessionPath, struct{}{})
}
