package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type Storage struct {
	db *sql.DB
}

var _ storages.AccountStore = (*Storage)(nil)

func (s *Storage) CreateUser(ctx context.Context, username, hashedPassword, salt string, registeredAt time.Time) (domain.Principal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to begin transaction for register")
		return domain.Principal{}, err
	}
	defer tx.Rollback()

	// The table lock keeps the existence check and max(id)+1 stable until commit.
	if _, err := tx.ExecContext(ctx, "LOCK TABLE users IN EXCLUSIVE MODE"); err != nil {
		logrus.WithError(err).Error("failed to lock users table")
		return domain.Principal{}, err
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = $1", username).Scan(&exists)
	if err != nil {
		logrus.WithError(err).Error("failed to check user existence")
		return domain.Principal{}, err
	}
	if exists > 0 {
		logrus.WithField("username", username).Error("username already exists")
		return domain.Principal{}, fmt.Errorf("%w: %s", domain.ErrUserExists, username)
	}

	var nextID int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM users").Scan(&nextID); err != nil {
		logrus.WithError(err).Error("failed to compute next user id")
		return domain.Principal{}, err
	}

	user := domain.Principal{
		UserID:           nextID,
		Username:         username,
		HashedPassword:   hashedPassword,
		Salt:             salt,
		RegistrationDate: registeredAt.UTC(),
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO users (id, username, password_hash, salt, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		user.UserID, user.Username, user.HashedPassword, user.Salt, user.RegistrationDate)
	if isUniqueViolation(err) {
		return domain.Principal{}, fmt.Errorf("%w: %s", domain.ErrUserExists, username)
	}
	if err != nil {
		logrus.WithField("username", username).WithError(err).Error("failed to register user")
		return domain.Principal{}, err
	}

	if err := tx.Commit(); err != nil {
		logrus.WithError(err).Error("failed to commit register transaction")
		return domain.Principal{}, err
	}

	logrus.WithFields(logrus.Fields{
		"username": username,
		"user_id":  user.UserID,
	}).Info("user registered in database")
	return user, nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (domain.Principal, error) {
	var user domain.Principal
	err := s.db.QueryRowContext(ctx, `
        SELECT id, username, password_hash, salt, created_at
        FROM users
        WHERE `+where,
		arg).Scan(&user.UserID, &user.Username, &user.HashedPassword, &user.Salt, &user.RegistrationDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithField("lookup", arg).Warn("user not found")
			return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUserNotFound, arg)
		}
		logrus.WithField("lookup", arg).WithError(err).Error("failed to get user")
		return domain.Principal{}, err
	}
	return user, nil
}

func (s *Storage) GetUserByName(ctx context.Context, username string) (domain.Principal, error) {
	return s.getUser(ctx, "username = $1", username)
}

func (s *Storage) GetUserByID(ctx context.Context, userID int64) (domain.Principal, error) {
	return s.getUser(ctx, "id = $1", userID)
}

func (s *Storage) RenameUser(ctx context.Context, userID int64, username string) error {
	probe := domain.Principal{UserID: userID}
	if err := probe.Rename(username); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE users SET username = $1 WHERE id = $2", probe.Username, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserExists, probe.Username)
		}
		logrus.WithField("user_id", userID).WithError(err).Error("failed to rename user")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id=%d", domain.ErrUserNotFound, userID)
	}
	return nil
}

func (s *Storage) LoadPortfolio(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT currency, amount
        FROM balances
        WHERE user_id = $1`,
		userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("failed to query balances")
		return nil, err
	}
	defer rows.Close()

	p := domain.NewPortfolio(userID)
	for rows.Next() {
		var (
			currency string
			amount   decimal.Decimal
		)
		if err := rows.Scan(&currency, &amount); err != nil {
			logrus.WithField("user_id", userID).WithError(err).Error("failed to scan balance")
			return nil, err
		}
		p.Wallets[currency] = &domain.Wallet{CurrencyCode: currency, Balance: amount}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePortfolio replaces every balance row of the user in one transaction.
func (s *Storage) SavePortfolio(ctx context.Context, portfolio *domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to begin transaction for portfolio save")
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM balances WHERE user_id = $1", portfolio.UserID); err != nil {
		logrus.WithField("user_id", portfolio.UserID).WithError(err).Error("failed to clear balances")
		return err
	}

	for _, code := range portfolio.Codes() {
		w := portfolio.Wallets[code]
		_, err = tx.ExecContext(ctx, `
            INSERT INTO balances (user_id, currency, amount)
            VALUES ($1, $2, $3)`,
			portfolio.UserID, code, w.Balance)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":  portfolio.UserID,
				"currency": code,
				"amount":   w.Balance.String(),
			}).WithError(err).Error("failed to write balance")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		logrus.WithError(err).Error("failed to commit portfolio transaction")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": portfolio.UserID,
		"wallets": len(portfolio.Wallets),
	}).Debug("portfolio saved in database")
	return nil
}
