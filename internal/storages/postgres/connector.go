package postgres

import (
	"context"
	"database/sql"

	"github.com/Krchnk/valutatrade-wallet/internal/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGINT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    salt          TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS balances (
    user_id  BIGINT NOT NULL REFERENCES users(id),
    currency TEXT NOT NULL,
    amount   NUMERIC(30, 8) NOT NULL CHECK (amount >= 0),
    PRIMARY KEY (user_id, currency)
);`

func NewStorage(ctx context.Context, cfg config.DBConfig) (*Storage, error) {
	connStr := cfg.ConnectionString()
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logrus.WithError(err).Error("failed to open database connection")
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		logrus.WithError(err).Error("failed to ping database")
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		logrus.WithError(err).Error("failed to apply schema")
		db.Close()
		return nil, err
	}

	logrus.Info("database connection established")
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
