package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	ResultOK    = "OK"
	ResultError = "ERROR"
)

// Event is one append-only record of a user action.
type Event struct {
	ID        string
	Timestamp time.Time
	Action    string
	UserID    int64
	Username  string
	Currency  string
	Amount    decimal.Decimal
	Result    string
	ErrorKind string
	Message   string
}

// NewEvent builds an event for action; err decides the result fields.
func NewEvent(action string, userID int64, username, currency string, amount decimal.Decimal, err error) Event {
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    userID,
		Username:  username,
		Currency:  currency,
		Amount:    amount,
		Result:    ResultOK,
	}
	if err != nil {
		e.Result = ResultError
		e.ErrorKind = domain.ErrorKind(err)
		e.Message = err.Error()
	}
	return e
}

type Sink interface {
	Record(e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(Event) {}

// Log writes events as JSON lines.
type Log struct {
	logger *logrus.Logger
	closer io.Closer
}

func New(w io.Writer) *Log {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &Log{logger: logger}
}

// Open appends to the file at path, creating it and its directory if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

func (l *Log) Record(e Event) {
	fields := logrus.Fields{
		"id":     e.ID,
		"action": e.Action,
		"result": e.Result,
	}
	if e.UserID != 0 {
		fields["user_id"] = e.UserID
	}
	if e.Username != "" {
		fields["username"] = e.Username
	}
	if e.Currency != "" {
		fields["currency"] = e.Currency
	}
	if !e.Amount.IsZero() {
		fields["amount"] = e.Amount.String()
	}
	if e.ErrorKind != "" {
		fields["error_kind"] = e.ErrorKind
	}

	entry := l.logger.WithFields(fields).WithTime(e.Timestamp)
	if e.Result == ResultError {
		entry.Warn(e.Message)
		return
	}
	entry.Info(e.Message)
}

func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
