package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInvalidAmount       = fmt.Errorf("%w: 'amount' must be a positive number", ErrValidation)
	ErrAmountPrecision     = fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountPrecision)
	ErrValueTooSmall       = fmt.Errorf("%w: USD value rounds to zero", ErrValidation)
	ErrInvalidCurrencyCode = fmt.Errorf("%w: currency code must be 2-5 letters", ErrValidation)

	ErrAuthentication = errors.New("authentication failed")
	ErrNotLoggedIn    = errors.New("not logged in: run login first")
	ErrUserExists     = errors.New("username already taken")
	ErrUserNotFound   = errors.New("user not found")

	ErrSourceUnavailable     = errors.New("rate source unavailable")
	ErrAllSourcesUnavailable = errors.New("failed to update rates: all sources are unavailable")

	// ErrRateUnavailable is the class of errors meaning "no usable rate right now".
	ErrRateUnavailable   = errors.New("rate unavailable")
	ErrRatesUnavailable  = fmt.Errorf("%w: rates cache is empty, run update-rates", ErrRateUnavailable)
	ErrStaleRate         = fmt.Errorf("%w: rates cache is stale, run update-rates", ErrRateUnavailable)
	ErrRateNotFound      = fmt.Errorf("%w: no rate for pair", ErrRateUnavailable)
	ErrInvalidCachedRate = errors.New("invalid cached rate")
)

// CurrencyNotFoundError is returned for codes missing from the registry.
type CurrencyNotFoundError struct {
	Code string
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("unknown currency '%s'", e.Code)
}

// InsufficientFundsError carries the wallet state at the time of the refused debit.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
	Code      string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, required %s %s",
		e.Available.String(), e.Code, e.Required.String(), e.Code)
}

type StaleRateError struct {
	LastRefresh time.Time
	Age         time.Duration
	TTL         time.Duration
}

func (e *StaleRateError) Error() string {
	return fmt.Sprintf("rates cache is stale (last refresh %s, age %s, ttl %s): run update-rates",
		e.LastRefresh.UTC().Format(time.RFC3339), e.Age.Truncate(time.Second), e.TTL)
}

func (e *StaleRateError) Is(target error) bool {
	return target == ErrStaleRate || target == ErrRateUnavailable
}

// SourceError wraps a failure of a single rate source.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnavailable, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// ErrorKind names the class of err for audit records and metrics labels.
func ErrorKind(err error) string {
	var (
		notFound *CurrencyNotFoundError
		funds    *InsufficientFundsError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return "CurrencyNotFoundError"
	case errors.As(err, &funds):
		return "InsufficientFundsError"
	case errors.Is(err, ErrNotLoggedIn):
		return "NotLoggedInError"
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrUserNotFound):
		return "AuthenticationError"
	case errors.Is(err, ErrUserExists):
		return "UserExistsError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrStaleRate):
		return "StaleRateError"
	case errors.Is(err, ErrInvalidCachedRate):
		return "InvalidCachedRate"
	case errors.Is(err, ErrAllSourcesUnavailable):
		return "AllSourcesUnavailable"
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, ErrRateUnavailable):
		return "ApiRequestError"
	default:
		return "UnexpectedError"
	}
}
