package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
)

// usageError is a malformed command line. It exits with code 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Describe turns err into the line shown to the user. Codes and amounts
// carried by typed errors are kept.
func Describe(err error) string {
	var (
		notFound *domain.CurrencyNotFoundError
		funds    *domain.InsufficientFundsError
		stale    *domain.StaleRateError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return fmt.Sprintf("Error: unknown currency '%s'", notFound.Code)
	case errors.As(err, &funds):
		return fmt.Sprintf("Error: insufficient funds: available %s %s, required %s %s",
			funds.Available.StringFixed(domain.AmountPrecision), funds.Code,
			funds.Required.StringFixed(domain.AmountPrecision), funds.Code)
	case errors.Is(err, domain.ErrNotLoggedIn):
		return "Error: you are not logged in, run login first"
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrUserNotFound):
		return "Authentication error: " + err.Error()
	case errors.Is(err, domain.ErrUserExists):
		return "Error: " + err.Error()
	case errors.Is(err, domain.ErrValidation):
		return "Validation error: " + strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	case errors.As(err, &stale):
		return "Rates error: " + stale.Error()
	case errors.Is(err, domain.ErrAllSourcesUnavailable):
		return "Rates update failed: all sources are unavailable"
	case errors.Is(err, domain.ErrRateUnavailable), errors.Is(err, domain.ErrInvalidCachedRate):
		return "Rates error: " + err.Error()
	default:
		return "Unexpected error: " + err.Error()
	}
}
