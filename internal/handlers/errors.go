package handlers

import (
	"errors"
	"net/http"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	var (
		notFound *domain.CurrencyNotFoundError
		funds    *domain.InsufficientFundsError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &funds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotLoggedIn),
		errors.Is(err, domain.ErrAuthentication),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAllSourcesUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateUnavailable), errors.Is(err, domain.ErrInvalidCachedRate):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its kind; insufficient funds keep their amounts.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"kind": domain.ErrorKind(err)}
	if status == http.StatusInternalServerError {
		body["error"] = "Internal server error"
	} else {
		body["error"] = err.Error()
	}

	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		body["currency"] = funds.Code
		body["available"] = funds.Available.String()
		body["required"] = funds.Required.String()
	}
	c.JSON(status, body)
}
