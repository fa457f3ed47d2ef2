package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/dgrijalva/jwt-go"
)

// TokenIssuer signs HS256 tokens carrying the principal id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) IssueToken(sess Session) (string, error) {
	userID, err := sess.UserID()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  strconv.FormatInt(userID, 10),
		"username": sess.Username(),
		"exp":      time.Now().Add(t.ttl).Unix(),
	})
	return token.SignedString(t.secret)
}

// UserIDFromToken verifies tokenStr and returns the principal id it carries.
func (t *TokenIssuer) UserIDFromToken(tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: invalid token claims", domain.ErrAuthentication)
	}
	raw, _ := claims["user_id"].(string)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: invalid user_id claim", domain.ErrAuthentication)
	}
	return userID, nil
}
