package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classattend/internal/attendance"
)

// Claims represents the identity token payload. The subject is the account id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity carried by the token.
func (c Claims) Identity() attendance.Identity {
	return attendance.Identity{AccountID: c.Subject, Email: c.Email, DisplayName: c.Name}
}

// Issue signs an access token for who. Used by the dev tooling and tests;
// production tokens come from the identity provider.
func Issue(who attendance.Identity, role, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	if who.AccountID == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Email: who.Email,
		Name:  who.DisplayName,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   who.AccountID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("token has no subject")
	}
	return *claims, nil
}
