// Package auth verifies the optional HS256 ticket/first-message token:
// a ticket in the query string or a first JSON message
// {type:"auth", token}.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any missing, malformed, or invalid
// token — the caller always maps it to the UNAUTHORIZED close path,
// never distinguishing the reason to the client.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Verifier checks HS256 JWTs against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier with the given shared secret. An empty
// secret makes every token invalid.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Principal is the subject claim of a verified token.
type Principal struct {
	Subject string
}

// Verify parses and validates tokenString, returning the embedded
// principal on success or ErrUnauthorized otherwise.
func (v *Verifier) Verify(tokenString string) (Principal, error) {
	if tokenString == "" || len(v.secret) == 0 {
		return Principal{}, ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, ErrUnauthorized
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Subject: sub}, nil
}
