// Package auth issues and checks wallet session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

const issuer = "commonpurse"

type ctxKey struct{}

// Authenticator signs HS256 tokens whose subject is a wallet address. A zero
// secret disables enforcement.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

func (a *Authenticator) Issue(wallet string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("no signing secret configured")
	}

	if wallet == "" {
		return "", errors.New("wallet is required")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   wallet,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// Parse validates a token and returns its wallet subject.
func (a *Authenticator) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}

	return claims.Subject, nil
}

// Middleware requires a bearer token on mutating requests. Reads stay open.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isSafe(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		bearer := r.Header.Get("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			respond.Fail(w, http.StatusUnauthorized, "UNAUTHENTICATED", "bearer token required")
			return
		}

		wallet, err := a.Parse(strings.TrimPrefix(bearer, "Bearer "))
		if err != nil {
			respond.Fail(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, wallet)))
	})
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// Actor resolves the acting wallet of a request. Without a session the
// claimed wallet is trusted; with one, the claim may be omitted but must not
// differ from the session wallet.
func Actor(ctx context.Context, claimed string) (string, error) {
	session, _ := ctx.Value(ctxKey{}).(string)

	switch {
	case session == "":
		return claimed, nil
	case claimed == "" || claimed == session:
		return session, nil
	default:
		return "", &treasury.Error{
			Kind:    treasury.KindAuthorization,
			Message: fmt.Sprintf("session wallet %s cannot act as %s", session, claimed),
		}
	}
}
