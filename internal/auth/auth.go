// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Status string

const (
	StatusAuthenticated Status = "authenticated"
	StatusFailed        Status = "failed"
	StatusPending       Status = "pending"
)

// Message is the text shown to a user who is not signed in.
func (s Status) Message() string {
	switch s {
	case StatusFailed:
		return "Username/password is incorrect"
	case StatusPending:
		return "Please enter your username and password"
	default:
		return ""
	}
}

type User struct {
	Name         string
	Email        string
	PasswordHash string
}

type Claims struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Result struct {
	Status    Status
	Username  string
	Name      string
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// Authenticator checks passwords against bcrypt hashes and issues signed
// session cookies.
type Authenticator struct {
	users      map[string]User
	cookieName string
	key        []byte
	expiry     time.Duration
	now        func() time.Time
}

func NewAuthenticator(users map[string]User, cookieName, key string, expiry time.Duration) (*Authenticator, error) {
	if key == "" {
		return nil, errors.New("cookie signing key required")
	}
	if expiry <= 0 {
		expiry = 30 * 24 * time.Hour
	}
	norm := make(map[string]User, len(users))
	for name, u := range users {
		norm[strings.ToLower(strings.TrimSpace(name))] = u
	}
	return &Authenticator{
		users:      norm,
		cookieName: cookieName,
		key:        []byte(key),
		expiry:     expiry,
		now:        time.Now,
	}, nil
}

func (a *Authenticator) CookieName() string { return a.cookieName }

// Login validates credentials. Blank input leaves the status pending; a
// wrong username or password is a failure. Neither is an error.
func (a *Authenticator) Login(username, password string) (Result, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return Result{Status: StatusPending}, nil
	}
	u, ok := a.users[username]
	if !ok {
		return Result{Status: StatusFailed}, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Result{Status: StatusFailed}, nil
	}

	now := a.now()
	res := Result{
		Status:    StatusAuthenticated,
		Username:  username,
		Name:      u.Name,
		SessionID: uuid.NewString(),
		ExpiresAt: now.Add(a.expiry),
	}
	claims := Claims{
		Name:      u.Name,
		SessionID: res.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(res.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	res.Token = token
	return res, nil
}

// Verify checks a session token. A missing token is pending; an invalid or
// expired one asks the user to sign in again.
func (a *Authenticator) Verify(token string) (*Claims, Status) {
	if strings.TrimSpace(token) == "" {
		return nil, StatusPending
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return nil, StatusPending
	}
	if _, ok := a.users[claims.Subject]; !ok || claims.SessionID == "" {
		return nil, StatusPending
	}
	return claims, StatusAuthenticated
}
