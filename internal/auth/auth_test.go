package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	a, err := NewAuthenticator(map[string]User{
		"JSmith": {Name: "John Smith", PasswordHash: string(hash)},
	}, "nutri", "signing-key", time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func TestLoginStatuses(t *testing.T) {
	a := newTestAuthenticator(t)

	cases := []struct {
		user, pass string
		want       Status
	}{
		{"", "", StatusPending},
		{"jsmith", "", StatusPending},
		{"jsmith", "wrong", StatusFailed},
		{"nobody", "s3cret", StatusFailed},
		{"jsmith", "s3cret", StatusAuthenticated},
		{" JSMITH ", "s3cret", StatusAuthenticated},
	}
	for _, tc := range cases {
		res, err := a.Login(tc.user, tc.pass)
		if err != nil {
			t.Fatalf("Login(%q): %v", tc.user, err)
		}
		if res.Status != tc.want {
			t.Fatalf("Login(%q, %q): want %s, got %s", tc.user, tc.pass, tc.want, res.Status)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t)
	res, err := a.Login("jsmith", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, status := a.Verify(res.Token)
	if status != StatusAuthenticated {
		t.Fatalf("Verify: got %s", status)
	}
	if claims.SessionID != res.SessionID || claims.Subject != "jsmith" || claims.Name != "John Smith" {
		t.Fatalf("claims: %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	a := newTestAuthenticator(t)
	res, _ := a.Login("jsmith", "s3cret")

	if _, st := a.Verify(""); st != StatusPending {
		t.Fatalf("empty token: got %s", st)
	}
	if _, st := a.Verify(res.Token + "x"); st != StatusPending {
		t.Fatalf("tampered token: got %s", st)
	}

	other, _ := NewAuthenticator(nil, "nutri", "other-key", time.Hour)
	if _, st := other.Verify(res.Token); st != StatusPending {
		t.Fatalf("foreign key: got %s", st)
	}

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, st := a.Verify(res.Token); st != StatusPending {
		t.Fatalf("expired token: got %s", st)
	}
}

func TestStatusMessages(t *testing.T) {
	if StatusFailed.Message() != "Username/password is incorrect" {
		t.Fatalf("failed message: %q", StatusFailed.Message())
	}
	if StatusPending.Message() != "Please enter your username and password" {
		t.Fatalf("pending message: %q", StatusPending.Message())
	}
}
