package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

var key = []byte("test-signing-key")

func TestVerify_Valid(t *testing.T) {
	t.Parallel()

	want := model.Identity{UserID: uuid.Must(uuid.NewV4()), Email: "a@x.com", EmailVerified: true}
	tok, err := Sign(key, want, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := NewVerifier(key).Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != want {
		t.Fatalf("identity=%+v, want %+v", got, want)
	}
	if got.VerifiedEmail() != "a@x.com" {
		t.Fatalf("verified email lost")
	}
}

func TestVerify_UnverifiedEmailNotTrusted(t *testing.T) {
	t.Parallel()

	tok, _ := Sign(key, model.Identity{UserID: uuid.Must(uuid.NewV4()), Email: "a@x.com"}, time.Now(), time.Minute)
	got, err := NewVerifier(key).Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.VerifiedEmail() != "" {
		t.Fatalf("unverified email must not be used")
	}
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()
	v := NewVerifier(key)
	uid := model.Identity{UserID: uuid.Must(uuid.NewV4())}

	expired, _ := Sign(key, uid, time.Now().Add(-time.Hour), time.Minute)
	wrongKey, _ := Sign([]byte("other"), uid, time.Now(), time.Minute)
	future, _ := Sign(key, uid, time.Now().Add(time.Hour), time.Hour)
	nilSub, _ := Sign(key, model.Identity{}, time.Now(), time.Minute)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uid.UserID.String()}).SignedString(key)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   uid.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(key)
	badSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(key)

	for name, tok := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"not yet":   future,
		"nil sub":   nilSub,
		"no exp":    noExp,
		"hs512":     hs512,
		"bad sub":   badSub,
		"garbage":   "a.b.c",
	} {
		if _, err := v.Verify(tok); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestVerify_LeewayAllowsSmallClockSkew(t *testing.T) {
	t.Parallel()

	tok, _ := Sign(key, model.Identity{UserID: uuid.Must(uuid.NewV4())}, time.Now().Add(10*time.Second), time.Minute)
	if _, err := NewVerifier(key).Verify(tok); err != nil {
		t.Fatalf("10s skew should pass: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"  bearer   abc  ", "abc", true},
		{"BEARER x.y.z", "x.y.z", true},
		{"Basic foo", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := BearerToken(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("%q: got (%q,%v), want (%q,%v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
