package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/pkg/types"
)

const testSecret = "0123456789abcdef0123"

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return v
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Expected ErrEmptySecret, got %v", err)
	}
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	for _, identity := range []types.Identity{
		{ID: "t1", Role: types.RoleTeacher},
		{ID: "64b7f0c2a1b2c3d4e5f60718", Role: types.RoleStudent},
		{ID: "ada@example.edu", Role: types.RoleStudent},
		{ID: "auth0.teacher.7", Role: types.RoleTeacher},
	} {
		token, err := v.Sign(identity, time.Hour)
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		got, err := v.Verify(token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if got != identity {
			t.Errorf("Expected %+v, got %+v", identity, got)
		}
	}
}

func TestVerifier_Rejections(t *testing.T) {
	v := newTestVerifier(t)
	other, _ := NewVerifier("another-secret-0123456789")

	foreign, _ := other.Sign(types.Identity{ID: "t1", Role: types.RoleTeacher}, time.Hour)
	badRole, _ := v.Sign(types.Identity{ID: "t1", Role: "admin"}, time.Hour)
	badID, _ := v.Sign(types.Identity{ID: "bad id", Role: types.RoleStudent}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "t1", Role: types.RoleTeacher}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
		{"unknown role", badRole, ErrInvalidClaims},
		{"invalid user id", badID, ErrInvalidClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestVerifier_Expired(t *testing.T) {
	v := newTestVerifier(t)
	issued := time.Now()
	v.now = func() time.Time { return issued }

	token, err := v.Sign(types.Identity{ID: "s1", Role: types.RoleStudent}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	v.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}
}

func TestTokenExtraction(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"plain query", "/ws?token=abc", "", "abc"},
		{"double quoted", "/ws?token=%22abc%22", "", "abc"},
		{"single quoted with spaces", "/ws?token=%20'abc'%20", "", "abc"},
		{"bearer header", "/ws", "Bearer xyz", "xyz"},
		{"lowercase bearer", "/ws", "bearer xyz", "xyz"},
		{"query wins", "/ws?token=abc", "Bearer xyz", "abc"},
		{"basic auth ignored", "/ws", "Basic xyz", ""},
		{"nothing", "/ws", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("TokenFromRequest = %q, want %q", got, tt.want)
			}
		})
	}
}
