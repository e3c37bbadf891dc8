package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signToken builds a token the way the backend would.
func signToken(t *testing.T, secret string, userID int64, name string, ttl time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestValidate(t *testing.T) {
	const secret = "test-secret-key-32-bytes-long!!!"
	m := NewJWTManager(secret)

	token := signToken(t, secret, 42, "Asha", time.Hour)
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Name != "Asha" {
		t.Errorf("Name = %q, want Asha", claims.Name)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	const secret = "test-secret-key-32-bytes-long!!!"
	m := NewJWTManager(secret)

	t.Run("empty token", func(t *testing.T) {
		_, err := m.Validate("")
		if !errors.Is(err, ErrMissingToken) {
			t.Errorf("err = %v, want ErrMissingToken", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := m.Validate("not.a.jwt")
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "a-completely-different-secret!!!", 1, "Ravi", time.Hour)
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, secret, 1, "Meera", -time.Minute)
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong signing method", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := m.Validate(unsigned); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}
