package auth

import (
	"testing"
	"time"

	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
)

func newTestVerifier() *Verifier {
	return NewVerifier("test-secret-key", nil)
}

func TestVerify_Valid(t *testing.T) {
	v := newTestVerifier()

	token, err := v.Sign(&model.Identity{ID: 12345, Email: "buyer@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}

	if identity.ID != 12345 {
		t.Errorf("Expected user ID 12345, got %d", identity.ID)
	}
	if identity.Email != "buyer@example.com" {
		t.Errorf("Expected email buyer@example.com, got %s", identity.Email)
	}
}

func TestVerify_BearerPrefix(t *testing.T) {
	v := newTestVerifier()

	token, err := v.Sign(&model.Identity{ID: 42, Email: "seller@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	identity, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("Failed to verify token with Bearer prefix: %v", err)
	}

	if identity.ID != 42 {
		t.Errorf("Expected user ID 42, got %d", identity.ID)
	}
}

func TestVerify_Missing(t *testing.T) {
	v := newTestVerifier()

	tests := []struct {
		name       string
		credential string
	}{
		{name: "empty", credential: ""},
		{name: "bare bearer prefix", credential: "Bearer "},
		{name: "whitespace", credential: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.credential)
			if !apperrors.Is(err, apperrors.ErrTokenMissing) {
				t.Errorf("Expected ErrTokenMissing, got %v", err)
			}
		})
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := newTestVerifier()

	_, err := v.Verify("not-a-jwt-token")
	if !apperrors.Is(err, apperrors.ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := newTestVerifier()

	token, err := v.Sign(&model.Identity{ID: 7, Email: "u@example.com"}, -time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	_, err = v.Verify(token)
	if !apperrors.Is(err, apperrors.ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	v1 := NewVerifier("secret-key-1", nil)
	v2 := NewVerifier("secret-key-2", nil)

	token, err := v1.Sign(&model.Identity{ID: 7, Email: "u@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	// 使用不同的 secret key 验证
	_, err = v2.Verify(token)
	if !apperrors.Is(err, apperrors.ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid for wrong secret, got %v", err)
	}
}
