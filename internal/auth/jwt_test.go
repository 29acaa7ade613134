package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTGenerateValidate(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "places")
	jwtToken, err := manager.Generate("01HZX3KJ5Q8W2N4P6R7S9T0V1A", "Ada")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := manager.Validate(jwtToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID() != "01HZX3KJ5Q8W2N4P6R7S9T0V1A" || claims.Name != "Ada" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestJWTGenerateInvalid(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "places")
	if _, err := manager.Generate(" ", "Ada"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestJWTValidateMissing(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "places")
	if _, err := manager.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestJWTValidateRejectsForeignTokens(t *testing.T) {
	issued, err := NewJWTManager("secret", time.Hour, "places").Generate("user-1", "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := NewJWTManager("other-secret", time.Hour, "places").Validate(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: expected invalid token error, got %v", err)
	}
	if _, err := NewJWTManager("secret", time.Hour, "elsewhere").Validate(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong issuer: expected invalid token error, got %v", err)
	}
}

func TestJWTValidateExpired(t *testing.T) {
	manager := NewJWTManager("secret", time.Minute, "places")
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	issued, err := manager.Generate("user-1", "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	manager.now = time.Now
	if _, err := manager.Validate(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestTokenFromHeader(t *testing.T) {
	if _, err := TokenFromHeader("nope"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if token, err := TokenFromHeader("Bearer token"); err != nil || token != "token" {
		t.Fatalf("expected token, got %s err %v", token, err)
	}
}
