package jwt

import (
	"errors"
	"testing"
	"time"

	"trip-dispatch/internal/domain/user"
)

const testSecret = "test-secret-key-not-for-production"

func TestIssueAndValidateRoundTrip(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)

	signed, claims, err := mgr.IssueUserToken("user-123", user.RoleDriver)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-123" || claims.Role != user.RoleDriver {
		t.Fatalf("claims wrong: %+v", claims)
	}

	_, parsed, err := mgr.ParseAndValidate(signed)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if parsed.Subject != "user-123" || parsed.Role != user.RoleDriver {
		t.Fatalf("parsed claims wrong: %+v", parsed)
	}
}

func TestInvalidRoleRejected(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)
	if _, _, err := mgr.IssueUserToken("user-123", "WIZARD"); err == nil {
		t.Fatal("invalid role should be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)
	signed, _, err := mgr.IssueUserToken("user-123", user.RoleClient)
	if err != nil {
		t.Fatal(err)
	}

	other := NewManager("a-different-secret-entirely", time.Hour)
	if _, _, err := other.ParseAndValidate(signed); err == nil {
		t.Fatal("token signed with another secret should fail validation")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewManager(testSecret, -time.Minute)
	signed, _, err := mgr.IssueUserToken("user-123", user.RoleClient)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := mgr.ParseAndValidate(signed); err == nil {
		t.Fatal("expired token should fail validation")
	}
}

func TestRoleAllowed(t *testing.T) {
	claims := &Claims{Role: user.RoleDelivery}

	if err := RoleAllowed(claims, user.RoleDriver, user.RoleDelivery); err != nil {
		t.Fatalf("delivery should be allowed: %v", err)
	}
	if err := RoleAllowed(claims, user.RoleClient); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden, got %v", err)
	}
}

func TestValidateIdentifyToken(t *testing.T) {
	mgr := NewManager(testSecret, time.Hour)
	signed, _, err := mgr.IssueUserToken("driver-1", user.RoleDriver)
	if err != nil {
		t.Fatal(err)
	}

	// raw token
	claims, err := ValidateIdentifyToken(signed, mgr, user.RoleDriver)
	if err != nil {
		t.Fatalf("raw token rejected: %v", err)
	}
	if claims.Subject != "driver-1" {
		t.Fatalf("subject wrong: %s", claims.Subject)
	}

	// Bearer wrapping
	if _, err := ValidateIdentifyToken("Bearer "+signed, mgr, user.RoleDriver); err != nil {
		t.Fatalf("bearer-wrapped token rejected: %v", err)
	}

	// wrong wrapper word
	if _, err := ValidateIdentifyToken("Token "+signed, mgr, user.RoleDriver); !errors.Is(err, ErrBadTokenWrap) {
		t.Fatalf("expected ErrBadTokenWrap, got %v", err)
	}

	// role enforcement
	if _, err := ValidateIdentifyToken(signed, mgr, user.RoleClient); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden, got %v", err)
	}

	// empty
	if _, err := ValidateIdentifyToken("   ", mgr, user.RoleDriver); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}
