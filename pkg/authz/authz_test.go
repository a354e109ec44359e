package authz

import (
	"errors"
	"testing"
)

func TestChecker_NECAlwaysAllowed(t *testing.T) {
	c := NewChecker(map[string][]string{
		string(PermSetValue): {"10.0.0.1:9000"},
	})
	if err := c.Check(PermSetValue, "nec"); err != nil {
		t.Errorf("nec should always be allowed: %v", err)
	}
}

func TestChecker_NoRulesAllowsEveryone(t *testing.T) {
	c := NewChecker(nil)
	if err := c.Check(PermSetValue, "192.168.1.50:5000"); err != nil {
		t.Errorf("default should be allow-all, got %v", err)
	}
}

func TestChecker_ExactMatch(t *testing.T) {
	c := NewChecker(map[string][]string{
		string(PermSetValue): {"10.0.0.1:9000"},
	})
	if err := c.Check(PermSetValue, "10.0.0.1:9000"); err != nil {
		t.Errorf("exact match should pass: %v", err)
	}
	if err := c.Check(PermSetValue, "10.0.0.2:9000"); err == nil {
		t.Error("unlisted sender should be denied")
	}
}

func TestChecker_CIDRMatch(t *testing.T) {
	c := NewChecker(map[string][]string{
		string(PermAddRegListen): {"10.0.0.0/24"},
	})
	if err := c.Check(PermAddRegListen, "10.0.0.55:4000"); err != nil {
		t.Errorf("in-range sender should pass: %v", err)
	}
	if err := c.Check(PermAddRegListen, "10.0.1.55:4000"); err == nil {
		t.Error("out-of-range sender should be denied")
	}
}

func TestChecker_UnrelatedPermissionUnaffected(t *testing.T) {
	c := NewChecker(map[string][]string{
		string(PermSetValue): {"10.0.0.1:9000"},
	})
	if err := c.Check(PermAddRegListen, "10.0.0.2:9000"); err != nil {
		t.Errorf("addRegListen has no rule configured, should allow: %v", err)
	}
}

func TestPermissionError(t *testing.T) {
	err := &PermissionError{Principal: "10.0.0.9:1", Permission: PermSetValue}
	if err.Error() == "" {
		t.Error("expected non-empty message")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("should unwrap to ErrUnauthorized")
	}
}
