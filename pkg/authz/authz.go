// Package authz gates setValue and addRegListen interface messages by sender.
package authz

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/nenet-io/nenet-core/pkg/util"
)

// ErrUnauthorized is the sentinel wrapped by PermissionError.
var ErrUnauthorized = errors.New("unauthorized")

// Permission names the two interface operations the gate can restrict.
type Permission string

const (
	PermSetValue     Permission = "setValue"
	PermAddRegListen Permission = "addRegListen"
)

// necPrincipal is always a superuser: the NEC upstream channel is trusted
// and spec never describes rejecting it.
const necPrincipal = "nec"

// Checker authorizes a principal (an "ip:port" string, or the fixed
// necPrincipal) against a Permission. Rules come from the INI [QJCustom]
// section: a permission name maps to a list of exact "ip:port" strings or
// CIDR ranges. A permission with no configured rules allows everyone —
// the gate is an opt-in tightening knob, not a default-deny firewall.
type Checker struct {
	rules map[Permission][]string
}

// NewChecker builds a Checker from a permission-name -> allow-list map,
// typically config.QJCustom.
func NewChecker(allow map[string][]string) *Checker {
	rules := make(map[Permission][]string, len(allow))
	for k, v := range allow {
		rules[Permission(k)] = v
	}
	return &Checker{rules: rules}
}

// Check returns nil if principal may perform permission, else a *PermissionError.
func (c *Checker) Check(permission Permission, principal string) error {
	if principal == necPrincipal {
		return nil
	}

	entries, configured := c.rules[permission]
	if !configured || len(entries) == 0 {
		return nil
	}

	if matchesAny(principal, entries) {
		return nil
	}

	return &PermissionError{Principal: principal, Permission: permission}
}

func matchesAny(principal string, entries []string) bool {
	host := principal
	if h, _, err := net.SplitHostPort(principal); err == nil {
		host = h
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == principal || entry == host {
			return true
		}
		if strings.Contains(entry, "/") && util.IPInRange(host, entry) {
			return true
		}
	}
	return false
}

// PermissionError reports a denied (principal, permission) pair.
type PermissionError struct {
	Principal  string
	Permission Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("authz: %q not permitted for %s", e.Principal, e.Permission)
}

func (e *PermissionError) Unwrap() error {
	return ErrUnauthorized
}
