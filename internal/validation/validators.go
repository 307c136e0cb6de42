// Package validation guards identifiers and payload fields crossing the API
// boundary before they reach the peer store.
package validation

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ErrReservedIdentifier marks a peer id that must never be operated on.
// Callers map it to a forbidden response rather than a plain validation
// failure.
var ErrReservedIdentifier = errors.New("reserved identifier")

var (
	// Peer ids that collide with object prototype members in the web UI
	// runtime. These must be rejected before any mutation, not merely
	// fail lookup.
	reservedIDs = []string{"__proto__", "constructor", "prototype"}

	// Dangerous characters that should never appear in display names
	dangerousChars = []string{";", "|", "&", "$", "`", "<", ">", "\\", "\"", "\n", "\r"}
)

// ValidatePeerID validates a peer identifier taken from a request path.
func ValidatePeerID(id string) error {
	if id == "" {
		return fmt.Errorf("peer id cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("peer id too long (max 255 characters)")
	}

	for _, reserved := range reservedIDs {
		if id == reserved {
			return fmt.Errorf("%w: %s", ErrReservedIdentifier, id)
		}
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("peer id contains control character")
		}
	}

	return nil
}

// ValidatePeerName validates a peer display name for create and rename.
func ValidatePeerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("peer name cannot be empty")
	}

	if len(name) > 64 {
		return fmt.Errorf("peer name too long (max 64 characters)")
	}

	// Check for dangerous characters
	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("peer name contains dangerous character: %q", char)
		}
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("peer name contains control character")
		}
	}

	return nil
}

// ValidateAddress validates a peer tunnel address.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("address cannot be empty")
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}

	if ip.To4() == nil {
		return fmt.Errorf("address must be IPv4: %s", s)
	}

	return nil
}

// SanitizeString removes dangerous characters from a string (for display purposes)
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
