package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSlug derives a unique, URL-safe slug for a company name.
func GenerateSlug(seed string) string {
	base := strings.ToLower(strings.TrimSpace(seed))
	base = strings.ReplaceAll(base, " ", "-")
	base = strings.ReplaceAll(base, "_", "-")
	if base == "" {
		base = "company"
	}
	return base + "-" + uuid.NewString()[:8]
}

// GenerateInviteCode returns an opaque code for relationship invitations.
func GenerateInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
