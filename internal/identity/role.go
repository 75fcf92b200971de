// Package identity turns an authenticated session into a User with a role.
package identity

import (
	"strings"
	"unicode"

	"staging-studio-backend/internal/models"
)

// NormalizeEmail lowercases and trims an address and drops whitespace and
// control, format and other invisible characters anywhere in it.
func NormalizeEmail(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.Is(unicode.C, r) {
			return -1
		}
		return unicode.ToLower(r)
	}, raw)
}

// ResolveRole decides the role for an email. Admin allow-list membership
// wins over a roster match, but a matching roster entry still yields its
// record id so admins who also edit see their own assignments.
func ResolveRole(email string, admins []string, roster []models.Editor) (models.Role, string) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return models.RoleUser, ""
	}

	role := models.RoleUser
	for _, admin := range admins {
		if NormalizeEmail(admin) == normalized {
			role = models.RoleAdmin
			break
		}
	}

	for _, editor := range roster {
		if NormalizeEmail(editor.Email) == normalized {
			if role != models.RoleAdmin {
				role = models.RoleEditor
			}
			return role, editor.ID
		}
	}
	return role, ""
}
