package models

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleUser   Role = "user"
)

// IsStaff reports whether the role may use the dashboard.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User is derived from the session on every request and never stored.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Role           Role   `json:"role"`
	EditorRecordID string `json:"editorRecordId,omitempty"`
}

// CanSee reports whether s belongs to the user's list scope. Unpaid
// submissions are never listed.
func (u User) CanSee(s *Submission) bool {
	if s == nil || !s.Visible() {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return s.AssignedEditorID != nil && *s.AssignedEditorID == u.EditorRecordID
	default:
		return s.OwnerID == u.ID
	}
}
