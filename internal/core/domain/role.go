package domain

// Role is the effective capability level of a user on a document.
// It is derived on every check, never stored: ownership implies RoleOwner,
// a membership row carries RoleViewer or RoleEditor, everything else is RoleNone.
type Role string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

// Level returns the position of the role in the capability order
// none < viewer < editor < owner.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleOwner:
		return 3
	default:
		return 0
	}
}

func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level()
}

// IsGrantable reports whether the role may appear on a membership row.
// Owner is implicit and none is the absence of a grant; neither is storable.
func (r Role) IsGrantable() bool {
	return r == RoleViewer || r == RoleEditor
}
