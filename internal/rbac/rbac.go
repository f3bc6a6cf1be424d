package rbac

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionEdit  Action = "edit"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionEdit
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleNone
	}
}

// ProjectRole derives a user's role on a project. Owners and superusers
// administer it; anyone may collaborate on a public project.
func ProjectRole(ownerID, userID string, isPublic, isSuperuser bool) Role {
	switch {
	case userID != "" && userID == ownerID:
		return RoleAdmin
	case isSuperuser:
		return RoleAdmin
	case isPublic:
		return RoleEditor
	default:
		return RoleNone
	}
}
