package domain

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

type Permission string

const (
	PermissionView   Permission = "view"
	PermissionUpload Permission = "upload"
	PermissionReview Permission = "review"
	PermissionExport Permission = "export"
)

// Admin is handled separately: it holds every permission.
var rolePermissions = map[Role][]Permission{
	RoleOperator: {PermissionUpload, PermissionReview, PermissionExport, PermissionView},
	RoleReviewer: {PermissionReview, PermissionView},
	RoleViewer:   {PermissionView},
}

func (r Role) Valid() bool {
	if r == RoleAdmin {
		return true
	}
	_, ok := rolePermissions[r]
	return ok
}

func (r Role) HasPermission(p Permission) bool {
	if r == RoleAdmin {
		return true
	}
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor performs background work.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Role: RoleAdmin}
}
