package engine

import (
	"fmt"

	"form-engine/internal/metadata"
)

// Form operations checked against the caller's roles. OpRead and
// OpEvaluate guard the runtime API; OpWrite guards definition management.
const (
	OpRead     = "read"
	OpEvaluate = "evaluate"
	OpWrite    = "write"
)

// opRoles lists the roles granted each operation. Admins bypass the table.
var opRoles = map[string][]string{
	OpRead:     {metadata.RoleUser, metadata.RoleEditor},
	OpEvaluate: {metadata.RoleUser, metadata.RoleEditor},
	OpWrite:    {metadata.RoleEditor},
}

// CheckPermission verifies that user may perform op on form key. Returns nil
// if allowed, or an UNAUTHORIZED / FORBIDDEN AppError.
func CheckPermission(user *metadata.UserContext, key, op string) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if user.IsAdmin() {
		return nil
	}
	if user.HasAnyRole(opRoles[op]...) {
		return nil
	}
	return ForbiddenError(fmt.Sprintf("Permission denied for %s on form %s", op, key))
}
