package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "LPR_ADMIN"
	UserRoleOperator UserRole = "LPR_OPERATOR"
	UserRoleViewer   UserRole = "LPR_VIEWER"
)

type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}

// CanScan reports whether the principal may start server-side scans.
func (p Principal) CanScan() bool {
	return p.IsAdmin() || p.Role == UserRoleOperator
}

func (p Principal) CanRead() bool {
	return p.CanScan() || p.Role == UserRoleViewer
}
