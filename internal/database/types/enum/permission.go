package enum

import "strings"

// Permission is a single feature flag granted to an account on top of its role.
type Permission uint64

const (
	// PermissionReportExport allows exporting incident reports.
	PermissionReportExport Permission = 1 << iota
	// PermissionAuditView allows reading the audit log.
	PermissionAuditView
	// PermissionMail allows sending in-game mail.
	PermissionMail
	// PermissionBoard allows posting on the staff board.
	PermissionBoard
)

var permissionNames = map[Permission]string{
	PermissionReportExport: "REPORT_EXPORT",
	PermissionAuditView:    "AUDIT_VIEW",
	PermissionMail:         "MAIL",
	PermissionBoard:        "BOARD",
}

// Has reports whether every bit of flag is set.
func (p Permission) Has(flag Permission) bool {
	return flag != 0 && p&flag == flag
}

// With returns the set with flag turned on or off.
func (p Permission) With(flag Permission, enabled bool) Permission {
	if enabled {
		return p | flag
	}
	return p &^ flag
}

// IsSingle reports whether p is exactly one known flag.
func (p Permission) IsSingle() bool {
	_, ok := permissionNames[p]
	return ok
}

func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}

	names := make([]string, 0, len(permissionNames))
	for _, flag := range []Permission{PermissionReportExport, PermissionAuditView, PermissionMail, PermissionBoard} {
		if p.Has(flag) {
			names = append(names, permissionNames[flag])
		}
	}

	return strings.Join(names, "|")
}
