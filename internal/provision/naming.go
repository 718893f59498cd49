package provision

import "idbroker/pkg/awspolicy"

// Resource names are derived from the tenant identifier alone so that
// a second run for the same tenant collides with the first at the
// provider instead of silently producing duplicates.

func roleName(tenantID string, kind awspolicy.RoleKind) string {
	return tenantID + "-" + string(kind)
}

func policyName(tenantID string, kind awspolicy.RoleKind) string {
	return tenantID + "-" + string(kind) + "Policy"
}

func trustRoleName(tenantID string) string {
	return tenantID + "-Trust"
}
