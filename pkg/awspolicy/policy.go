// Package awspolicy generates the IAM policy documents that scope a
// tenant's federated credentials. Everything here is a pure data
// transformation: no I/O, no failure modes. An empty document returned
// for an unknown role kind is a caller-side configuration error, not a
// grant of zero permissions.
package awspolicy

import "encoding/json"

// RoleKind selects which access template is generated. The string value
// is also the custom:role claim carried in directory-issued tokens.
type RoleKind string

const (
	SystemAdmin RoleKind = "SystemAdmin"
	SystemUser  RoleKind = "SystemUser"
	TenantAdmin RoleKind = "TenantAdmin"
	TenantUser  RoleKind = "TenantUser"
)

// Known reports whether k is one of the four supported role kinds.
func Known(k RoleKind) bool {
	switch k {
	case SystemAdmin, SystemUser, TenantAdmin, TenantUser:
		return true
	}
	return false
}

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single allow/deny entry. Condition maps operator ->
// key -> value(s), mirroring the IAM JSON shape.
type Statement struct {
	Sid       string                    `json:"Sid,omitempty"`
	Effect    string                    `json:"Effect"`
	Principal *Principal                `json:"Principal,omitempty"`
	Action    []string                  `json:"Action"`
	Resource  []string                  `json:"Resource,omitempty"`
	Condition map[string]map[string]any `json:"Condition,omitempty"`
}

// Principal identifies who a trust statement applies to.
type Principal struct {
	Federated string `json:"Federated,omitempty"`
}

// Empty reports whether the document carries no statements.
func (d Document) Empty() bool { return len(d.Statement) == 0 }

// JSON renders the document in the wire form the IAM API accepts.
func (d Document) JSON() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// Params supplies everything the templates interpolate. UserPoolID may be
// empty until the tenant's directory exists; directory-scoped statements
// then reference an empty ARN suffix, so callers should populate it as
// soon as the pool id is known.
type Params struct {
	TenantID  string
	AccountID string
	Region    string

	TenantTable  string
	UserTable    string
	ProductTable string
	OrderTable   string

	UserPoolID string
}

// arns resolves the resource references used across all templates.
type arns struct {
	tenantTable  string
	userTable    string
	productTable string
	orderTable   string
	userPool     string
}

func (p Params) resolve() arns {
	tablePrefix := "arn:aws:dynamodb:" + p.Region + ":" + p.AccountID + ":table/"
	return arns{
		tenantTable:  tablePrefix + p.TenantTable,
		userTable:    tablePrefix + p.UserTable,
		productTable: tablePrefix + p.ProductTable,
		orderTable:   tablePrefix + p.OrderTable,
		userPool:     "arn:aws:cognito-idp:" + p.Region + ":" + p.AccountID + ":userpool/" + p.UserPoolID,
	}
}

// leadingKeys builds the partition-key condition restricting statements
// to items whose leading key equals the tenant id.
func leadingKeys(tenantID string) map[string]map[string]any {
	return map[string]map[string]any{
		"ForAllValues:StringEquals": {
			"dynamodb:LeadingKeys": []string{tenantID},
		},
	}
}

// BuildPolicy maps a role kind and parameter set to a fully resolved
// access policy document. Unknown kinds yield an empty document.
func BuildPolicy(kind RoleKind, p Params) Document {
	a := p.resolve()
	switch kind {
	case SystemAdmin:
		return systemAdminPolicy(a)
	case SystemUser:
		return systemUserPolicy(a)
	case TenantAdmin:
		return tenantAdminPolicy(p.TenantID, a)
	case TenantUser:
		return tenantUserPolicy(p.TenantID, a)
	}
	return Document{}
}
