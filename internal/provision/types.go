package provision

import (
	"errors"
	"fmt"
)

// State names the orchestrator's position in the provisioning chain.
// Each state is reached by exactly one capability call succeeding.
type State string

const (
	StateStart               State = "Start"
	StateExistenceChecked    State = "ExistenceChecked"
	StateDirectoryCreated    State = "DirectoryCreated"
	StateClientRegistered    State = "ClientRegistered"
	StateIdentityPoolCreated State = "IdentityPoolCreated"
	StateAdminPolicyCreated  State = "AdminPolicyCreated"
	StateAdminUserCreated    State = "AdminUserCreated"
	StateUserPolicyCreated   State = "UserPolicyCreated"
	StateAdminRoleCreated    State = "AdminRoleCreated"
	StateUserRoleCreated     State = "UserRoleCreated"
	StateTrustRoleCreated    State = "TrustRoleCreated"
	StateAdminPolicyAttached State = "AdminPolicyAttached"
	StateUserPolicyAttached  State = "UserPolicyAttached"
	StateRoleMappingBound    State = "RoleMappingBound"
	StateDone                State = "Done"
	StateFailed              State = "Failed"
)

// Request carries a tenant (or system) admin provisioning request. The
// tenant identifier is used verbatim as the namespace key in every
// downstream resource name and leading-key condition; reuse across
// tenants is a security failure, not a data bug.
type Request struct {
	TenantID    string `json:"tenant_id"`
	CompanyName string `json:"companyName"`
	AccountName string `json:"accountName"`
	OwnerName   string `json:"ownerName"`
	Email       string `json:"email"`
	UserName    string `json:"userName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Tier        string `json:"tier"`
}

// Result aggregates every identifier a completed provisioning run
// produced. There is no partial-success form; a failed run yields only
// an error, and the identifiers created before the failure are reported
// through logs for reconciliation.
type Result struct {
	Pool              PoolInfo   `json:"pool"`
	UserPoolClient    ClientInfo `json:"userPoolClient"`
	IdentityPool      PoolRef    `json:"identityPool"`
	Role              RoleInfo   `json:"role"`
	Policy            PolicyInfo `json:"policy"`
	AddRoleToIdentity string     `json:"addRoleToIdentity"`
}

type PoolInfo struct {
	DirectoryID string `json:"directoryId"`
}

type ClientInfo struct {
	ClientID string `json:"clientId"`
}

type PoolRef struct {
	IdentityPoolID string `json:"identityPoolId"`
}

type RoleInfo struct {
	SystemAdminRole   string `json:"systemAdminRole"`
	SystemSupportRole string `json:"systemSupportRole"`
	TrustRole         string `json:"trustRole"`
}

type PolicyInfo struct {
	SystemAdminPolicy   string `json:"systemAdminPolicy"`
	SystemSupportPolicy string `json:"systemSupportPolicy"`
}

// ErrAlreadyExists: the requested admin user is already on record. Not
// retryable; the caller must choose a different tenant or username.
var ErrAlreadyExists = errors.New("provision: user already exists")

// ConfigurationError marks bad input (unknown role kind, missing table
// name). Not retryable.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "provision: configuration error: " + e.Reason
}

// ProviderError wraps the first failing external call, recording the
// state at which the chain stopped. Resources created in earlier states
// are not rolled back.
type ProviderError struct {
	State State
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provision: %s failed: %v", e.State, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
