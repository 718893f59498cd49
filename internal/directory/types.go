package directory

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// Custom attribute names carried in the directory schema. The role
// attribute is the claim the federation role mapping matches on.
const (
	AttrTenantID    = "custom:tenant_id"
	AttrTier        = "custom:tier"
	AttrRole        = "custom:role"
	AttrCompanyName = "custom:company_name"
	AttrAccountName = "custom:account_name"
)

// Entry is a user record in a tenant directory, flattened from the
// provider's attribute list.
type Entry struct {
	UserName  string    `json:"userName"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      string    `json:"role"`
	Tier      string    `json:"tier"`
	TenantID  string    `json:"tenant_id"`
	Sub       string    `json:"sub"`
	Enabled   bool      `json:"enabled"`
	Status    string    `json:"confirmedStatus"`
	Created   time.Time `json:"dateCreated"`
}

func entryFromAttributes(userName string, enabled bool, status string, created *time.Time, attrs []types.AttributeType) Entry {
	e := Entry{UserName: userName, Enabled: enabled, Status: status}
	if created != nil {
		e.Created = *created
	}
	for _, a := range attrs {
		if a.Name == nil || a.Value == nil {
			continue
		}
		switch *a.Name {
		case "email":
			e.Email = *a.Value
		case "given_name":
			e.FirstName = *a.Value
		case "family_name":
			e.LastName = *a.Value
		case "sub":
			e.Sub = *a.Value
		case AttrRole:
			e.Role = *a.Value
		case AttrTier:
			e.Tier = *a.Value
		case AttrTenantID:
			e.TenantID = *a.Value
		}
	}
	return e
}
