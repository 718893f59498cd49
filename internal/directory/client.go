// Package directory wraps the tenant user-directory control plane
// (Cognito user pools). Provisioning-time calls run with the service's
// ambient identity; per-user administration runs with the caller's
// exchanged, tenant-scoped credentials via WithCredentials.
package directory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"

	"idbroker/pkg/awserr"
	"idbroker/pkg/credcache"
)

const (
	inviteSubject = "Your tenant account"
	inviteMessage = "Welcome to the platform.\n\nUsername: {username}\nTemporary password: {####}"
)

type Client struct {
	base aws.Config
	api  *cip.Client
	log  *zap.SugaredLogger
}

func New(cfg aws.Config, log *zap.SugaredLogger) *Client {
	return &Client{base: cfg, api: cip.NewFromConfig(cfg), log: log}
}

// WithCredentials derives a client whose calls are signed with the given
// exchanged credentials instead of the ambient identity. The directory
// access policy attached to the caller's role is what actually scopes
// these operations to the tenant's pool.
func (c *Client) WithCredentials(creds credcache.Credentials) *Client {
	scoped := cip.NewFromConfig(c.base, func(o *cip.Options) {
		o.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     creds.AccessKeyID,
				SecretAccessKey: creds.SecretKey,
				SessionToken:    creds.SessionToken,
				Expires:         creds.Expiration,
				CanExpire:       !creds.Expiration.IsZero(),
			}, nil
		})
	})
	return &Client{base: c.base, api: scoped, log: c.log}
}

// CreateDirectory creates an isolated user pool named after the tenant:
// administrator-only user creation, email invitations, a password policy
// requiring upper/lower/number at length 8, and the fixed custom
// attribute schema. A name collision fails at the provider.
func (c *Client) CreateDirectory(ctx context.Context, name string) (string, error) {
	stringAttr := func(attrName string, mutable bool) types.SchemaAttributeType {
		return types.SchemaAttributeType{
			Name:                   aws.String(attrName),
			AttributeDataType:      types.AttributeDataTypeString,
			DeveloperOnlyAttribute: aws.Bool(false),
			Mutable:                aws.Bool(mutable),
			Required:               aws.Bool(false),
			StringAttributeConstraints: &types.StringAttributeConstraintsType{
				MinLength: aws.String("1"),
				MaxLength: aws.String("256"),
			},
		}
	}

	out, err := c.api.CreateUserPool(ctx, &cip.CreateUserPoolInput{
		PoolName: aws.String(name),
		AdminCreateUserConfig: &types.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: true,
			InviteMessageTemplate: &types.MessageTemplateType{
				EmailMessage: aws.String(inviteMessage),
				EmailSubject: aws.String(inviteSubject),
			},
		},
		AliasAttributes:        []types.AliasAttributeType{types.AliasAttributeTypePhoneNumber},
		AutoVerifiedAttributes: []types.VerifiedAttributeType{types.VerifiedAttributeTypeEmail},
		MfaConfiguration:       types.UserPoolMfaTypeOff,
		Policies: &types.UserPoolPolicyType{
			PasswordPolicy: &types.PasswordPolicyType{
				MinimumLength:    aws.Int32(8),
				RequireLowercase: true,
				RequireUppercase: true,
				RequireNumbers:   true,
				RequireSymbols:   false,
			},
		},
		Schema: []types.SchemaAttributeType{
			stringAttr("tenant_id", false),
			stringAttr("tier", true),
			{Name: aws.String("email"), Required: aws.Bool(true)},
			stringAttr("company_name", true),
			stringAttr("role", true),
			stringAttr("account_name", true),
		},
		UserPoolTags: map[string]string{"tenant": name},
	})
	if err != nil {
		return "", awserr.Classify(err)
	}
	return aws.ToString(out.UserPool.Id), nil
}

// CreateClientRegistration registers a client application against the
// directory. Tokens are deliberately not refreshable in this
// architecture, hence the zero refresh-token validity.
func (c *Client) CreateClientRegistration(ctx context.Context, directoryID, name string) (string, error) {
	out, err := c.api.CreateUserPoolClient(ctx, &cip.CreateUserPoolClientInput{
		UserPoolId:     aws.String(directoryID),
		ClientName:     aws.String(name),
		GenerateSecret: false,
		ReadAttributes: []string{
			"email", "family_name", "given_name", "phone_number", "preferred_username",
			AttrTier, AttrTenantID, AttrCompanyName, AttrAccountName, AttrRole,
		},
		WriteAttributes: []string{
			"email", "family_name", "given_name", "phone_number", "preferred_username",
			AttrTier, AttrRole,
		},
		RefreshTokenValidity: 0,
	})
	if err != nil {
		return "", awserr.Classify(err)
	}
	return aws.ToString(out.UserPoolClient.ClientId), nil
}

// NewEntry is the input for CreateEntry.
type NewEntry struct {
	UserName  string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Tier      string
	TenantID  string
}

// CreateEntry creates a directory user with the custom attribute set and
// an email invitation, returning the provider-assigned subject id.
func (c *Client) CreateEntry(ctx context.Context, directoryID string, e NewEntry) (string, error) {
	out, err := c.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(directoryID),
		Username:               aws.String(e.UserName),
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeEmail},
		ForceAliasCreation:     true,
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(e.Email)},
			{Name: aws.String(AttrTenantID), Value: aws.String(e.TenantID)},
			{Name: aws.String("given_name"), Value: aws.String(e.FirstName)},
			{Name: aws.String("family_name"), Value: aws.String(e.LastName)},
			{Name: aws.String(AttrRole), Value: aws.String(e.Role)},
			{Name: aws.String(AttrTier), Value: aws.String(e.Tier)},
		},
	})
	if err != nil {
		return "", awserr.Classify(err)
	}
	for _, a := range out.User.Attributes {
		if aws.ToString(a.Name) == "sub" {
			return aws.ToString(a.Value), nil
		}
	}
	return "", nil
}

func (c *Client) GetEntry(ctx context.Context, directoryID, userName string) (Entry, error) {
	out, err := c.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(directoryID),
		Username:   aws.String(userName),
	})
	if err != nil {
		return Entry{}, awserr.Classify(err)
	}
	return entryFromAttributes(aws.ToString(out.Username), out.Enabled, string(out.UserStatus), out.UserCreateDate, out.UserAttributes), nil
}

func (c *Client) ListEntries(ctx context.Context, directoryID string) ([]Entry, error) {
	out, err := c.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(directoryID),
	})
	if err != nil {
		return nil, awserr.Classify(err)
	}
	entries := make([]Entry, 0, len(out.Users))
	for _, u := range out.Users {
		entries = append(entries, entryFromAttributes(aws.ToString(u.Username), u.Enabled, string(u.UserStatus), u.UserCreateDate, u.Attributes))
	}
	return entries, nil
}

// UpdateEntry rewrites the mutable attributes of a user (role and names).
func (c *Client) UpdateEntry(ctx context.Context, directoryID, userName, role, firstName, lastName string) error {
	_, err := c.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(directoryID),
		Username:   aws.String(userName),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(AttrRole), Value: aws.String(role)},
			{Name: aws.String("given_name"), Value: aws.String(firstName)},
			{Name: aws.String("family_name"), Value: aws.String(lastName)},
		},
	})
	return awserr.Classify(err)
}

func (c *Client) SetEntryEnabled(ctx context.Context, directoryID, userName string, enabled bool) error {
	var err error
	if enabled {
		_, err = c.api.AdminEnableUser(ctx, &cip.AdminEnableUserInput{
			UserPoolId: aws.String(directoryID),
			Username:   aws.String(userName),
		})
	} else {
		_, err = c.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
			UserPoolId: aws.String(directoryID),
			Username:   aws.String(userName),
		})
	}
	return awserr.Classify(err)
}

func (c *Client) DeleteEntry(ctx context.Context, directoryID, userName string) error {
	_, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(directoryID),
		Username:   aws.String(userName),
	})
	return awserr.Classify(err)
}

// DeleteDirectory removes a tenant's user pool. Part of the teardown
// contract: teardown must reverse every creation step.
func (c *Client) DeleteDirectory(ctx context.Context, directoryID string) error {
	_, err := c.api.DeleteUserPool(ctx, &cip.DeleteUserPoolInput{
		UserPoolId: aws.String(directoryID),
	})
	if err != nil {
		return fmt.Errorf("delete directory %s: %w", directoryID, awserr.Classify(err))
	}
	return nil
}
