// Package federation wraps the federated identity control plane: the
// per-tenant identity pools that broker directory tokens into scoped AWS
// credentials, the claim->role mapping rules inside them, and the
// per-request credential exchange itself.
package federation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognitoidentity "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	"go.uber.org/zap"

	"idbroker/internal/directory"
	"idbroker/pkg/awserr"
)

// roleClaim is the directory token claim the mapping rules match on.
const roleClaim = directory.AttrRole

type Client struct {
	api       *cognitoidentity.Client
	region    string
	accountID string
	log       *zap.SugaredLogger
}

func New(cfg aws.Config, accountID string, log *zap.SugaredLogger) *Client {
	return &Client{
		api:       cognitoidentity.NewFromConfig(cfg),
		region:    cfg.Region,
		accountID: accountID,
		log:       log,
	}
}

// providerName is the issuer identifier a user pool presents to the
// federation layer.
func (c *Client) providerName(directoryID string) string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", c.region, directoryID)
}

// CreateFederatedIdentityPool creates the federation endpoint accepting
// tokens from the directory/client pair. Unauthenticated identities are
// disallowed and tokens are checked server side.
func (c *Client) CreateFederatedIdentityPool(ctx context.Context, clientID, directoryID, name string) (string, error) {
	out, err := c.api.CreateIdentityPool(ctx, &cognitoidentity.CreateIdentityPoolInput{
		IdentityPoolName:               aws.String(name),
		AllowUnauthenticatedIdentities: false,
		CognitoIdentityProviders: []types.CognitoIdentityProvider{
			{
				ClientId:             aws.String(clientID),
				ProviderName:         aws.String(c.providerName(directoryID)),
				ServerSideTokenCheck: aws.Bool(true),
			},
		},
	})
	if err != nil {
		return "", awserr.Classify(err)
	}
	return aws.ToString(out.IdentityPoolId), nil
}

func (c *Client) DeleteFederatedIdentityPool(ctx context.Context, identityPoolID string) error {
	_, err := c.api.DeleteIdentityPool(ctx, &cognitoidentity.DeleteIdentityPoolInput{
		IdentityPoolId: aws.String(identityPoolID),
	})
	return awserr.Classify(err)
}

// MappingRule binds a custom:role claim value to a role ARN.
type MappingRule struct {
	ClaimValue string
	RoleARN    string
}

// BindRoleMapping wires the identity pool's rule set: the authenticated
// default role plus one rule per role kind. Ambiguous resolution is
// denied: a token matching zero or multiple rules gets nothing.
func (c *Client) BindRoleMapping(ctx context.Context, identityPoolID, authRoleARN, directoryID, clientID string, rules []MappingRule) error {
	mapped := make([]types.MappingRule, 0, len(rules))
	for _, r := range rules {
		mapped = append(mapped, types.MappingRule{
			Claim:     aws.String(roleClaim),
			MatchType: types.MappingRuleMatchTypeEquals,
			RoleARN:   aws.String(r.RoleARN),
			Value:     aws.String(r.ClaimValue),
		})
	}
	providerKey := c.providerName(directoryID) + ":" + clientID
	_, err := c.api.SetIdentityPoolRoles(ctx, &cognitoidentity.SetIdentityPoolRolesInput{
		IdentityPoolId: aws.String(identityPoolID),
		Roles:          map[string]string{"authenticated": authRoleARN},
		RoleMappings: map[string]types.RoleMapping{
			providerKey: {
				Type:                    types.RoleMappingTypeRules,
				AmbiguousRoleResolution: types.AmbiguousRoleResolutionTypeDeny,
				RulesConfiguration:      &types.RulesConfigurationType{Rules: mapped},
			},
		},
	})
	return awserr.Classify(err)
}
