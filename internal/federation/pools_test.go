package federation

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognitoidentity "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
)

func TestProviderName(t *testing.T) {
	c := &Client{region: "us-east-1"}
	got := c.providerName("us-east-1_POOL")
	want := "cognito-idp.us-east-1.amazonaws.com/us-east-1_POOL"
	if got != want {
		t.Fatalf("providerName = %q, want %q", got, want)
	}
}

// Pins the identity-provider element of the pool creation input against
// the SDK's wire shape.
func TestIdentityProviderInputShape(t *testing.T) {
	in := cognitoidentity.CreateIdentityPoolInput{
		IdentityPoolName:               aws.String("T1"),
		AllowUnauthenticatedIdentities: false,
		CognitoIdentityProviders: []types.CognitoIdentityProvider{
			{
				ClientId:             aws.String("client-1"),
				ProviderName:         aws.String("cognito-idp.us-east-1.amazonaws.com/us-east-1_POOL"),
				ServerSideTokenCheck: aws.Bool(true),
			},
		},
	}
	if len(in.CognitoIdentityProviders) != 1 {
		t.Fatalf("providers = %d", len(in.CognitoIdentityProviders))
	}
	if !aws.ToBool(in.CognitoIdentityProviders[0].ServerSideTokenCheck) {
		t.Fatalf("server-side token check not set")
	}
}
