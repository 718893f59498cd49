// Package accessctl wraps the IAM control plane: named policies built
// from generated documents, roles built from trust documents, and the
// attachments binding them. Creation calls are intentionally not
// idempotent: a second CreatePolicy with the same name fails, and the
// provisioning orchestrator relies on that collision as the backstop for
// concurrent provisioning of the same tenant.
package accessctl

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"go.uber.org/zap"

	"idbroker/pkg/awserr"
	"idbroker/pkg/awspolicy"
)

// PolicyRef identifies a created policy.
type PolicyRef struct {
	Name string
	ARN  string
}

// RoleRef identifies a created role.
type RoleRef struct {
	Name string
	ARN  string
}

type Client struct {
	api *iam.Client
	log *zap.SugaredLogger
}

func New(cfg aws.Config, log *zap.SugaredLogger) *Client {
	return &Client{api: iam.NewFromConfig(cfg), log: log}
}

func (c *Client) CreatePolicy(ctx context.Context, name string, doc awspolicy.Document) (PolicyRef, error) {
	out, err := c.api.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(doc.JSON()),
		Description:    aws.String(name),
	})
	if err != nil {
		return PolicyRef{}, awserr.Classify(err)
	}
	return PolicyRef{
		Name: aws.ToString(out.Policy.PolicyName),
		ARN:  aws.ToString(out.Policy.Arn),
	}, nil
}

func (c *Client) CreateRole(ctx context.Context, name string, trust awspolicy.Document) (RoleRef, error) {
	out, err := c.api.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trust.JSON()),
	})
	if err != nil {
		return RoleRef{}, awserr.Classify(err)
	}
	return RoleRef{
		Name: aws.ToString(out.Role.RoleName),
		ARN:  aws.ToString(out.Role.Arn),
	}, nil
}

func (c *Client) AttachPolicy(ctx context.Context, policy PolicyRef, role RoleRef) error {
	_, err := c.api.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		PolicyArn: aws.String(policy.ARN),
		RoleName:  aws.String(role.Name),
	})
	return awserr.Classify(err)
}

// Teardown mirrors. Detach before delete; IAM refuses to delete an
// attached policy or a role with attachments.

func (c *Client) DetachPolicy(ctx context.Context, policyARN, roleName string) error {
	_, err := c.api.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		PolicyArn: aws.String(policyARN),
		RoleName:  aws.String(roleName),
	})
	return awserr.Classify(err)
}

func (c *Client) DeletePolicy(ctx context.Context, policyARN string) error {
	_, err := c.api.DeletePolicy(ctx, &iam.DeletePolicyInput{
		PolicyArn: aws.String(policyARN),
	})
	return awserr.Classify(err)
}

func (c *Client) DeleteRole(ctx context.Context, roleName string) error {
	_, err := c.api.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	})
	return awserr.Classify(err)
}
