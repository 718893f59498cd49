// Package userindex is the DynamoDB-backed record of which directory,
// client and identity pool each user belongs to. The provisioning
// pre-check and the login-time pool lookup both read it; provisioning
// writes it once the admin user exists.
package userindex

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"idbroker/pkg/awserr"
)

// userNameIndex is the GSI keyed by user name alone, for system-context
// lookups where the tenant is not yet known.
const userNameIndex = "UserNameIndex"

var ErrNotFound = errors.New("userindex: no record")

// Record mirrors the user table item shape. Attribute names are fixed by
// the deployed table; the partition key is the tenant id, so every
// tenant-scoped access policy's leading-key condition applies to it.
type Record struct {
	TenantID       string `dynamodbav:"tenant_id"`
	UserID         string `dynamodbav:"user_id"`
	UserPoolID     string `dynamodbav:"UserPoolId"`
	IdentityPoolID string `dynamodbav:"IdentityPoolId"`
	ClientID       string `dynamodbav:"client_id"`
	Email          string `dynamodbav:"email"`
	Role           string `dynamodbav:"role"`
	Tier           string `dynamodbav:"tier,omitempty"`
	FirstName      string `dynamodbav:"firstName,omitempty"`
	LastName       string `dynamodbav:"lastName,omitempty"`
	Sub            string `dynamodbav:"sub,omitempty"`
}

type Index struct {
	api   *dynamodb.Client
	table string
	log   *zap.SugaredLogger
}

func New(cfg aws.Config, table string, log *zap.SugaredLogger) *Index {
	return &Index{api: dynamodb.NewFromConfig(cfg), table: table, log: log}
}

// LookupSystem finds a user by name alone via the GSI, regardless of
// tenant. This is the provisioning existence pre-check; it is not
// transactional with the directory creation that may follow it.
func (i *Index) LookupSystem(ctx context.Context, userID string) (Record, error) {
	out, err := i.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(i.table),
		IndexName:              aws.String(userNameIndex),
		KeyConditionExpression: aws.String("user_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return Record{}, awserr.Classify(err)
	}
	if len(out.Items) == 0 {
		return Record{}, ErrNotFound
	}
	var r Record
	if err := attributevalue.UnmarshalMap(out.Items[0], &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Lookup fetches a user within a known tenant scope.
func (i *Index) Lookup(ctx context.Context, tenantID, userID string) (Record, error) {
	out, err := i.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(i.table),
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
			"user_id":   &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return Record{}, awserr.Classify(err)
	}
	if out.Item == nil {
		return Record{}, ErrNotFound
	}
	var r Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (i *Index) Put(ctx context.Context, r Record) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return err
	}
	_, err = i.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(i.table),
		Item:      item,
	})
	return awserr.Classify(err)
}

func (i *Index) Delete(ctx context.Context, tenantID, userID string) error {
	_, err := i.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(i.table),
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
			"user_id":   &types.AttributeValueMemberS{Value: userID},
		},
	})
	return awserr.Classify(err)
}

// PoolLookup adapts the index to the credential exchange's interface.
type PoolLookup struct{ Index *Index }

func (p PoolLookup) IdentityPoolForUser(ctx context.Context, userName string) (string, error) {
	r, err := p.Index.LookupSystem(ctx, userName)
	if err != nil {
		return "", err
	}
	if r.IdentityPoolID == "" {
		return "", ErrNotFound
	}
	return r.IdentityPoolID, nil
}
