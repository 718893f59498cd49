package federation

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"idbroker/pkg/awserr"
)

// DiscoverAccountID resolves the owning AWS account via STS when it is
// not configured. The account id lands in every policy ARN the template
// engine emits, so provisioning cannot start without it.
func DiscoverAccountID(ctx context.Context, cfg aws.Config) (string, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", awserr.Classify(err)
	}
	return aws.ToString(out.Account), nil
}
