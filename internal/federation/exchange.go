package federation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognitoidentity "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"idbroker/pkg/awserr"
	"idbroker/pkg/credcache"
)

var (
	ErrNoToken      = errors.New("federation: empty bearer token")
	ErrBadToken     = errors.New("federation: token decode failed")
	ErrUnknownUser  = errors.New("federation: no identity pool on record for user")
	ErrNoCredential = errors.New("federation: provider returned no credentials")
)

// PoolLookup resolves the identity pool a user's credentials are brokered
// through. Backed by the user index populated at provisioning time.
type PoolLookup interface {
	IdentityPoolForUser(ctx context.Context, userName string) (string, error)
}

// identityAPI is the slice of the cognito-identity surface the exchanger
// uses, narrowed for test fakes.
type identityAPI interface {
	GetId(ctx context.Context, in *cognitoidentity.GetIdInput, opts ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, in *cognitoidentity.GetCredentialsForIdentityInput, opts ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// Exchanger turns a directory-issued bearer token into short-lived,
// policy-scoped AWS credentials, caching results for the remainder of
// the token's validity window (capped by config).
type Exchanger struct {
	api       identityAPI
	base      aws.Config
	accountID string
	pools     PoolLookup
	cache     credcache.Cache
	ttlCap    time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewExchanger(cfg aws.Config, accountID string, pools PoolLookup, cache credcache.Cache, ttlCap time.Duration, log *zap.SugaredLogger) *Exchanger {
	return &Exchanger{
		api:       cognitoidentity.NewFromConfig(cfg),
		base:      cfg,
		accountID: accountID,
		pools:     pools,
		cache:     cache,
		ttlCap:    ttlCap,
		log:       log,
		now:       time.Now,
	}
}

// ResolveCredentials decodes the token locally (no network call, no
// signature check; the provider re-verifies during the exchange),
// resolves it to a provider-scoped principal id, and exchanges that id
// plus the token for credentials.
func (e *Exchanger) ResolveCredentials(ctx context.Context, bearer string) (credcache.Credentials, error) {
	if bearer == "" {
		return credcache.Credentials{}, ErrNoToken
	}
	if creds, ok := e.cache.Get(ctx, bearer); ok && !creds.Expired(e.now()) {
		return creds, nil
	}

	tok, err := jwt.ParseInsecure([]byte(bearer))
	if err != nil {
		return credcache.Credentials{}, ErrBadToken
	}
	provider, userNameStr, err := tokenIdentity(tok)
	if err != nil {
		return credcache.Credentials{}, err
	}

	identityPoolID, err := e.pools.IdentityPoolForUser(ctx, userNameStr)
	if err != nil {
		return credcache.Credentials{}, ErrUnknownUser
	}

	logins := map[string]string{provider: bearer}
	idOut, err := e.api.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(identityPoolID),
		AccountId:      aws.String(e.accountID),
		Logins:         logins,
	})
	if err != nil {
		return credcache.Credentials{}, awserr.Classify(err)
	}
	credOut, err := e.api.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: idOut.IdentityId,
		Logins:     logins,
	})
	if err != nil {
		return credcache.Credentials{}, awserr.Classify(err)
	}
	if credOut.Credentials == nil {
		return credcache.Credentials{}, ErrNoCredential
	}

	creds := credcache.Credentials{
		AccessKeyID:  aws.ToString(credOut.Credentials.AccessKeyId),
		SecretKey:    aws.ToString(credOut.Credentials.SecretKey),
		SessionToken: aws.ToString(credOut.Credentials.SessionToken),
	}
	if credOut.Credentials.Expiration != nil {
		creds.Expiration = *credOut.Credentials.Expiration
	}

	e.cache.Put(ctx, bearer, creds, e.cacheTTL(tok.Expiration()))
	return creds, nil
}

func tokenIdentity(tok jwt.Token) (provider, userName string, err error) {
	provider = strings.TrimPrefix(tok.Issuer(), "https://")
	claim, _ := tok.Get("cognito:username")
	userName, _ = claim.(string)
	if provider == "" || userName == "" {
		return "", "", ErrBadToken
	}
	return provider, userName, nil
}

// UserNameFromToken decodes a directory token locally and returns the
// directory username it was issued to. No signature check; callers use
// the name only to look up index records, and the credentials guarding
// the actual provider calls come from ResolveCredentials.
func UserNameFromToken(bearer string) (string, error) {
	if bearer == "" {
		return "", ErrNoToken
	}
	tok, err := jwt.ParseInsecure([]byte(bearer))
	if err != nil {
		return "", ErrBadToken
	}
	_, userName, err := tokenIdentity(tok)
	return userName, err
}

// cacheTTL bounds the cache entry by the token's remaining validity; a
// token without an exp claim gets the configured cap.
func (e *Exchanger) cacheTTL(tokenExp time.Time) time.Duration {
	ttl := e.ttlCap
	if !tokenExp.IsZero() {
		if remain := tokenExp.Sub(e.now()); remain < ttl {
			ttl = remain
		}
	}
	return ttl
}

// SystemCredentials bypasses token decode entirely and pulls credentials
// from the ambient process identity, for internal service-to-service
// calls not acting on behalf of a tenant.
func (e *Exchanger) SystemCredentials(ctx context.Context) (credcache.Credentials, error) {
	c, err := e.base.Credentials.Retrieve(ctx)
	if err != nil {
		return credcache.Credentials{}, err
	}
	out := credcache.Credentials{
		AccessKeyID:  c.AccessKeyID,
		SecretKey:    c.SecretAccessKey,
		SessionToken: c.SessionToken,
	}
	if c.CanExpire {
		out.Expiration = c.Expires
	}
	return out, nil
}
