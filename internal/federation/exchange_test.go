package federation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognitoidentity "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	"go.uber.org/zap"

	"idbroker/pkg/credcache"
)

type fakeIdentityAPI struct {
	getIDCalls int
	credCalls  int
	identityID string
	expiration time.Time
}

func (f *fakeIdentityAPI) GetId(_ context.Context, in *cognitoidentity.GetIdInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error) {
	f.getIDCalls++
	if aws.ToString(in.IdentityPoolId) == "" {
		return nil, errors.New("missing pool id")
	}
	return &cognitoidentity.GetIdOutput{IdentityId: aws.String(f.identityID)}, nil
}

func (f *fakeIdentityAPI) GetCredentialsForIdentity(_ context.Context, in *cognitoidentity.GetCredentialsForIdentityInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error) {
	f.credCalls++
	if aws.ToString(in.IdentityId) != f.identityID {
		return nil, errors.New("unknown identity")
	}
	return &cognitoidentity.GetCredentialsForIdentityOutput{
		Credentials: &types.Credentials{
			AccessKeyId:  aws.String("AKIATEST"),
			SecretKey:    aws.String("secret"),
			SessionToken: aws.String("session"),
			Expiration:   aws.Time(f.expiration),
		},
	}, nil
}

type fakePoolLookup struct {
	pools map[string]string
}

func (f *fakePoolLookup) IdentityPoolForUser(_ context.Context, userName string) (string, error) {
	p, ok := f.pools[userName]
	if !ok {
		return "", errors.New("no record")
	}
	return p, nil
}

// unsignedToken builds a compact JWS whose signature is never checked by
// the local decode path.
func unsignedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return enc(map[string]any{"alg": "RS256", "typ": "JWT"}) + "." + enc(claims) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func newTestExchanger(api identityAPI, pools PoolLookup, cache credcache.Cache, now time.Time) *Exchanger {
	return &Exchanger{
		api:       api,
		accountID: "123456789012",
		pools:     pools,
		cache:     cache,
		ttlCap:    55 * time.Minute,
		log:       zap.NewNop().Sugar(),
		now:       func() time.Time { return now },
	}
}

func TestResolveCredentialsExchangesAndCaches(t *testing.T) {
	now := time.Unix(1700000000, 0)
	api := &fakeIdentityAPI{identityID: "us-east-1:identity-1", expiration: now.Add(time.Hour)}
	pools := &fakePoolLookup{pools: map[string]string{"admin@t1.com": "us-east-1:pool-1"}}
	ex := newTestExchanger(api, pools, credcache.NewMemory(), now)

	token := unsignedToken(t, map[string]any{
		"iss":              "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_POOL",
		"cognito:username": "admin@t1.com",
		"exp":              now.Add(30 * time.Minute).Unix(),
	})

	creds, err := ex.ResolveCredentials(context.Background(), token)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.AccessKeyID != "AKIATEST" || creds.SessionToken != "session" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	// Second call for the same token must come from the cache.
	if _, err := ex.ResolveCredentials(context.Background(), token); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if api.getIDCalls != 1 || api.credCalls != 1 {
		t.Fatalf("expected one exchange, got getId=%d creds=%d", api.getIDCalls, api.credCalls)
	}
}

func TestResolveCredentialsRejectsGarbage(t *testing.T) {
	ex := newTestExchanger(&fakeIdentityAPI{}, &fakePoolLookup{}, credcache.NewMemory(), time.Now())

	if _, err := ex.ResolveCredentials(context.Background(), ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := ex.ResolveCredentials(context.Background(), "not-a-jwt"); !errors.Is(err, ErrBadToken) {
		t.Fatalf("malformed token: %v", err)
	}
}

func TestResolveCredentialsUnknownUser(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ex := newTestExchanger(&fakeIdentityAPI{identityID: "id"}, &fakePoolLookup{pools: map[string]string{}}, credcache.NewMemory(), now)

	token := unsignedToken(t, map[string]any{
		"iss":              "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_POOL",
		"cognito:username": "ghost@t1.com",
		"exp":              now.Add(time.Hour).Unix(),
	})
	if _, err := ex.ResolveCredentials(context.Background(), token); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestUserNameFromToken(t *testing.T) {
	token := unsignedToken(t, map[string]any{
		"iss":              "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_POOL",
		"cognito:username": "admin@t1.com",
	})
	name, err := UserNameFromToken(token)
	if err != nil {
		t.Fatalf("UserNameFromToken: %v", err)
	}
	if name != "admin@t1.com" {
		t.Fatalf("name = %q", name)
	}

	if _, err := UserNameFromToken(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("empty token: %v", err)
	}
	missing := unsignedToken(t, map[string]any{"iss": "https://issuer"})
	if _, err := UserNameFromToken(missing); !errors.Is(err, ErrBadToken) {
		t.Fatalf("missing claim: %v", err)
	}
}

func TestCacheTTLIsBoundedByTokenExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ex := newTestExchanger(&fakeIdentityAPI{}, &fakePoolLookup{}, credcache.NewMemory(), now)

	if got := ex.cacheTTL(now.Add(10 * time.Minute)); got != 10*time.Minute {
		t.Errorf("near expiry: got %v", got)
	}
	if got := ex.cacheTTL(now.Add(4 * time.Hour)); got != 55*time.Minute {
		t.Errorf("far expiry should hit cap: got %v", got)
	}
	if got := ex.cacheTTL(time.Time{}); got != 55*time.Minute {
		t.Errorf("no expiry should hit cap: got %v", got)
	}
}
