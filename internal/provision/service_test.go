package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"idbroker/internal/accessctl"
	"idbroker/internal/directory"
	"idbroker/internal/federation"
	"idbroker/internal/userindex"
	"idbroker/pkg/awserr"
	"idbroker/pkg/awspolicy"
)

type fakeDirs struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeDirs) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDirs) CreateDirectory(_ context.Context, name string) (string, error) {
	f.record("CreateDirectory")
	return "pool-" + name, nil
}

func (f *fakeDirs) CreateClientRegistration(_ context.Context, _, name string) (string, error) {
	f.record("CreateClientRegistration")
	return "client-" + name, nil
}

func (f *fakeDirs) CreateEntry(_ context.Context, _ string, e directory.NewEntry) (string, error) {
	f.record("CreateEntry")
	return "sub-" + e.UserName, nil
}

type fakeAccess struct {
	mu       sync.Mutex
	policies map[string]bool
	roles    map[string]bool
	attached []string
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{policies: map[string]bool{}, roles: map[string]bool{}}
}

func (f *fakeAccess) CreatePolicy(_ context.Context, name string, doc awspolicy.Document) (accessctl.PolicyRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.Empty() {
		return accessctl.PolicyRef{}, errors.New("empty document")
	}
	if f.policies[name] {
		return accessctl.PolicyRef{}, &awserr.ConflictError{Cause: errors.New("EntityAlreadyExists")}
	}
	f.policies[name] = true
	return accessctl.PolicyRef{Name: name, ARN: "arn:aws:iam::123456789012:policy/" + name}, nil
}

func (f *fakeAccess) CreateRole(_ context.Context, name string, _ awspolicy.Document) (accessctl.RoleRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[name] {
		return accessctl.RoleRef{}, &awserr.ConflictError{Cause: errors.New("EntityAlreadyExists")}
	}
	f.roles[name] = true
	return accessctl.RoleRef{Name: name, ARN: "arn:aws:iam::123456789012:role/" + name}, nil
}

func (f *fakeAccess) AttachPolicy(_ context.Context, policy accessctl.PolicyRef, role accessctl.RoleRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, policy.Name+"->"+role.Name)
	return nil
}

type fakeFed struct {
	mu        sync.Mutex
	boundPool string
	boundAuth string
	rules     []federation.MappingRule
}

func (f *fakeFed) CreateFederatedIdentityPool(_ context.Context, _, _, name string) (string, error) {
	return "idp-" + name, nil
}

func (f *fakeFed) BindRoleMapping(_ context.Context, identityPoolID, authRoleARN, _, _ string, rules []federation.MappingRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundPool = identityPoolID
	f.boundAuth = authRoleARN
	f.rules = rules
	return nil
}

type fakeIndex struct {
	mu      sync.Mutex
	records map[string]userindex.Record
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]userindex.Record{}}
}

func (f *fakeIndex) LookupSystem(_ context.Context, userID string) (userindex.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[userID]
	if !ok {
		return userindex.Record{}, userindex.ErrNotFound
	}
	return r, nil
}

func (f *fakeIndex) Put(_ context.Context, r userindex.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.UserID] = r
	return nil
}

func (f *fakeIndex) Lookup(_ context.Context, tenantID, userID string) (userindex.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[userID]
	if !ok || r.TenantID != tenantID {
		return userindex.Record{}, userindex.ErrNotFound
	}
	return r, nil
}

func (f *fakeIndex) Delete(_ context.Context, _, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, userID)
	return nil
}

func testParams() awspolicy.Params {
	return awspolicy.Params{
		AccountID:    "123456789012",
		Region:       "us-east-1",
		TenantTable:  "Tenant",
		UserTable:    "User",
		ProductTable: "Product",
		OrderTable:   "Order",
	}
}

func newTestService(dirs Directories, acc AccessControl, fed Federation, idx UserIndex) *Service {
	return NewService(dirs, acc, fed, idx, testParams(), 0, zap.NewNop().Sugar())
}

func tenantRequest(tenantID string) Request {
	return Request{
		TenantID:    tenantID,
		CompanyName: "Acme",
		OwnerName:   "Pat Admin",
		Email:       "pat@example.com",
		UserName:    "pat@example.com",
		FirstName:   "Pat",
		LastName:    "Admin",
		Tier:        "Standard",
	}
}

func TestProvisionTenantAdmin(t *testing.T) {
	dirs := &fakeDirs{}
	acc := newFakeAccess()
	fed := &fakeFed{}
	idx := newFakeIndex()
	svc := newTestService(dirs, acc, fed, idx)

	res, err := svc.ProvisionTenantAdmin(context.Background(), tenantRequest("T1"))
	if err != nil {
		t.Fatalf("ProvisionTenantAdmin: %v", err)
	}

	want := Result{
		Pool:           PoolInfo{DirectoryID: "pool-T1"},
		UserPoolClient: ClientInfo{ClientID: "client-T1"},
		IdentityPool:   PoolRef{IdentityPoolID: "idp-T1"},
		Role: RoleInfo{
			SystemAdminRole:   "T1-TenantAdmin",
			SystemSupportRole: "T1-TenantUser",
			TrustRole:         "T1-Trust",
		},
		Policy: PolicyInfo{
			SystemAdminPolicy:   "arn:aws:iam::123456789012:policy/T1-TenantAdminPolicy",
			SystemSupportPolicy: "arn:aws:iam::123456789012:policy/T1-TenantUserPolicy",
		},
		AddRoleToIdentity: "idp-T1",
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	if len(fed.rules) != 2 {
		t.Fatalf("want 2 mapping rules, got %d", len(fed.rules))
	}
	wantRules := []federation.MappingRule{
		{ClaimValue: "TenantAdmin", RoleARN: "arn:aws:iam::123456789012:role/T1-TenantAdmin"},
		{ClaimValue: "TenantUser", RoleARN: "arn:aws:iam::123456789012:role/T1-TenantUser"},
	}
	if diff := cmp.Diff(wantRules, fed.rules); diff != "" {
		t.Fatalf("mapping rules mismatch (-want +got):\n%s", diff)
	}
	if fed.boundAuth != "arn:aws:iam::123456789012:role/T1-Trust" {
		t.Fatalf("authenticated role = %q, want trust role", fed.boundAuth)
	}

	rec, err := idx.LookupSystem(context.Background(), "pat@example.com")
	if err != nil {
		t.Fatalf("index record missing after provisioning: %v", err)
	}
	if rec.TenantID != "T1" || rec.UserPoolID != "pool-T1" || rec.IdentityPoolID != "idp-T1" {
		t.Fatalf("index record incomplete: %+v", rec)
	}
	if rec.Role != "TenantAdmin" {
		t.Fatalf("index role = %q, want TenantAdmin", rec.Role)
	}
}

func TestProvisionSystemAdminRoleNames(t *testing.T) {
	svc := newTestService(&fakeDirs{}, newFakeAccess(), &fakeFed{}, newFakeIndex())

	res, err := svc.ProvisionSystemAdmin(context.Background(), tenantRequest("SYS"))
	if err != nil {
		t.Fatalf("ProvisionSystemAdmin: %v", err)
	}
	if res.Role.SystemAdminRole != "SYS-SystemAdmin" || res.Role.SystemSupportRole != "SYS-SystemUser" {
		t.Fatalf("role names = %q/%q", res.Role.SystemAdminRole, res.Role.SystemSupportRole)
	}
}

func TestProvisionExistingUserShortCircuits(t *testing.T) {
	dirs := &fakeDirs{}
	acc := newFakeAccess()
	idx := newFakeIndex()
	idx.records["pat@example.com"] = userindex.Record{TenantID: "T0", UserID: "pat@example.com"}
	svc := newTestService(dirs, acc, &fakeFed{}, idx)

	_, err := svc.ProvisionTenantAdmin(context.Background(), tenantRequest("T1"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if len(dirs.calls) != 0 {
		t.Fatalf("directory calls after short-circuit: %v", dirs.calls)
	}
	if len(acc.policies) != 0 || len(acc.roles) != 0 {
		t.Fatalf("access control touched after short-circuit")
	}
}

func TestProvisionValidation(t *testing.T) {
	svc := newTestService(&fakeDirs{}, newFakeAccess(), &fakeFed{}, newFakeIndex())

	var cfgErr *ConfigurationError
	if _, err := svc.ProvisionTenantAdmin(context.Background(), Request{UserName: "x"}); !errors.As(err, &cfgErr) {
		t.Fatalf("missing tenant id: err = %v", err)
	}
	if _, err := svc.ProvisionTenantAdmin(context.Background(), Request{TenantID: "T1"}); !errors.As(err, &cfgErr) {
		t.Fatalf("missing user name: err = %v", err)
	}

	bare := NewService(&fakeDirs{}, newFakeAccess(), &fakeFed{}, newFakeIndex(), awspolicy.Params{}, 0, zap.NewNop().Sugar())
	if _, err := bare.ProvisionTenantAdmin(context.Background(), tenantRequest("T1")); !errors.As(err, &cfgErr) {
		t.Fatalf("missing tables: err = %v", err)
	}
}

// deadlineAccess fails any call whose context is missing the per-step
// deadline.
type deadlineAccess struct {
	*fakeAccess
}

func requireDeadline(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("call context has no deadline")
	}
	return nil
}

func (d *deadlineAccess) CreatePolicy(ctx context.Context, name string, doc awspolicy.Document) (accessctl.PolicyRef, error) {
	if err := requireDeadline(ctx); err != nil {
		return accessctl.PolicyRef{}, err
	}
	return d.fakeAccess.CreatePolicy(ctx, name, doc)
}

func (d *deadlineAccess) CreateRole(ctx context.Context, name string, trust awspolicy.Document) (accessctl.RoleRef, error) {
	if err := requireDeadline(ctx); err != nil {
		return accessctl.RoleRef{}, err
	}
	return d.fakeAccess.CreateRole(ctx, name, trust)
}

func (d *deadlineAccess) AttachPolicy(ctx context.Context, policy accessctl.PolicyRef, role accessctl.RoleRef) error {
	if err := requireDeadline(ctx); err != nil {
		return err
	}
	return d.fakeAccess.AttachPolicy(ctx, policy, role)
}

func TestStepDeadlineReachesAccessControl(t *testing.T) {
	acc := &deadlineAccess{fakeAccess: newFakeAccess()}
	svc := NewService(&fakeDirs{}, acc, &fakeFed{}, newFakeIndex(), testParams(), time.Minute, zap.NewNop().Sugar())

	if _, err := svc.ProvisionTenantAdmin(context.Background(), tenantRequest("T1")); err != nil {
		t.Fatalf("ProvisionTenantAdmin: %v", err)
	}
	if len(acc.policies) != 2 || len(acc.roles) != 3 || len(acc.attached) != 2 {
		t.Fatalf("access control calls missing: policies=%d roles=%d attached=%d",
			len(acc.policies), len(acc.roles), len(acc.attached))
	}
}

type failingAccess struct {
	*fakeAccess
	failRole string
}

func (f *failingAccess) CreateRole(ctx context.Context, name string, trust awspolicy.Document) (accessctl.RoleRef, error) {
	if name == f.failRole {
		return accessctl.RoleRef{}, &awserr.OpError{Cause: errors.New("boom")}
	}
	return f.fakeAccess.CreateRole(ctx, name, trust)
}

func TestProvisionFailureReportsState(t *testing.T) {
	acc := &failingAccess{fakeAccess: newFakeAccess(), failRole: "T1-Trust"}
	fed := &fakeFed{}
	svc := newTestService(&fakeDirs{}, acc, fed, newFakeIndex())

	_, err := svc.ProvisionTenantAdmin(context.Background(), tenantRequest("T1"))
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if provErr.State != StateTrustRoleCreated {
		t.Fatalf("state = %s, want %s", provErr.State, StateTrustRoleCreated)
	}
	// No rollback: earlier resources stay, later steps never run.
	if !acc.policies["T1-TenantAdminPolicy"] || !acc.roles["T1-TenantAdmin"] {
		t.Fatalf("earlier resources missing: %v %v", acc.policies, acc.roles)
	}
	if len(acc.attached) != 0 {
		t.Fatalf("attachments ran after failure: %v", acc.attached)
	}
	if fed.boundPool != "" {
		t.Fatalf("role mapping bound after failure")
	}
}

// Two concurrent runs for one tenant race to the same policy names; the
// name collision lets exactly one finish.
func TestProvisionConcurrentSameTenant(t *testing.T) {
	acc := newFakeAccess()
	fed := &fakeFed{}
	idx := newFakeIndex()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := newTestService(&fakeDirs{}, acc, fed, idx)
			req := tenantRequest("T1")
			req.UserName = fmt.Sprintf("admin%d@example.com", i)
			req.Email = req.UserName
			_, errs[i] = svc.ProvisionTenantAdmin(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var done, failed int
	for _, err := range errs {
		switch {
		case err == nil:
			done++
		default:
			var provErr *ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("unexpected error shape: %v", err)
			}
			if !awserr.IsConflict(provErr.Err) {
				t.Fatalf("loser did not fail on a collision: %v", provErr.Err)
			}
			failed++
		}
	}
	if done != 1 || failed != 1 {
		t.Fatalf("done=%d failed=%d, want exactly one of each", done, failed)
	}
}
