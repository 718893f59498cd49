// Package provision coordinates tenant identity onboarding: one run
// turns a tenant registration into a user directory, a client
// registration, a federated identity pool, tenant-scoped policies and
// roles, and the claim->role mapping that ties them together.
package provision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"idbroker/internal/accessctl"
	"idbroker/internal/directory"
	"idbroker/internal/federation"
	"idbroker/internal/userindex"
	"idbroker/pkg/awspolicy"
)

// Narrow capability views over the control-plane clients. The
// orchestrator depends on these rather than the concrete clients so the
// chain can be exercised against fakes.

type Directories interface {
	CreateDirectory(ctx context.Context, name string) (string, error)
	CreateClientRegistration(ctx context.Context, directoryID, name string) (string, error)
	CreateEntry(ctx context.Context, directoryID string, e directory.NewEntry) (string, error)
}

type AccessControl interface {
	CreatePolicy(ctx context.Context, name string, doc awspolicy.Document) (accessctl.PolicyRef, error)
	CreateRole(ctx context.Context, name string, trust awspolicy.Document) (accessctl.RoleRef, error)
	AttachPolicy(ctx context.Context, policy accessctl.PolicyRef, role accessctl.RoleRef) error
}

type Federation interface {
	CreateFederatedIdentityPool(ctx context.Context, clientID, directoryID, name string) (string, error)
	BindRoleMapping(ctx context.Context, identityPoolID, authRoleARN, directoryID, clientID string, rules []federation.MappingRule) error
}

type UserIndex interface {
	LookupSystem(ctx context.Context, userID string) (userindex.Record, error)
	Put(ctx context.Context, r userindex.Record) error
}

type Service struct {
	dirs Directories
	acc  AccessControl
	fed  Federation
	idx  UserIndex

	// template for per-run policy parameters; TenantID and UserPoolID
	// are filled in by each run.
	params awspolicy.Params

	// per-step deadline for external calls; zero means none.
	timeout time.Duration

	log     *zap.SugaredLogger
	metrics *metrics
	now     func() time.Time
}

func NewService(dirs Directories, acc AccessControl, fed Federation, idx UserIndex, params awspolicy.Params, timeout time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{
		dirs:    dirs,
		acc:     acc,
		fed:     fed,
		idx:     idx,
		params:  params,
		timeout: timeout,
		log:     log,
		metrics: newMetrics(),
		now:     time.Now,
	}
}

// flow carries the identifiers accumulated across one run. Every field
// below the request is written by exactly one step and read only by
// later steps.
type flow struct {
	req       Request
	adminKind awspolicy.RoleKind
	userKind  awspolicy.RoleKind
	params    awspolicy.Params

	directoryID    string
	clientID       string
	identityPoolID string
	trust          awspolicy.Document

	adminPolicy accessctl.PolicyRef
	userPolicy  accessctl.PolicyRef
	adminRole   accessctl.RoleRef
	userRole    accessctl.RoleRef
	trustRole   accessctl.RoleRef
}

type step struct {
	reaches State
	run     func(ctx context.Context, f *flow) error
}

// ProvisionTenantAdmin runs the full onboarding chain for a tenant,
// creating the tenant's first administrator with the TenantAdmin and
// TenantUser role pair.
func (s *Service) ProvisionTenantAdmin(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, req, awspolicy.TenantAdmin, awspolicy.TenantUser)
}

// ProvisionSystemAdmin runs the same chain for the operator-facing
// system tenant, with the SystemAdmin and SystemUser role pair.
func (s *Service) ProvisionSystemAdmin(ctx context.Context, req Request) (Result, error) {
	return s.run(ctx, req, awspolicy.SystemAdmin, awspolicy.SystemUser)
}

func (s *Service) run(ctx context.Context, req Request, adminKind, userKind awspolicy.RoleKind) (Result, error) {
	started := s.now()
	if err := s.validate(req, adminKind, userKind); err != nil {
		s.metrics.runs.WithLabelValues(outcomeInvalid).Inc()
		return Result{}, err
	}

	f := &flow{
		req:       req,
		adminKind: adminKind,
		userKind:  userKind,
		params:    s.params,
	}
	f.params.TenantID = req.TenantID

	steps := []step{
		{StateExistenceChecked, s.checkExistence},
		{StateDirectoryCreated, s.createDirectory},
		{StateClientRegistered, s.registerClient},
		{StateIdentityPoolCreated, s.createIdentityPool},
		{StateAdminPolicyCreated, s.createAdminPolicy},
		{StateAdminUserCreated, s.createAdminUser},
		{StateUserPolicyCreated, s.createUserPolicy},
		{StateAdminRoleCreated, s.createAdminRole},
		{StateUserRoleCreated, s.createUserRole},
		{StateTrustRoleCreated, s.createTrustRole},
		{StateAdminPolicyAttached, s.attachAdminPolicy},
		{StateUserPolicyAttached, s.attachUserPolicy},
		{StateRoleMappingBound, s.bindRoleMapping},
	}

	for _, st := range steps {
		if err := s.runStep(ctx, st, f); err != nil {
			s.metrics.stepFailures.WithLabelValues(string(st.reaches)).Inc()
			if errors.Is(err, ErrAlreadyExists) {
				s.metrics.runs.WithLabelValues(outcomeExists).Inc()
				return Result{}, err
			}
			s.log.Errorw("provisioning failed",
				"tenant_id", req.TenantID,
				"state", st.reaches,
				"error", err)
			s.metrics.runs.WithLabelValues(outcomeFailed).Inc()
			return Result{}, &ProviderError{State: st.reaches, Err: err}
		}
	}

	s.metrics.runs.WithLabelValues(outcomeDone).Inc()
	s.metrics.duration.Observe(s.now().Sub(started).Seconds())
	s.log.Infow("provisioning complete",
		"tenant_id", req.TenantID,
		"directory_id", f.directoryID,
		"identity_pool_id", f.identityPoolID)

	return Result{
		Pool:           PoolInfo{DirectoryID: f.directoryID},
		UserPoolClient: ClientInfo{ClientID: f.clientID},
		IdentityPool:   PoolRef{IdentityPoolID: f.identityPoolID},
		Role: RoleInfo{
			SystemAdminRole:   f.adminRole.Name,
			SystemSupportRole: f.userRole.Name,
			TrustRole:         f.trustRole.Name,
		},
		Policy: PolicyInfo{
			SystemAdminPolicy:   f.adminPolicy.ARN,
			SystemSupportPolicy: f.userPolicy.ARN,
		},
		AddRoleToIdentity: f.identityPoolID,
	}, nil
}

func (s *Service) runStep(ctx context.Context, st step, f *flow) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return st.run(ctx, f)
}

func (s *Service) validate(req Request, adminKind, userKind awspolicy.RoleKind) error {
	switch {
	case req.TenantID == "":
		return &ConfigurationError{Reason: "missing tenant id"}
	case req.UserName == "":
		return &ConfigurationError{Reason: "missing user name"}
	case !awspolicy.Known(adminKind) || !awspolicy.Known(userKind):
		return &ConfigurationError{Reason: "unknown role kind"}
	case s.params.UserTable == "" || s.params.TenantTable == "":
		return &ConfigurationError{Reason: "missing table configuration"}
	}
	return nil
}

// Step functions. Every identifier created by a step is logged before
// the next step runs, so a later failure leaves enough of a trail to
// reconcile by hand.

func (s *Service) checkExistence(ctx context.Context, f *flow) error {
	_, err := s.idx.LookupSystem(ctx, f.req.UserName)
	if err == nil {
		return ErrAlreadyExists
	}
	if errors.Is(err, userindex.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) createDirectory(ctx context.Context, f *flow) error {
	id, err := s.dirs.CreateDirectory(ctx, f.req.TenantID)
	if err != nil {
		return err
	}
	f.directoryID = id
	f.params.UserPoolID = id
	s.log.Infow("directory created", "tenant_id", f.req.TenantID, "directory_id", id)
	return nil
}

func (s *Service) registerClient(ctx context.Context, f *flow) error {
	id, err := s.dirs.CreateClientRegistration(ctx, f.directoryID, f.req.TenantID)
	if err != nil {
		return err
	}
	f.clientID = id
	s.log.Infow("client registered", "tenant_id", f.req.TenantID, "client_id", id)
	return nil
}

func (s *Service) createIdentityPool(ctx context.Context, f *flow) error {
	id, err := s.fed.CreateFederatedIdentityPool(ctx, f.clientID, f.directoryID, f.req.TenantID)
	if err != nil {
		return err
	}
	f.identityPoolID = id
	f.trust = awspolicy.BuildTrustPolicy(id)
	s.log.Infow("identity pool created", "tenant_id", f.req.TenantID, "identity_pool_id", id)
	return nil
}

func (s *Service) createAdminPolicy(ctx context.Context, f *flow) error {
	doc := awspolicy.BuildPolicy(f.adminKind, f.params)
	if doc.Empty() {
		return &ConfigurationError{Reason: "no policy template for role kind " + string(f.adminKind)}
	}
	ref, err := s.acc.CreatePolicy(ctx, policyName(f.req.TenantID, f.adminKind), doc)
	if err != nil {
		return err
	}
	f.adminPolicy = ref
	s.log.Infow("admin policy created", "tenant_id", f.req.TenantID, "policy_arn", ref.ARN)
	return nil
}

func (s *Service) createAdminUser(ctx context.Context, f *flow) error {
	sub, err := s.dirs.CreateEntry(ctx, f.directoryID, directory.NewEntry{
		UserName:  f.req.UserName,
		Email:     f.req.Email,
		FirstName: f.req.FirstName,
		LastName:  f.req.LastName,
		Role:      string(f.adminKind),
		Tier:      f.req.Tier,
		TenantID:  f.req.TenantID,
	})
	if err != nil {
		return err
	}
	if err := s.idx.Put(ctx, userindex.Record{
		TenantID:       f.req.TenantID,
		UserID:         f.req.UserName,
		UserPoolID:     f.directoryID,
		IdentityPoolID: f.identityPoolID,
		ClientID:       f.clientID,
		Email:          f.req.Email,
		Role:           string(f.adminKind),
		Tier:           f.req.Tier,
		FirstName:      f.req.FirstName,
		LastName:       f.req.LastName,
		Sub:            sub,
	}); err != nil {
		return err
	}
	s.log.Infow("admin user created", "tenant_id", f.req.TenantID, "user_id", f.req.UserName, "sub", sub)
	return nil
}

func (s *Service) createUserPolicy(ctx context.Context, f *flow) error {
	doc := awspolicy.BuildPolicy(f.userKind, f.params)
	if doc.Empty() {
		return &ConfigurationError{Reason: "no policy template for role kind " + string(f.userKind)}
	}
	ref, err := s.acc.CreatePolicy(ctx, policyName(f.req.TenantID, f.userKind), doc)
	if err != nil {
		return err
	}
	f.userPolicy = ref
	s.log.Infow("user policy created", "tenant_id", f.req.TenantID, "policy_arn", ref.ARN)
	return nil
}

func (s *Service) createAdminRole(ctx context.Context, f *flow) error {
	ref, err := s.acc.CreateRole(ctx, roleName(f.req.TenantID, f.adminKind), f.trust)
	if err != nil {
		return err
	}
	f.adminRole = ref
	s.log.Infow("admin role created", "tenant_id", f.req.TenantID, "role_arn", ref.ARN)
	return nil
}

func (s *Service) createUserRole(ctx context.Context, f *flow) error {
	ref, err := s.acc.CreateRole(ctx, roleName(f.req.TenantID, f.userKind), f.trust)
	if err != nil {
		return err
	}
	f.userRole = ref
	s.log.Infow("user role created", "tenant_id", f.req.TenantID, "role_arn", ref.ARN)
	return nil
}

func (s *Service) createTrustRole(ctx context.Context, f *flow) error {
	ref, err := s.acc.CreateRole(ctx, trustRoleName(f.req.TenantID), f.trust)
	if err != nil {
		return err
	}
	f.trustRole = ref
	s.log.Infow("trust role created", "tenant_id", f.req.TenantID, "role_arn", ref.ARN)
	return nil
}

func (s *Service) attachAdminPolicy(ctx context.Context, f *flow) error {
	return s.acc.AttachPolicy(ctx, f.adminPolicy, f.adminRole)
}

func (s *Service) attachUserPolicy(ctx context.Context, f *flow) error {
	return s.acc.AttachPolicy(ctx, f.userPolicy, f.userRole)
}

func (s *Service) bindRoleMapping(ctx context.Context, f *flow) error {
	rules := []federation.MappingRule{
		{ClaimValue: string(f.adminKind), RoleARN: f.adminRole.ARN},
		{ClaimValue: string(f.userKind), RoleARN: f.userRole.ARN},
	}
	if err := s.fed.BindRoleMapping(ctx, f.identityPoolID, f.trustRole.ARN, f.directoryID, f.clientID, rules); err != nil {
		return err
	}
	s.log.Infow("role mapping bound", "tenant_id", f.req.TenantID, "identity_pool_id", f.identityPoolID, "rules", len(rules))
	return nil
}
