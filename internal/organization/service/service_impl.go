package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/authorization"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/observability/metrics"
	"github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"github.com/smallbiznis/membership/internal/ratelimit"
	"github.com/smallbiznis/membership/internal/role"
	userdomain "github.com/smallbiznis/membership/internal/user/domain"
	"github.com/smallbiznis/membership/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const slugAttempts = 5

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Users     userdomain.Repository
	Guard     authorization.Guard
	Otp       otpdomain.Service
	Gateway   delivery.Gateway
	Plans     billing.Plans
	Policy    *config.PolicyHolder
	Config    config.Config
	Clock     clock.Clock
	GenID     *snowflake.Node
	Publisher event.EventPublisher `optional:"true"`
	AuditSvc  auditdomain.Service  `optional:"true"`
	Limiter   *ratelimit.Limiter   `optional:"true"`
	Metrics   *metrics.Metrics     `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	users     userdomain.Repository
	guard     authorization.Guard
	otp       otpdomain.Service
	gateway   delivery.Gateway
	plans     billing.Plans
	policy    *config.PolicyHolder
	appURL    string
	clock     clock.Clock
	genID     *snowflake.Node
	publisher event.EventPublisher
	auditSvc  auditdomain.Service
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		repo:      p.Repo,
		users:     p.Users,
		guard:     p.Guard,
		otp:       p.Otp,
		gateway:   p.Gateway,
		plans:     p.Plans,
		policy:    p.Policy,
		appURL:    strings.TrimRight(strings.TrimSpace(p.Config.AppURL), "/"),
		clock:     p.Clock,
		genID:     p.GenID,
		publisher: p.Publisher,
		auditSvc:  p.AuditSvc,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	input, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	release, err := s.lockOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	owned, err := s.repo.GetOrganizationByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load owned organization: %w", err)
	}
	if owned != nil {
		return nil, domain.ErrAlreadyOwner
	}

	taken, err := s.repo.GetOrganizationBySlug(ctx, input.Slug)
	if err != nil {
		return nil, fmt.Errorf("load organization by slug: %w", err)
	}
	if taken != nil {
		return nil, domain.ErrSlugTaken
	}

	return s.createOrganization(ctx, userID, input, s.plans.DefaultPlan())
}

func (s *service) EnsureOrganizationForUser(ctx context.Context, userID snowflake.ID, ec domain.EnsureContext) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if email := strings.ToLower(strings.TrimSpace(ec.Email)); email != "" {
		s.syncProfile(ctx, userID, email)
	}

	current, err := s.findUserOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		org := current.Organization
		if !s.isPlaceholderName(org.Name) {
			return &org, nil
		}
		return s.renameDefault(ctx, &org, s.displayBase(ctx, userID, ec))
	}

	plan := strings.TrimSpace(ec.Plan)
	if plan == "" {
		plan = s.plans.DefaultPlan()
	}
	return s.CreateForPlan(ctx, userID, plan, ec)
}

// CreateForPlan creates the caller's organization on a purchased plan. Name
// and slug are derived from the profile the same way first sign-in does.
func (s *service) CreateForPlan(ctx context.Context, userID snowflake.ID, plan string, ec domain.EnsureContext) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" || slug.Make(plan) != plan {
		return nil, domain.ErrInvalidPlan
	}

	release, err := s.lockOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	owned, err := s.repo.GetOrganizationByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load owned organization: %w", err)
	}
	if owned != nil {
		return nil, domain.ErrAlreadyOwner
	}

	base := s.displayBase(ctx, userID, ec)
	slugValue, err := s.availableSlug(ctx, base, 0)
	if err != nil {
		return nil, err
	}
	return s.createOrganization(ctx, userID, organizationInput{
		Name: clubName(base),
		Slug: slugValue,
	}, plan)
}

func (s *service) GetUserOrganization(ctx context.Context, userID snowflake.ID) (*domain.UserOrganization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	current, err := s.findUserOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return current, nil
}

func (s *service) GetByID(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.loadOrganization(ctx, orgID)
}

func (s *service) Update(ctx context.Context, orgID, userID snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.Organization, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}
	if err := s.require(ctx, userID, orgID, role.OrgUpdateSettings); err != nil {
		return nil, err
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Website != nil {
		fields["website"] = strings.TrimSpace(*req.Website)
	}
	if req.Logo != nil {
		fields["logo"] = strings.TrimSpace(*req.Logo)
	}
	if req.Settings != nil {
		fields["settings"] = datatypes.NewJSONType(mergeSettings(org.Settings.Data(), *req.Settings))
	}
	if len(fields) == 0 {
		return org, nil
	}
	fields["updated_at"] = s.clock.Now()

	if err := s.repo.UpdateOrganization(ctx, orgID, fields); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	s.audit(ctx, orgID, userID, "organization.updated", "organization", orgID.String(), map[string]any{
		"fields": changedFields(fields),
	})
	return s.loadOrganization(ctx, orgID)
}

func (s *service) GetSettings(ctx context.Context, orgID, userID snowflake.ID) (*domain.Settings, error) {
	if err := s.require(ctx, userID, orgID, role.OrgViewSettings); err != nil {
		return nil, err
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	settings := org.Settings.Data()
	return &settings, nil
}

func (s *service) UpdateSettings(ctx context.Context, orgID, userID snowflake.ID, req domain.UpdateSettingsRequest) (*domain.Settings, error) {
	if err := validateSettings(req); err != nil {
		return nil, err
	}
	if err := s.require(ctx, userID, orgID, role.OrgUpdateSettings); err != nil {
		return nil, err
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	settings := mergeSettings(org.Settings.Data(), req)
	if err := s.repo.UpdateOrganization(ctx, orgID, map[string]any{
		"settings":   datatypes.NewJSONType(settings),
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.audit(ctx, orgID, userID, "organization.settings_updated", "organization", orgID.String(), nil)
	return &settings, nil
}

func (s *service) createOrganization(ctx context.Context, userID snowflake.ID, input organizationInput, plan string) (*domain.Organization, error) {
	now := s.clock.Now()
	creatorRole := role.Role(s.policy.Get().Organization.CreatorRole)
	if !role.Valid(creatorRole) {
		creatorRole = role.Admin
	}
	limits := s.plans.Limits(ctx, plan)

	org := &domain.Organization{
		ID:               s.genID.Generate(),
		Name:             input.Name,
		Slug:             input.Slug,
		Description:      input.Description,
		Website:          input.Website,
		Logo:             input.Logo,
		OwnerID:          userID,
		Status:           domain.StatusActive,
		SubscriptionPlan: limits.Plan,
		MemberCount:      1,
		MaxMembers:       limits.MaxMembers,
		Settings:         datatypes.NewJSONType(domain.DefaultSettings()),
		Usage:            datatypes.NewJSONType(domain.Usage{Members: 1, LastResetAt: now}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	inviter := userID
	member := &domain.Member{
		ID:          s.genID.Generate(),
		OrgID:       org.ID,
		UserID:      userID,
		Role:        creatorRole,
		Permissions: permissionSnapshot(creatorRole),
		IsActive:    true,
		JoinedAt:    now,
		InvitedBy:   &inviter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return repo.CreateMember(ctx, member)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.classifyDuplicate(ctx, userID)
		}
		return nil, fmt.Errorf("create organization: %w", err)
	}

	s.setUserOrganization(ctx, userID, &org.ID, creatorRole)
	s.emit(ctx, org.ID, event.OrganizationCreatedTopic, event.OrganizationCreated{
		OrganizationID: org.ID.String(),
		OwnerUserID:    userID.String(),
		Plan:           org.SubscriptionPlan,
		CreatedAt:      now.Format(time.RFC3339),
	})
	s.audit(ctx, org.ID, userID, "organization.created", "organization", org.ID.String(), map[string]any{
		"slug":         org.Slug,
		"creator_role": string(creatorRole),
	})
	s.metrics.RecordMemberChange(ctx, "created")
	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("owner_id", userID.String()),
		zap.String("plan", org.SubscriptionPlan),
	)
	return org, nil
}

// classifyDuplicate tells the two unique organization indexes apart after a
// concurrent writer won.
func (s *service) classifyDuplicate(ctx context.Context, userID snowflake.ID) error {
	owned, err := s.repo.GetOrganizationByOwner(ctx, userID)
	if err == nil && owned != nil {
		return domain.ErrAlreadyOwner
	}
	return domain.ErrSlugTaken
}

func (s *service) renameDefault(ctx context.Context, org *domain.Organization, base string) (*domain.Organization, error) {
	slugValue, err := s.availableSlug(ctx, base, org.ID)
	if err != nil {
		return nil, err
	}
	name := clubName(base)
	if err := s.repo.UpdateOrganization(ctx, org.ID, map[string]any{
		"name":       name,
		"slug":       slugValue,
		"updated_at": s.clock.Now(),
	}); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, fmt.Errorf("rename organization: %w", err)
	}
	return s.loadOrganization(ctx, org.ID)
}

func (s *service) findUserOrganization(ctx context.Context, userID snowflake.ID) (*domain.UserOrganization, error) {
	member, err := s.repo.GetFirstMemberByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if member != nil {
		org, err := s.repo.GetOrganization(ctx, member.OrgID)
		if err != nil {
			return nil, fmt.Errorf("load organization: %w", err)
		}
		if org != nil {
			return &domain.UserOrganization{Organization: *org, Membership: member}, nil
		}
	}

	owned, err := s.repo.GetOrganizationByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load owned organization: %w", err)
	}
	if owned == nil {
		return nil, nil
	}
	return &domain.UserOrganization{Organization: *owned}, nil
}

func (s *service) loadOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *service) require(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if err := s.guard.Require(ctx, userID, orgID, perm); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return domain.ErrForbidden
		}
		return err
	}
	return nil
}

// lockOwner serializes organization creation per user when redis is
// configured. A lock backend failure falls back to the unique indexes.
func (s *service) lockOwner(ctx context.Context, userID snowflake.ID) (func(), error) {
	release, err := s.limiter.LockOwner(ctx, userID.String())
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, ratelimit.ErrLockHeld):
		return nil, domain.ErrConcurrentRequest
	default:
		s.log.Warn("owner lock unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		return func() {}, nil
	}
}

func (s *service) isPlaceholderName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}
	for _, placeholder := range s.policy.Get().Organization.PlaceholderNames {
		if strings.EqualFold(trimmed, strings.TrimSpace(placeholder)) {
			return true
		}
	}
	return false
}

// displayBase picks the name a default organization is derived from.
func (s *service) displayBase(ctx context.Context, userID snowflake.ID, ec domain.EnsureContext) string {
	raw := strings.TrimSpace(ec.Name)
	if raw == "" {
		raw = strings.TrimSpace(ec.Email)
	}
	if raw == "" {
		if user, err := s.users.Get(ctx, userID); err == nil && user != nil {
			raw = strings.TrimSpace(user.Name)
			if raw == "" {
				raw = strings.TrimSpace(user.Email)
			}
		}
	}
	if local, _, ok := strings.Cut(raw, "@"); ok && local != "" {
		raw = local
	}
	if raw == "" {
		raw = "user"
	}
	return truncateRunes(raw, maxNameLength-len("'s Club"))
}

// availableSlug derives a slug from base and appends a random suffix until it
// is free or owned by selfID.
func (s *service) availableSlug(ctx context.Context, base string, selfID snowflake.ID) (string, error) {
	candidate := trimSlug(slug.Make(base), maxSlugLength)
	if candidate == "" {
		candidate = "club"
	}
	root := candidate

	for i := 0; i < slugAttempts; i++ {
		existing, err := s.repo.GetOrganizationBySlug(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("load organization by slug: %w", err)
		}
		if existing == nil || existing.ID == selfID {
			return candidate, nil
		}
		suffix, err := randomString(suffixAlphabet, 6)
		if err != nil {
			return "", err
		}
		candidate = trimSlug(root, maxSlugLength-len(suffix)-1) + "-" + suffix
	}
	return "", domain.ErrSlugTaken
}

func (s *service) setUserOrganization(ctx context.Context, userID snowflake.ID, orgID *snowflake.ID, r role.Role) {
	if err := s.users.SetOrganization(ctx, userID, orgID, string(r)); err != nil {
		s.log.Warn("failed to update user organization reference",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// syncProfile records the email the identity provider vouched for. Failures
// are logged; the caller already holds the email it needs.
func (s *service) syncProfile(ctx context.Context, userID snowflake.ID, email string) {
	if err := s.users.SyncProfile(ctx, userID, email, s.clock.Now()); err != nil {
		s.log.Warn("failed to sync user profile",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *service) emit(ctx context.Context, orgID snowflake.ID, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, orgID, topic, payload); err != nil {
		s.log.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *service) audit(ctx context.Context, orgID, actorID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actor := actorID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actor, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func permissionSnapshot(r role.Role) datatypes.JSONSlice[string] {
	return datatypes.JSONSlice[string](role.Strings(role.PermissionsFor(r)))
}

func clubName(base string) string {
	return base + "'s Club"
}

func trimSlug(value string, limit int) string {
	if len(value) > limit {
		value = value[:limit]
	}
	return strings.Trim(value, "-")
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

func changedFields(fields map[string]any) []string {
	out := make([]string, 0, len(fields))
	for key := range fields {
		if key == "updated_at" {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
