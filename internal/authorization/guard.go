package authorization

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Repo     orgdomain.Repository
	Enforcer *casbin.SyncedEnforcer `optional:"true"`
	AuditSvc auditdomain.Service    `optional:"true"`
	Metrics  *metrics.HTTPMetrics   `optional:"true"`
}

type guard struct {
	log      *zap.Logger
	repo     orgdomain.Repository
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
	metrics  *metrics.HTTPMetrics
}

func NewGuard(p Params) Guard {
	g := &guard{
		log:      p.Log.Named("authorization.guard"),
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
	if p.Config.AuthzPermissionMode == config.PermissionModeLive {
		g.enforcer = p.Enforcer
	}
	return g
}

// subject is the resolved caller inside one organization.
type subject struct {
	member  *orgdomain.Member
	isOwner bool
}

func (s subject) none() bool {
	return s.member == nil && !s.isOwner
}

func (g *guard) Authorize(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) (bool, error) {
	sub, err := g.resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	allowed, err := g.check(sub, userID, orgID, perm)
	if err != nil {
		return false, err
	}
	g.record(ctx, userID, orgID, string(perm), allowed)
	return allowed, nil
}

func (g *guard) AuthorizeAny(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error) {
	if len(perms) == 0 {
		return false, ErrInvalidArgument
	}
	sub, err := g.resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		allowed, err := g.check(sub, userID, orgID, perm)
		if err != nil {
			return false, err
		}
		if allowed {
			g.record(ctx, userID, orgID, string(perm), true)
			return true, nil
		}
	}
	g.record(ctx, userID, orgID, joinPermissions(perms), false)
	return false, nil
}

func (g *guard) AuthorizeAll(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error) {
	if len(perms) == 0 {
		return false, ErrInvalidArgument
	}
	sub, err := g.resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	for _, perm := range perms {
		allowed, err := g.check(sub, userID, orgID, perm)
		if err != nil {
			return false, err
		}
		if !allowed {
			g.record(ctx, userID, orgID, string(perm), false)
			return false, nil
		}
	}
	g.record(ctx, userID, orgID, joinPermissions(perms), true)
	return true, nil
}

// AuthorizeRole is an exact role match. An owner without a member row
// matches role.Owner only.
func (g *guard) AuthorizeRole(ctx context.Context, userID, orgID snowflake.ID, r role.Role) (bool, error) {
	if !role.Valid(r) {
		return false, ErrInvalidArgument
	}
	sub, err := g.resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}

	allowed := false
	switch {
	case sub.member != nil:
		allowed = sub.member.Role == r
	case sub.isOwner:
		allowed = r == role.Owner
	}
	g.record(ctx, userID, orgID, "role:"+string(r), allowed)
	return allowed, nil
}

func (g *guard) Require(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) error {
	allowed, err := g.Authorize(ctx, userID, orgID, perm)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (g *guard) resolve(ctx context.Context, userID, orgID snowflake.ID) (subject, error) {
	if userID == 0 || orgID == 0 {
		return subject{}, nil
	}

	member, err := g.repo.GetMemberByUser(ctx, orgID, userID)
	if err != nil {
		return subject{}, fmt.Errorf("load member: %w", err)
	}
	if member != nil {
		if !member.IsActive {
			return subject{}, nil
		}
		return subject{member: member}, nil
	}

	org, err := g.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return subject{}, fmt.Errorf("load organization: %w", err)
	}
	if org != nil && org.OwnerID == userID {
		return subject{isOwner: true}, nil
	}
	return subject{}, nil
}

func (g *guard) check(sub subject, userID, orgID snowflake.ID, perm role.Permission) (bool, error) {
	if sub.none() {
		return false, nil
	}
	if sub.member == nil {
		return true, nil
	}
	if g.enforcer == nil {
		return sub.member.HasPermission(perm), nil
	}

	userSub := userSubject(userID)
	dom := orgDomain(orgID)
	if err := g.ensureGrouping(userSub, roleSubject(sub.member.Role), dom); err != nil {
		return false, err
	}
	obj, act := splitPermission(perm)
	return g.enforcer.Enforce(userSub, dom, obj, act)
}

// ensureGrouping keeps exactly one role link per user and organization.
func (g *guard) ensureGrouping(userSub, roleName, dom string) error {
	existing, err := g.enforcer.GetFilteredGroupingPolicy(0, userSub, "", dom)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := g.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := g.enforcer.HasGroupingPolicy(userSub, roleName, dom)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = g.enforcer.AddGroupingPolicy(userSub, roleName, dom)
	return err
}

func (g *guard) record(ctx context.Context, userID, orgID snowflake.ID, permission string, allowed bool) {
	g.metrics.RecordAuthorization(permission, allowed)
	if allowed || g.auditSvc == nil || orgID == 0 {
		return
	}

	actorID := userID.String()
	targetID := orgID.String()
	if err := g.auditSvc.AuditLog(ctx, &orgID, "user", &actorID, "authorization.denied", "organization", &targetID, map[string]any{
		"permission": permission,
	}); err != nil {
		g.log.Warn("failed to audit authorization denial", zap.Error(err))
	}
}

func joinPermissions(perms []role.Permission) string {
	out := ""
	for i, perm := range perms {
		if i > 0 {
			out += ","
		}
		out += string(perm)
	}
	return out
}
