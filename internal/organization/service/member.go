package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	"github.com/smallbiznis/membership/internal/role"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (s *service) ListMembers(ctx context.Context, orgID, requestingUserID snowflake.ID) ([]domain.MemberView, error) {
	if err := s.require(ctx, requestingUserID, orgID, role.MemberView); err != nil {
		return nil, err
	}
	items, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return items, nil
}

func (s *service) UpdateMemberRole(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID, newRole role.Role) (*domain.Member, error) {
	if !role.Valid(newRole) {
		return nil, domain.ErrInvalidRole
	}
	if err := s.require(ctx, requestingUserID, orgID, role.MemberUpdateRole); err != nil {
		return nil, err
	}
	target, requester, err := s.loadMemberPair(ctx, orgID, memberID, requestingUserID)
	if err != nil {
		return nil, err
	}

	if newRole == role.Owner && requester.Role != role.Owner {
		return nil, domain.ErrForbidden
	}
	if target.Role == role.Owner && newRole != role.Owner && target.UserID == requestingUserID {
		return nil, domain.ErrOwnerSelfDemotion
	}
	if err := checkRank(requester, target); err != nil {
		return nil, err
	}

	previous := target.Role
	if err := s.repo.UpdateMember(ctx, target.ID, map[string]any{
		"role":        newRole,
		"permissions": permissionSnapshot(newRole),
		"updated_at":  s.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	s.setUserOrganization(ctx, target.UserID, &orgID, newRole)
	s.audit(ctx, orgID, requestingUserID, "member.role_updated", "member", target.ID.String(), map[string]any{
		"user_id": target.UserID.String(),
		"from":    string(previous),
		"to":      string(newRole),
	})
	s.metrics.RecordMemberChange(ctx, "role_updated")

	return s.reloadMember(ctx, target.ID)
}

func (s *service) UpdateMemberStatus(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID, isActive bool) (*domain.Member, error) {
	if err := s.require(ctx, requestingUserID, orgID, role.MemberRemove); err != nil {
		return nil, err
	}
	target, requester, err := s.loadMemberPair(ctx, orgID, memberID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isActive && target.Role == role.Owner && target.UserID == requestingUserID {
		return nil, domain.ErrOwnerSelfRemoval
	}
	if err := checkRank(requester, target); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.UpdateMember(ctx, target.ID, map[string]any{
		"is_active":  isActive,
		"updated_at": now,
	}); err != nil {
		return nil, fmt.Errorf("update member status: %w", err)
	}
	if err := s.recomputeMemberCount(ctx, orgID); err != nil {
		return nil, err
	}

	action := "member.deactivated"
	if isActive {
		action = "member.activated"
	}
	s.audit(ctx, orgID, requestingUserID, action, "member", target.ID.String(), map[string]any{
		"user_id": target.UserID.String(),
	})
	s.metrics.RecordMemberChange(ctx, action)

	return s.reloadMember(ctx, target.ID)
}

func (s *service) RemoveMember(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID) error {
	if err := s.require(ctx, requestingUserID, orgID, role.MemberRemove); err != nil {
		return err
	}
	target, requester, err := s.loadMemberPair(ctx, orgID, memberID, requestingUserID)
	if err != nil {
		return err
	}
	if target.Role == role.Owner && target.UserID == requestingUserID {
		return domain.ErrOwnerSelfRemoval
	}
	if target.Role == role.Owner && requester.Role != role.Owner {
		return domain.ErrForbidden
	}
	if err := checkRank(requester, target); err != nil {
		return err
	}

	if err := s.repo.DeleteMember(ctx, target.ID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if err := s.recomputeMemberCount(ctx, orgID); err != nil {
		return err
	}
	s.setUserOrganization(ctx, target.UserID, nil, "")

	s.emit(ctx, orgID, event.MemberRemovedTopic, event.MemberRemoved{
		OrganizationID: orgID.String(),
		MemberID:       target.ID.String(),
		UserID:         target.UserID.String(),
		RemovedBy:      requestingUserID.String(),
	})
	s.audit(ctx, orgID, requestingUserID, "member.removed", "member", target.ID.String(), map[string]any{
		"user_id": target.UserID.String(),
		"role":    string(target.Role),
	})
	s.metrics.RecordMemberChange(ctx, "removed")
	s.log.Info("member removed",
		zap.String("org_id", orgID.String()),
		zap.String("member_id", target.ID.String()),
	)
	return nil
}

// loadMemberPair returns the target member, scoped to orgID, and the
// requester's own membership.
func (s *service) loadMemberPair(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID) (*domain.Member, *domain.Member, error) {
	if memberID == 0 {
		return nil, nil, domain.ErrMemberNotFound
	}
	target, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, nil, fmt.Errorf("load member: %w", err)
	}
	if target == nil || target.OrgID != orgID {
		return nil, nil, domain.ErrMemberNotFound
	}

	requester, err := s.repo.GetMemberByUser(ctx, orgID, requestingUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load requesting member: %w", err)
	}
	if requester == nil {
		return nil, nil, domain.ErrForbidden
	}
	return target, requester, nil
}

// checkRank stops a non-owner from changing a member above them in the
// management chain. Lateral roles are never ranked.
func checkRank(requester, target *domain.Member) error {
	if requester.Role == role.Owner || requester.ID == target.ID {
		return nil
	}
	if role.Outranks(target.Role, requester.Role) {
		return domain.ErrForbidden
	}
	return nil
}

// recomputeMemberCount rewrites the cached count from the live number of
// active members.
func (s *service) recomputeMemberCount(ctx context.Context, orgID snowflake.ID) error {
	count, err := s.repo.CountActiveMembers(ctx, orgID)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	usage := org.Usage.Data()
	usage.Members = int(count)

	if err := s.repo.UpdateOrganization(ctx, orgID, map[string]any{
		"member_count": int(count),
		"usage":        datatypes.NewJSONType(usage),
		"updated_at":   s.clock.Now(),
	}); err != nil {
		return fmt.Errorf("update member count: %w", err)
	}
	return nil
}

func (s *service) reloadMember(ctx context.Context, memberID snowflake.ID) (*domain.Member, error) {
	member, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, domain.ErrMemberNotFound
	}
	return member, nil
}
