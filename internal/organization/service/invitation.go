package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"github.com/smallbiznis/membership/internal/role"
	"github.com/smallbiznis/membership/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteTemplate = "invite_member"

func (s *service) ListInvitations(ctx context.Context, orgID, requestingUserID snowflake.ID) ([]domain.Invitation, error) {
	if err := s.require(ctx, requestingUserID, orgID, role.MemberView); err != nil {
		return nil, err
	}
	items, err := s.repo.ListInvitations(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return items, nil
}

func (s *service) InviteMember(ctx context.Context, orgID, invitingUserID snowflake.ID, req domain.InviteRequest) (*domain.Invitation, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	inviteeName := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(inviteeName) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	message := strings.TrimSpace(req.Message)
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, domain.ErrInvalidMessage
	}

	if err := s.require(ctx, invitingUserID, orgID, role.MemberInvite); err != nil {
		return nil, err
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	invitedRole := req.Role
	if invitedRole == "" {
		invitedRole = org.Settings.Data().DefaultRole
	}
	if !role.Valid(invitedRole) {
		return nil, domain.ErrInvalidRole
	}
	if invitedRole == role.Owner {
		isOwner, err := s.guard.AuthorizeRole(ctx, invitingUserID, orgID, role.Owner)
		if err != nil {
			return nil, err
		}
		if !isOwner {
			return nil, domain.ErrForbidden
		}
	}

	if org.MemberCount >= org.MaxMembers {
		return nil, domain.ErrMemberLimitReached
	}

	if err := s.ensureNotMember(ctx, orgID, email); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.expireOrRejectPending(ctx, orgID, email, now); err != nil {
		return nil, err
	}

	token, err := newInvitationToken(now)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	inv := &domain.Invitation{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Email:     email,
		Role:      invitedRole,
		InvitedBy: invitingUserID,
		Status:    domain.InvitationPending,
		Token:     token,
		Message:   message,
		ExpiresAt: now.Add(s.policy.Get().Organization.InvitationTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrInvitationExists
		}
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.audit(ctx, orgID, invitingUserID, "invitation.created", "invitation", inv.ID.String(), map[string]any{
		"email": email,
		"role":  string(invitedRole),
	})
	s.metrics.RecordInvitationTransition(ctx, string(domain.InvitationPending))

	if req.SendEmail == nil || *req.SendEmail {
		s.sendInvitation(ctx, org, inv, inviteeName, invitingUserID)
	}
	return inv, nil
}

func (s *service) AcceptInvitation(ctx context.Context, req domain.AcceptInvitationRequest) (*domain.AcceptInvitationResult, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	inv, err := s.pendingInvitationForUser(ctx, req.UserID, req.Email, req.Token)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.OtpCode)
	if code == "" {
		gen, err := s.otp.Generate(ctx, otpdomain.GenerateRequest{
			UserID:         req.UserID,
			Type:           otpdomain.TypeOrgInvitation,
			DeliveryMethod: otpdomain.DeliveryEmail,
			Target:         inv.Email,
			Metadata: map[string]any{
				"org_id":        inv.OrgID.String(),
				"invitation_id": inv.ID.String(),
				"email":         inv.Email,
			},
		})
		if err != nil {
			return nil, err
		}
		expiresAt := gen.ExpiresAt
		return &domain.AcceptInvitationResult{
			OtpSent:   true,
			OtpID:     gen.OtpID.String(),
			ExpiresAt: &expiresAt,
			OrgID:     inv.OrgID,
		}, nil
	}

	otpType := otpdomain.TypeOrgInvitation
	verification, err := s.otp.Verify(ctx, otpdomain.VerifyRequest{
		UserID: req.UserID,
		Code:   code,
		Type:   &otpType,
	})
	if err != nil {
		return nil, err
	}
	if !verification.Verified {
		return nil, domain.ErrInvalidOtp
	}
	if metadataString(verification.Metadata, "org_id") != inv.OrgID.String() ||
		metadataString(verification.Metadata, "invitation_id") != inv.ID.String() {
		return nil, domain.ErrOtpMismatch
	}
	// The code proves control of the invited mailbox only if it went there.
	if !strings.EqualFold(strings.TrimSpace(verification.Target), inv.Email) ||
		!strings.EqualFold(metadataString(verification.Metadata, "email"), inv.Email) {
		s.log.Warn("invitation otp was not addressed to the invited email",
			zap.String("org_id", inv.OrgID.String()),
			zap.String("invitation_id", inv.ID.String()),
		)
		return nil, domain.ErrOtpMismatch
	}

	now := s.clock.Now()
	existing, err := s.repo.GetMemberByUser(ctx, inv.OrgID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if existing != nil {
		if err := s.markAccepted(ctx, s.repo, inv.ID, now); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyMember
	}

	inviter := inv.InvitedBy
	member := &domain.Member{
		ID:          s.genID.Generate(),
		OrgID:       inv.OrgID,
		UserID:      req.UserID,
		Role:        inv.Role,
		Permissions: permissionSnapshot(inv.Role),
		IsActive:    true,
		JoinedAt:    now,
		InvitedBy:   &inviter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateMember(ctx, member); err != nil {
			return err
		}
		return s.markAccepted(ctx, repo, inv.ID, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	if err := s.recomputeMemberCount(ctx, inv.OrgID); err != nil {
		return nil, err
	}
	s.setUserOrganization(ctx, req.UserID, &inv.OrgID, inv.Role)

	s.emit(ctx, inv.OrgID, event.MemberJoinedTopic, event.MemberJoined{
		OrganizationID: inv.OrgID.String(),
		MemberID:       member.ID.String(),
		UserID:         req.UserID.String(),
		Role:           string(inv.Role),
		InvitationID:   inv.ID.String(),
	})
	s.audit(ctx, inv.OrgID, req.UserID, "invitation.accepted", "invitation", inv.ID.String(), map[string]any{
		"member_id": member.ID.String(),
		"role":      string(inv.Role),
	})
	s.metrics.RecordMemberChange(ctx, "joined")
	s.log.Info("invitation accepted",
		zap.String("org_id", inv.OrgID.String()),
		zap.String("invitation_id", inv.ID.String()),
		zap.String("member_id", member.ID.String()),
	)

	return &domain.AcceptInvitationResult{Member: member, OrgID: inv.OrgID}, nil
}

func (s *service) DeclineInvitation(ctx context.Context, req domain.DeclineInvitationRequest) error {
	userID := req.UserID
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	inv, err := s.pendingInvitationForUser(ctx, userID, req.Email, req.Token)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{
		"status":      domain.InvitationDeclined,
		"declined_at": now,
		"updated_at":  now,
	}); err != nil {
		return fmt.Errorf("decline invitation: %w", err)
	}
	s.audit(ctx, inv.OrgID, userID, "invitation.declined", "invitation", inv.ID.String(), nil)
	s.metrics.RecordInvitationTransition(ctx, string(domain.InvitationDeclined))
	return nil
}

func (s *service) ResendInvitation(ctx context.Context, orgID, invitationID, userID snowflake.ID) (*domain.Invitation, error) {
	if err := s.require(ctx, userID, orgID, role.MemberInvite); err != nil {
		return nil, err
	}
	inv, err := s.loadOrgInvitation(ctx, orgID, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvitationPending {
		return nil, domain.ErrInvitationNotPending
	}
	org, err := s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	policy := s.policy.Get().Organization
	fields := map[string]any{"updated_at": now}
	if policy.RotateTokenOnResend {
		token, err := newInvitationToken(now)
		if err != nil {
			return nil, fmt.Errorf("generate invitation token: %w", err)
		}
		fields["token"] = token
		fields["expires_at"] = now.Add(policy.InvitationTTL)
	} else if inv.Expired(now) {
		if err := s.expireInvitation(ctx, inv.ID, now); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvitationExpired
	}

	if err := s.repo.UpdateInvitation(ctx, inv.ID, fields); err != nil {
		return nil, fmt.Errorf("resend invitation: %w", err)
	}
	updated, err := s.loadOrgInvitation(ctx, orgID, invitationID)
	if err != nil {
		return nil, err
	}

	s.sendInvitation(ctx, org, updated, "", userID)
	s.audit(ctx, orgID, userID, "invitation.resent", "invitation", inv.ID.String(), map[string]any{
		"rotated": policy.RotateTokenOnResend,
	})
	return updated, nil
}

func (s *service) CancelInvitation(ctx context.Context, orgID, invitationID, userID snowflake.ID) error {
	if err := s.require(ctx, userID, orgID, role.MemberInvite); err != nil {
		return err
	}
	inv, err := s.loadOrgInvitation(ctx, orgID, invitationID)
	if err != nil {
		return err
	}
	if inv.Status != domain.InvitationPending {
		return domain.ErrInvitationNotPending
	}

	if err := s.repo.UpdateInvitation(ctx, inv.ID, map[string]any{
		"status":     domain.InvitationCancelled,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	s.audit(ctx, orgID, userID, "invitation.cancelled", "invitation", inv.ID.String(), map[string]any{
		"email": inv.Email,
	})
	s.metrics.RecordInvitationTransition(ctx, string(domain.InvitationCancelled))
	return nil
}

// pendingInvitationForUser resolves a token to a live pending invitation
// addressed to the caller. Stale invitations are flipped to expired.
func (s *service) pendingInvitationForUser(ctx context.Context, userID snowflake.ID, claimedEmail, token string) (*domain.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	inv, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil || inv.Status != domain.InvitationPending {
		return nil, domain.ErrInvalidInvitation
	}

	now := s.clock.Now()
	if inv.Expired(now) {
		if err := s.expireInvitation(ctx, inv.ID, now); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvitationExpired
	}

	email, err := s.callerEmail(ctx, userID, claimedEmail)
	if err != nil {
		return nil, err
	}
	if email == "" || !strings.EqualFold(email, inv.Email) {
		return nil, domain.ErrEmailMismatch
	}
	return inv, nil
}

// callerEmail prefers the email carried by the caller's credentials and
// records it on the profile. Without one it falls back to the stored profile.
func (s *service) callerEmail(ctx context.Context, userID snowflake.ID, claimed string) (string, error) {
	if email := strings.ToLower(strings.TrimSpace(claimed)); email != "" {
		s.syncProfile(ctx, userID, email)
		return email, nil
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(user.Email)), nil
}

// expireOrRejectPending flips stale pending invitations for the email to
// expired and rejects the invite when a live one remains.
func (s *service) expireOrRejectPending(ctx context.Context, orgID snowflake.ID, email string, now time.Time) error {
	pending, err := s.repo.ListPendingInvitations(ctx, orgID, email)
	if err != nil {
		return fmt.Errorf("list pending invitations: %w", err)
	}
	for _, inv := range pending {
		if !inv.Expired(now) {
			return domain.ErrInvitationExists
		}
		if err := s.expireInvitation(ctx, inv.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ensureNotMember(ctx context.Context, orgID snowflake.ID, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("load user by email: %w", err)
	}
	if user == nil {
		return nil
	}
	member, err := s.repo.GetMemberByUser(ctx, orgID, user.ID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	if member != nil {
		return domain.ErrAlreadyMember
	}
	return nil
}

func (s *service) expireInvitation(ctx context.Context, invitationID snowflake.ID, now time.Time) error {
	if err := s.repo.UpdateInvitation(ctx, invitationID, map[string]any{
		"status":     domain.InvitationExpired,
		"updated_at": now,
	}); err != nil {
		return fmt.Errorf("expire invitation: %w", err)
	}
	s.metrics.RecordInvitationTransition(ctx, string(domain.InvitationExpired))
	return nil
}

func (s *service) markAccepted(ctx context.Context, repo domain.Repository, invitationID snowflake.ID, now time.Time) error {
	if err := repo.UpdateInvitation(ctx, invitationID, map[string]any{
		"status":      domain.InvitationAccepted,
		"accepted_at": now,
		"updated_at":  now,
	}); err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	s.metrics.RecordInvitationTransition(ctx, string(domain.InvitationAccepted))
	return nil
}

func (s *service) loadOrgInvitation(ctx context.Context, orgID, invitationID snowflake.ID) (*domain.Invitation, error) {
	if invitationID == 0 {
		return nil, domain.ErrInvitationNotFound
	}
	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil || inv.OrgID != orgID {
		return nil, domain.ErrInvitationNotFound
	}
	return inv, nil
}

// sendInvitation emails the acceptance link. Delivery failures are logged only.
func (s *service) sendInvitation(ctx context.Context, org *domain.Organization, inv *domain.Invitation, inviteeName string, inviterID snowflake.ID) {
	data := map[string]any{
		"org_name":     org.Name,
		"role":         string(inv.Role),
		"accept_url":   s.acceptURL(inv.Token),
		"expires_at":   inv.ExpiresAt.UTC().Format("January 2, 2006 15:04 MST"),
		"invitee_name": inviteeName,
		"message":      inv.Message,
	}
	if inviter, err := s.users.Get(ctx, inviterID); err == nil && inviter != nil {
		data["inviter_name"] = inviter.Name
	}

	if !s.gateway.Send(ctx, inv.Email, delivery.Message{Template: inviteTemplate, Data: data}, delivery.ChannelEmail) {
		s.log.Warn("invitation email not delivered",
			zap.String("org_id", org.ID.String()),
			zap.String("invitation_id", inv.ID.String()),
		)
	}
}

func (s *service) acceptURL(token string) string {
	return fmt.Sprintf("%s/invite/%s", s.appURL, url.PathEscape(token))
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	switch v := metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
