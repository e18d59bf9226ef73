package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/role"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*Organization, error)
	EnsureOrganizationForUser(ctx context.Context, userID snowflake.ID, ec EnsureContext) (*Organization, error)
	CreateForPlan(ctx context.Context, userID snowflake.ID, plan string, ec EnsureContext) (*Organization, error)
	GetUserOrganization(ctx context.Context, userID snowflake.ID) (*UserOrganization, error)
	GetByID(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	Update(ctx context.Context, orgID, userID snowflake.ID, req UpdateOrganizationRequest) (*Organization, error)
	GetSettings(ctx context.Context, orgID, userID snowflake.ID) (*Settings, error)
	UpdateSettings(ctx context.Context, orgID, userID snowflake.ID, req UpdateSettingsRequest) (*Settings, error)

	ListMembers(ctx context.Context, orgID, requestingUserID snowflake.ID) ([]MemberView, error)
	UpdateMemberRole(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID, newRole role.Role) (*Member, error)
	UpdateMemberStatus(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID, isActive bool) (*Member, error)
	RemoveMember(ctx context.Context, orgID, memberID, requestingUserID snowflake.ID) error

	ListInvitations(ctx context.Context, orgID, requestingUserID snowflake.ID) ([]Invitation, error)
	InviteMember(ctx context.Context, orgID, invitingUserID snowflake.ID, req InviteRequest) (*Invitation, error)
	AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*AcceptInvitationResult, error)
	DeclineInvitation(ctx context.Context, req DeclineInvitationRequest) error
	ResendInvitation(ctx context.Context, orgID, invitationID, userID snowflake.ID) (*Invitation, error)
	CancelInvitation(ctx context.Context, orgID, invitationID, userID snowflake.ID) error
}

type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Logo        string `json:"logo"`
}

// EnsureContext carries the profile hints used to name a default organization.
// Plan selects the subscription plan for a new organization; empty means the default plan.
type EnsureContext struct {
	Email string
	Name  string
	Plan  string
}

type UpdateOrganizationRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Website     *string                `json:"website"`
	Logo        *string                `json:"logo"`
	Settings    *UpdateSettingsRequest `json:"settings"`
}

type UpdateSettingsRequest struct {
	AllowMemberInvites *bool      `json:"allow_member_invites"`
	RequireApproval    *bool      `json:"require_approval"`
	DefaultRole        *role.Role `json:"default_role"`
	CustomDomain       *string    `json:"custom_domain"`
	Branding           *Branding  `json:"branding"`
}

type UserOrganization struct {
	Organization Organization `json:"organization"`
	Membership   *Member      `json:"membership,omitempty"`
}

// MemberView is a member joined with the public part of the user profile.
type MemberView struct {
	Member
	User MemberUser `json:"user"`
}

type MemberUser struct {
	ID        snowflake.ID `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	AvatarURL string       `json:"avatar_url,omitempty"`
}

type InviteRequest struct {
	Email     string    `json:"email"`
	Role      role.Role `json:"role"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	SendEmail *bool     `json:"send_email"`
}

// AcceptInvitationRequest identifies the caller by id and by the email the
// identity provider vouched for. An empty Email falls back to the stored profile.
type AcceptInvitationRequest struct {
	UserID  snowflake.ID
	Email   string
	Token   string
	OtpCode string
}

type DeclineInvitationRequest struct {
	UserID snowflake.ID
	Email  string
	Token  string
}

type AcceptInvitationResult struct {
	OtpSent   bool         `json:"otp_sent,omitempty"`
	OtpID     string       `json:"otp_id,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Member    *Member      `json:"member,omitempty"`
	OrgID     snowflake.ID `json:"org_id,omitempty"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidSlug         = errors.New("invalid_slug")
	ErrInvalidDescription  = errors.New("invalid_description")
	ErrInvalidWebsite      = errors.New("invalid_website")
	ErrInvalidLogo         = errors.New("invalid_logo")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidMessage      = errors.New("invalid_message")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrInvalidSettings     = errors.New("invalid_settings")
	ErrInvalidPlan         = errors.New("invalid_plan")

	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrMemberNotFound       = errors.New("member_not_found")
	ErrInvitationNotFound   = errors.New("invitation_not_found")
	ErrUserNotFound         = errors.New("user_not_found")

	ErrAlreadyOwner         = errors.New("already_owner")
	ErrSlugTaken            = errors.New("slug_taken")
	ErrMemberLimitReached   = errors.New("member_limit_reached")
	ErrInvitationExists     = errors.New("invitation_exists")
	ErrAlreadyMember        = errors.New("already_member")
	ErrInvitationNotPending = errors.New("invitation_not_pending")
	ErrConcurrentRequest    = errors.New("concurrent_request")

	ErrInvalidInvitation = errors.New("invalid_invitation")
	ErrInvitationExpired = errors.New("invitation_expired")
	ErrEmailMismatch     = errors.New("email_mismatch")
	ErrInvalidOtp        = errors.New("invalid_otp")
	ErrOtpMismatch       = errors.New("otp_mismatch")

	ErrForbidden         = errors.New("forbidden")
	ErrOwnerSelfDemotion = errors.New("owner_self_demotion")
	ErrOwnerSelfRemoval  = errors.New("owner_self_removal")
)
