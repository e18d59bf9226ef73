// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/role"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusTrial     Status = "trial"
	StatusCancelled Status = "cancelled"
)

// Organization represents a tenant.
type Organization struct {
	ID               snowflake.ID                 `gorm:"primaryKey" json:"id"`
	Name             string                       `gorm:"type:text;not null" json:"name"`
	Slug             string                       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Description      string                       `gorm:"type:text" json:"description,omitempty"`
	Website          string                       `gorm:"type:text" json:"website,omitempty"`
	Logo             string                       `gorm:"type:text" json:"logo,omitempty"`
	OwnerID          snowflake.ID                 `gorm:"column:owner_id;not null;uniqueIndex:ux_organizations_owner" json:"owner_id"`
	Status           Status                       `gorm:"type:text;not null" json:"status"`
	SubscriptionPlan string                       `gorm:"column:subscription_plan;type:text;not null" json:"subscription_plan"`
	MemberCount      int                          `gorm:"column:member_count;not null" json:"member_count"`
	MaxMembers       int                          `gorm:"column:max_members;not null" json:"max_members"`
	Settings         datatypes.JSONType[Settings] `gorm:"not null" json:"settings"`
	Usage            datatypes.JSONType[Usage]    `gorm:"not null" json:"usage"`
	CreatedAt        time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

type Settings struct {
	AllowMemberInvites bool      `json:"allow_member_invites"`
	RequireApproval    bool      `json:"require_approval"`
	DefaultRole        role.Role `json:"default_role"`
	CustomDomain       string    `json:"custom_domain,omitempty"`
	Branding           *Branding `json:"branding,omitempty"`
}

type Branding struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	Logo         string `json:"logo,omitempty"`
}

type Usage struct {
	Members     int       `json:"members"`
	Storage     int64     `json:"storage"`
	APICalls    int64     `json:"api_calls"`
	LastResetAt time.Time `json:"last_reset_at"`
}

func DefaultSettings() Settings {
	return Settings{
		AllowMemberInvites: false,
		RequireApproval:    false,
		DefaultRole:        role.Member,
	}
}

// Member represents membership of a user in an organization.
type Member struct {
	ID           snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID                `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID       snowflake.ID                `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role         role.Role                   `gorm:"type:text;not null" json:"role"`
	Permissions  datatypes.JSONSlice[string] `gorm:"not null" json:"permissions"`
	IsActive     bool                        `gorm:"column:is_active;not null" json:"is_active"`
	JoinedAt     time.Time                   `gorm:"column:joined_at;not null" json:"joined_at"`
	InvitedBy    *snowflake.ID               `gorm:"column:invited_by" json:"invited_by,omitempty"`
	LastActiveAt *time.Time                  `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
	CreatedAt    time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// HasPermission checks the stored permission snapshot.
func (m Member) HasPermission(p role.Permission) bool {
	for _, held := range m.Permissions {
		if held == string(p) {
			return true
		}
	}
	return false
}

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation tracks an emailed offer to join an organization.
type Invitation struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID     `gorm:"not null;index:ix_invitations_org_email,priority:1" json:"org_id"`
	Email      string           `gorm:"type:text;not null;index:ix_invitations_org_email,priority:2" json:"email"`
	Role       role.Role        `gorm:"type:text;not null" json:"role"`
	InvitedBy  snowflake.ID     `gorm:"column:invited_by;not null;index" json:"invited_by"`
	Status     InvitationStatus `gorm:"type:text;not null;index" json:"status"`
	Token      string           `gorm:"type:text;not null;uniqueIndex:ux_invitations_token" json:"-"`
	Message    string           `gorm:"type:text" json:"message,omitempty"`
	ExpiresAt  time.Time        `gorm:"column:expires_at;not null" json:"expires_at"`
	AcceptedAt *time.Time       `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	DeclinedAt *time.Time       `gorm:"column:declined_at" json:"declined_at,omitempty"`
	CreatedAt  time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "organization_invitations" }

// Expired reports whether the invitation is past its expiry at now.
func (i Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
