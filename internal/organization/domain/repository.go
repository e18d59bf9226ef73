package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads return (nil, nil) when the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	GetOrganizationByOwner(ctx context.Context, ownerID snowflake.ID) (*Organization, error)
	UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) error

	CreateMember(ctx context.Context, member *Member) error
	GetMember(ctx context.Context, id snowflake.ID) (*Member, error)
	GetMemberByUser(ctx context.Context, orgID, userID snowflake.ID) (*Member, error)
	GetFirstMemberByUser(ctx context.Context, userID snowflake.ID) (*Member, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberView, error)
	UpdateMember(ctx context.Context, id snowflake.ID, fields map[string]any) error
	DeleteMember(ctx context.Context, id snowflake.ID) error
	CountActiveMembers(ctx context.Context, orgID snowflake.ID) (int64, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id snowflake.ID) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	ListPendingInvitations(ctx context.Context, orgID snowflake.ID, email string) ([]Invitation, error)
	ListInvitations(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	UpdateInvitation(ctx context.Context, id snowflake.ID, fields map[string]any) error
}
