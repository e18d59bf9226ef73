package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	return findOne(r.db.WithContext(ctx).Where("id = ?", id), &org)
}

func (r *repository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	var org domain.Organization
	return findOne(r.db.WithContext(ctx).Where("slug = ?", slug), &org)
}

func (r *repository) GetOrganizationByOwner(ctx context.Context, ownerID snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	return findOne(r.db.WithContext(ctx).Where("owner_id = ?", ownerID), &org)
}

func (r *repository) UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) CreateMember(ctx context.Context, member *domain.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) GetMember(ctx context.Context, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	return findOne(r.db.WithContext(ctx).Where("id = ?", id), &member)
}

func (r *repository) GetMemberByUser(ctx context.Context, orgID, userID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	return findOne(r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID), &member)
}

func (r *repository) GetFirstMemberByUser(ctx context.Context, userID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	return findOne(r.db.WithContext(ctx).Where("user_id = ?", userID).Order("joined_at ASC, id ASC"), &member)
}

type memberRow struct {
	domain.Member
	UserEmail     *string
	UserName      *string
	UserAvatarURL *string
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberView, error) {
	var rows []memberRow
	err := r.db.WithContext(ctx).
		Table("organization_members AS m").
		Select(`m.*, u.email AS user_email, u.name AS user_name, u.avatar_url AS user_avatar_url`).
		Joins("LEFT JOIN users u ON u.id = m.user_id").
		Where("m.org_id = ?", orgID).
		Order("m.joined_at ASC, m.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.MemberView, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.MemberView{
			Member: row.Member,
			User: domain.MemberUser{
				ID:        row.UserID,
				Email:     deref(row.UserEmail),
				Name:      deref(row.UserName),
				AvatarURL: deref(row.UserAvatarURL),
			},
		})
	}
	return items, nil
}

func (r *repository) UpdateMember(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) DeleteMember(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Member{}).Error
}

func (r *repository) CountActiveMembers(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repository) GetInvitation(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var inv domain.Invitation
	return findOne(r.db.WithContext(ctx).Where("id = ?", id), &inv)
}

func (r *repository) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	var inv domain.Invitation
	return findOne(r.db.WithContext(ctx).Where("token = ?", token), &inv)
}

func (r *repository) ListPendingInvitations(ctx context.Context, orgID snowflake.ID, email string) ([]domain.Invitation, error) {
	var items []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND email = ? AND status = ?", orgID, email, domain.InvitationPending).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListInvitations(ctx context.Context, orgID snowflake.ID) ([]domain.Invitation, error) {
	var items []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	return items, err
}

func (r *repository) UpdateInvitation(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func findOne[T any](stmt *gorm.DB, dest *T) (*T, error) {
	if err := stmt.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dest, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
