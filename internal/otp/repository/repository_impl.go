package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/otp/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, rec *domain.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) LatestPending(ctx context.Context, userID snowflake.ID, otpType *domain.Type) (*domain.Record, error) {
	stmt := r.db.WithContext(ctx).Where("user_id = ? AND status = ?", userID, domain.StatusPending)
	if otpType != nil {
		stmt = stmt.Where("type = ?", *otpType)
	}
	return r.first(stmt)
}

func (r *repository) Latest(ctx context.Context, userID snowflake.ID, otpType *domain.Type) (*domain.Record, error) {
	stmt := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if otpType != nil {
		stmt = stmt.Where("type = ?", *otpType)
	}
	return r.first(stmt)
}

func (r *repository) first(stmt *gorm.DB) (*domain.Record, error) {
	var rec domain.Record
	err := stmt.Order("created_at DESC, id DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *repository) Update(ctx context.Context, rec *domain.Record) error {
	return r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"status":      rec.Status,
			"attempts":    rec.Attempts,
			"verified_at": rec.VerifiedAt,
			"updated_at":  rec.UpdatedAt,
		}).Error
}

func (r *repository) InvalidatePending(ctx context.Context, userID snowflake.ID, otpType domain.Type, excludeID snowflake.ID, now time.Time) (int64, error) {
	stmt := r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("user_id = ? AND type = ? AND status = ?", userID, otpType, domain.StatusPending)
	if excludeID != 0 {
		stmt = stmt.Where("id <> ?", excludeID)
	}
	res := stmt.Updates(map[string]any{
		"status":     domain.StatusExpired,
		"updated_at": now,
	})
	return res.RowsAffected, res.Error
}

func (r *repository) CountCreatedSince(ctx context.Context, userID snowflake.ID, method domain.DeliveryMethod, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("user_id = ? AND delivery_method = ? AND created_at >= ?", userID, method, since).
		Count(&count).Error
	return count, err
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Record{}).Error
}

func (r *repository) DeleteCreatedBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("created_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Record{})
	return res.RowsAffected, res.Error
}
