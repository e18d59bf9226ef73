package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/user/domain"
	"github.com/smallbiznis/membership/pkg/db"
	"github.com/smallbiznis/membership/pkg/repository"
	"gorm.io/gorm"
)

type userRepository struct {
	store repository.Repository[domain.User]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &userRepository{store: repository.ProvideStore[domain.User](db)}
}

func (r *userRepository) Get(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.store.FindOne(ctx, &domain.User{ID: id})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.store.FindOne(ctx, nil, repository.WithWhere("LOWER(email) = ?", email))
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.store.Create(ctx, user)
}

func (r *userRepository) SyncProfile(ctx context.Context, id snowflake.ID, email string, now time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		err := r.store.Create(ctx, &domain.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			return err
		}
		// Lost a race with another request for the same id; refresh instead.
	} else if existing.Email == email {
		return nil
	}
	return r.store.Update(ctx, id, map[string]any{
		"email":      email,
		"updated_at": now,
	})
}

// SetOrganization writes the user's organization reference; a nil orgID clears it.
func (r *userRepository) SetOrganization(ctx context.Context, userID snowflake.ID, orgID *snowflake.ID, orgRole string) error {
	return r.store.Update(ctx, userID, map[string]any{
		"org_id":     orgID,
		"org_role":   orgRole,
		"updated_at": time.Now().UTC(),
	})
}
