package users

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists storefront accounts in the users table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{})
}

// Create inserts the normalized model built from dto.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByIdentityID returns gorm.ErrRecordNotFound when no account is linked.
func (r *Repository) FindByIdentityID(ctx context.Context, identityID string) (*models.User, error) {
	return r.first(ctx, "identity_id = ?", identityID)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	user := &models.User{}
	if err := r.scoped(ctx).Where(query, args...).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile sets name and phone. A nil phone clears it.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error {
	res := r.scoped(ctx).Where("id = ?", id).Updates(map[string]any{
		"name":       update.Name,
		"phone":      update.Phone,
		"updated_at": time.Now().UTC(),
	})
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateLastLogin writes last_login_at without bumping updated_at.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.scoped(ctx).Where("id = ?", id).UpdateColumn("last_login_at", at).Error
}
