package repository

import (
	"context"
	"strings"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"

	"gorm.io/gorm"
)

const identityStore = "identity"

type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	MarkEmailVerified(ctx context.Context, id string) error
	MarkPhoneVerified(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	// Delete exists only for the register and OAuth compensating steps.
	Delete(ctx context.Context, id string) error
}

type GormIdentityRepository struct{ db *gorm.DB }

func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &GormIdentityRepository{db: db}
}

func (r *GormIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	identity.Email = normalizeEmail(identity.Email)
	err := translate(r.db.WithContext(ctx).Create(identity).Error)
	return observe(ctx, identityStore, "create", err)
}

func (r *GormIdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	var identity domain.Identity
	err := translate(r.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error)
	if err := observe(ctx, identityStore, "find_by_id", err); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *GormIdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	var identity domain.Identity
	err := translate(r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&identity).Error)
	if err := observe(ctx, identityStore, "find_by_email", err); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *GormIdentityRepository) FindByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	var identity domain.Identity
	err := translate(r.db.WithContext(ctx).Where("phone = ?", phone).First(&identity).Error)
	if err := observe(ctx, identityStore, "find_by_phone", err); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *GormIdentityRepository) MarkEmailVerified(ctx context.Context, id string) error {
	err := r.update(ctx, id, map[string]any{"email_verified": true, "is_verified": true})
	return observe(ctx, identityStore, "mark_email_verified", err)
}

func (r *GormIdentityRepository) MarkPhoneVerified(ctx context.Context, id string) error {
	err := r.update(ctx, id, map[string]any{"phone_verified": true})
	return observe(ctx, identityStore, "mark_phone_verified", err)
}

func (r *GormIdentityRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	err := r.update(ctx, id, map[string]any{"last_login_at": at.UTC()})
	return observe(ctx, identityStore, "touch_last_login", err)
}

func (r *GormIdentityRepository) SetActive(ctx context.Context, id string, active bool) error {
	err := r.update(ctx, id, map[string]any{"is_active": active})
	return observe(ctx, identityStore, "set_active", err)
}

func (r *GormIdentityRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Identity{})
	return observe(ctx, identityStore, "delete", affected(res, ErrNotFound))
}

func (r *GormIdentityRepository) update(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Identity{}).Where("id = ?", id).Updates(updates)
	return affected(res, ErrNotFound)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
