package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/domain"

	"gorm.io/gorm"
)

const credentialStore = "credential"

// CredentialRepository guards every counter and single-use value with a
// conditional UPDATE so concurrent requests cannot double count or double spend.
type CredentialRepository interface {
	Create(ctx context.Context, credential *domain.Credential) error
	FindByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	FindByOAuthExternalID(ctx context.Context, externalID string) (*domain.Credential, error)
	FindByResetDigest(ctx context.Context, digest string) (*domain.Credential, error)

	IncrementFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*domain.Credential, error)
	ResetLockout(ctx context.Context, userID string) error

	SetRefreshTokenHash(ctx context.Context, userID, hash string) error
	SwapRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string) error
	ClearRefreshTokenHash(ctx context.Context, userID, expectedHash string) (bool, error)

	StartCodeRequest(ctx context.Context, userID string, purpose domain.CodePurpose, digest string, now, expiresAt time.Time, maxRequests int) (int, error)
	RollbackCodeRequest(ctx context.Context, userID string, purpose domain.CodePurpose, digest string) error
	ClearCode(ctx context.Context, userID string, purpose domain.CodePurpose) error
	ConsumeCode(ctx context.Context, userID string, purpose domain.CodePurpose, digest string) error

	ResetPassword(ctx context.Context, userID, resetDigest, hash, salt string, changedAt time.Time) error
	LinkOAuth(ctx context.Context, userID, externalID string, accessEnc, refreshEnc []byte) error
	UpdateOAuthTokens(ctx context.Context, userID string, accessEnc, refreshEnc []byte) error
}

type GormCredentialRepository struct{ db *gorm.DB }

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &GormCredentialRepository{db: db}
}

// codeColumns is the one place a CodePurpose becomes column names.
func codeColumns(purpose domain.CodePurpose) (code, expires, attempts string, err error) {
	if !purpose.Valid() {
		return "", "", "", fmt.Errorf("unknown code purpose %q", purpose)
	}
	if purpose == domain.CodePurposePhone {
		return "phone_verification_code", "phone_verification_expires_at", "phone_verification_attempts", nil
	}
	return "password_reset_token", "password_reset_expires_at", "password_reset_attempts", nil
}

func (r *GormCredentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	err := translate(r.db.WithContext(ctx).Create(credential).Error)
	return observe(ctx, credentialStore, "create", err)
}

func (r *GormCredentialRepository) FindByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	return r.findOne(ctx, "find_by_user_id", "user_id = ?", userID)
}

func (r *GormCredentialRepository) FindByOAuthExternalID(ctx context.Context, externalID string) (*domain.Credential, error) {
	return r.findOne(ctx, "find_by_oauth_external_id", "oauth_external_id = ?", externalID)
}

func (r *GormCredentialRepository) FindByResetDigest(ctx context.Context, digest string) (*domain.Credential, error) {
	return r.findOne(ctx, "find_by_reset_digest", "password_reset_token = ?", digest)
}

func (r *GormCredentialRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.Credential, error) {
	var c domain.Credential
	err := translate(r.db.WithContext(ctx).Where(query, arg).First(&c).Error)
	if err := observe(ctx, credentialStore, op, err); err != nil {
		return nil, err
	}
	return &c, nil
}

// IncrementFailedLogin adds one failure and sets locked_until when the new count
// reaches threshold. It returns the row as stored after the update.
func (r *GormCredentialRepository) IncrementFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*domain.Credential, error) {
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"locked_until":          gorm.Expr("CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END", threshold, lockUntil.UTC()),
		})
	if err := observe(ctx, credentialStore, "increment_failed_login", affected(res, ErrNotFound)); err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

func (r *GormCredentialRepository) ResetLockout(ctx context.Context, userID string) error {
	err := r.update(ctx, userID, map[string]any{"failed_login_attempts": 0, "locked_until": nil})
	return observe(ctx, credentialStore, "reset_lockout", err)
}

func (r *GormCredentialRepository) SetRefreshTokenHash(ctx context.Context, userID, hash string) error {
	err := r.update(ctx, userID, map[string]any{"refresh_token_hash": hash})
	return observe(ctx, credentialStore, "set_refresh_hash", err)
}

// SwapRefreshTokenHash replaces oldHash with newHash and fails with ErrConflict
// when the stored value is no longer oldHash.
func (r *GormCredentialRepository) SwapRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ? AND refresh_token_hash = ?", userID, oldHash).
		Updates(map[string]any{"refresh_token_hash": newHash})
	return observe(ctx, credentialStore, "swap_refresh_hash", affected(res, ErrConflict))
}

// ClearRefreshTokenHash clears the stored hash. A non-empty expectedHash makes
// it conditional; the bool reports whether a value was cleared.
func (r *GormCredentialRepository) ClearRefreshTokenHash(ctx context.Context, userID, expectedHash string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Credential{}).Where("user_id = ? AND refresh_token_hash IS NOT NULL", userID)
	if expectedHash != "" {
		q = q.Where("refresh_token_hash = ?", expectedHash)
	}
	res := q.Updates(map[string]any{"refresh_token_hash": nil})
	if err := observe(ctx, credentialStore, "clear_refresh_hash", translate(res.Error)); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// StartCodeRequest stores a new code digest and counts the request. The count
// restarts at 1 when the previous code has expired or was cleared; otherwise it
// is refused with ErrLimitReached once maxRequests is reached.
func (r *GormCredentialRepository) StartCodeRequest(ctx context.Context, userID string, purpose domain.CodePurpose, digest string, now, expiresAt time.Time, maxRequests int) (int, error) {
	codeCol, expCol, attCol, err := codeColumns(purpose)
	if err != nil {
		return 0, err
	}
	now = now.UTC()
	windowOpen := fmt.Sprintf("%s IS NULL OR %s < ?", expCol, expCol)
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ?", userID).
		Where(fmt.Sprintf("(%s OR %s < ?)", windowOpen, attCol), now, maxRequests).
		Updates(map[string]any{
			attCol:  gorm.Expr(fmt.Sprintf("CASE WHEN %s THEN 1 ELSE %s + 1 END", windowOpen, attCol), now),
			codeCol: digest,
			expCol:  expiresAt.UTC(),
		})
	if err := observe(ctx, credentialStore, "start_code_request", affected(res, ErrLimitReached)); err != nil {
		return 0, err
	}
	c, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return c.Slot(purpose).Attempts, nil
}

// RollbackCodeRequest undoes one StartCodeRequest whose code was never
// delivered. The code is dropped only if no newer request replaced it.
func (r *GormCredentialRepository) RollbackCodeRequest(ctx context.Context, userID string, purpose domain.CodePurpose, digest string) error {
	codeCol, _, attCol, err := codeColumns(purpose)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			attCol:  gorm.Expr(fmt.Sprintf("CASE WHEN %s > 0 THEN %s - 1 ELSE 0 END", attCol, attCol)),
			codeCol: gorm.Expr(fmt.Sprintf("CASE WHEN %s = ? THEN NULL ELSE %s END", codeCol, codeCol), digest),
		})
	return observe(ctx, credentialStore, "rollback_code_request", affected(res, ErrNotFound))
}

// ClearCode drops an expired code. The request counter is left alone; the
// next request opens a new window because the expiry is gone.
func (r *GormCredentialRepository) ClearCode(ctx context.Context, userID string, purpose domain.CodePurpose) error {
	codeCol, expCol, _, err := codeColumns(purpose)
	if err != nil {
		return err
	}
	err = r.update(ctx, userID, map[string]any{codeCol: nil, expCol: nil})
	return observe(ctx, credentialStore, "clear_code", err)
}

// ConsumeCode spends the code with the given digest and resets the request
// counter. ErrConflict means another request consumed or replaced it first.
func (r *GormCredentialRepository) ConsumeCode(ctx context.Context, userID string, purpose domain.CodePurpose, digest string) error {
	codeCol, expCol, attCol, err := codeColumns(purpose)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ?", userID).
		Where(fmt.Sprintf("%s = ?", codeCol), digest).
		Updates(map[string]any{codeCol: nil, expCol: nil, attCol: 0})
	return observe(ctx, credentialStore, "consume_code", affected(res, ErrConflict))
}

// ResetPassword spends the reset code with resetDigest and, in the same
// statement, installs a new hash and salt, logs out every session and clears
// lockout state. ErrConflict means the code was spent or replaced first.
func (r *GormCredentialRepository) ResetPassword(ctx context.Context, userID, resetDigest, hash, salt string, changedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("user_id = ? AND password_reset_token = ?", userID, resetDigest).
		Updates(map[string]any{
			"password_hash":             hash,
			"salt":                      salt,
			"password_changed_at":       changedAt.UTC(),
			"password_reset_token":      nil,
			"password_reset_expires_at": nil,
			"password_reset_attempts":   0,
			"refresh_token_hash":        nil,
			"failed_login_attempts":     0,
			"locked_until":              nil,
		})
	return observe(ctx, credentialStore, "reset_password", affected(res, ErrConflict))
}

// LinkOAuth attaches externalID to the credential, replacing any earlier
// link. ErrDuplicate means another credential already owns externalID.
func (r *GormCredentialRepository) LinkOAuth(ctx context.Context, userID, externalID string, accessEnc, refreshEnc []byte) error {
	err := r.update(ctx, userID, map[string]any{
		"oauth_external_id":       externalID,
		"oauth_access_token_enc":  accessEnc,
		"oauth_refresh_token_enc": refreshEnc,
	})
	return observe(ctx, credentialStore, "link_oauth", err)
}

func (r *GormCredentialRepository) UpdateOAuthTokens(ctx context.Context, userID string, accessEnc, refreshEnc []byte) error {
	err := r.update(ctx, userID, map[string]any{
		"oauth_access_token_enc":  accessEnc,
		"oauth_refresh_token_enc": refreshEnc,
	})
	return observe(ctx, credentialStore, "update_oauth_tokens", err)
}

func (r *GormCredentialRepository) update(ctx context.Context, userID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).Where("user_id = ?", userID).Updates(updates)
	return affected(res, ErrNotFound)
}
