package repository

import (
	"context"
	"errors"
	"time"

	"iutility/internal/model"

	"gorm.io/gorm"
)

var ErrApiKeyNotFound = errors.New("api key not found")

type ApiKeyRepository struct {
	db *gorm.DB
}

func NewApiKeyRepository(db *gorm.DB) *ApiKeyRepository {
	return &ApiKeyRepository{db: db}
}

func (r *ApiKeyRepository) Create(ctx context.Context, key *model.ApiKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *ApiKeyRepository) GetByID(ctx context.Context, id string) (*model.ApiKey, error) {
	var key model.ApiKey
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApiKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

// GetByKey resolves a presented key token. Inactive keys are not resolved;
// revocation and deletion are indistinguishable to callers.
func (r *ApiKeyRepository) GetByKey(ctx context.Context, keyToken string) (*model.ApiKey, error) {
	var key model.ApiKey
	err := r.db.WithContext(ctx).
		Where("`key` = ? AND is_active = ?", keyToken, true).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApiKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *ApiKeyRepository) ListByClientID(ctx context.Context, clientID string) ([]*model.ApiKey, error) {
	var keys []*model.ApiKey
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&keys).Error
	return keys, err
}

// Revoke deactivates a key. Keys are never hard-deleted while usage history
// references them.
func (r *ApiKeyRepository) Revoke(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ApiKey{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrApiKeyNotFound
	}
	return nil
}

// RotateTokens swaps in freshly generated key material for an existing key.
func (r *ApiKeyRepository) RotateTokens(ctx context.Context, id, keyToken, secretToken string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ApiKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"key":        keyToken,
			"secret_key": secretToken,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrApiKeyNotFound
	}
	return nil
}

// TouchLastUsed records key usage. Fired after the response completes, so
// errors are only logged by the caller.
func (r *ApiKeyRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ApiKey{}).
		Where("id = ?", id).
		Update("last_used_at", usedAt).Error
}
