package service

import (
	"context"
	"errors"
	"time"

	"iutility/internal/model"
	"iutility/internal/repository"
	"iutility/pkg/idgen"

	"gorm.io/gorm"
)

var ErrInvalidEntitlement = errors.New("entitlement must be airtime, cashpower or both")

const EntitlementBoth = "both"

// ApiKeyService issues, rotates and revokes integrator credentials.
type ApiKeyService struct {
	keyRepo *repository.ApiKeyRepository
}

func NewApiKeyService(db *gorm.DB) *ApiKeyService {
	return &ApiKeyService{
		keyRepo: repository.NewApiKeyRepository(db),
	}
}

// IssuedKey carries the plaintext secret, returned exactly once at issue or
// rotation time.
type IssuedKey struct {
	Key       *model.ApiKey
	SecretKey string
}

// Issue creates a new key for a client with the given entitlement:
// "airtime", "cashpower" or "both".
func (s *ApiKeyService) Issue(ctx context.Context, clientID, name, entitlement string, expiresAt *time.Time, ipRestrictions string) (*IssuedKey, error) {
	isAirtime, isCashpower, isBoth, err := entitlementFlags(entitlement)
	if err != nil {
		return nil, err
	}

	key := &model.ApiKey{
		ClientID:       clientID,
		Key:            idgen.GenerateAPIKey("iu_live_"),
		SecretKey:      idgen.GenerateSecretKey(),
		Name:           name,
		IsActive:       true,
		IsAirtime:      isAirtime,
		IsCashpower:    isCashpower,
		IsBoth:         isBoth,
		ExpiresAt:      expiresAt,
		IPRestrictions: ipRestrictions,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}
	return &IssuedKey{Key: key, SecretKey: key.SecretKey}, nil
}

// Regenerate replaces the token material of an existing key, keeping its
// entitlements and ownership.
func (s *ApiKeyService) Regenerate(ctx context.Context, id string) (*IssuedKey, error) {
	key, err := s.keyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	newKey := idgen.GenerateAPIKey("iu_live_")
	newSecret := idgen.GenerateSecretKey()
	if err := s.keyRepo.RotateTokens(ctx, id, newKey, newSecret); err != nil {
		return nil, err
	}

	key.Key = newKey
	key.SecretKey = newSecret
	return &IssuedKey{Key: key, SecretKey: newSecret}, nil
}

// Revoke deactivates a key.
func (s *ApiKeyService) Revoke(ctx context.Context, id string) error {
	return s.keyRepo.Revoke(ctx, id)
}

// List returns all keys of a client.
func (s *ApiKeyService) List(ctx context.Context, clientID string) ([]*model.ApiKey, error) {
	return s.keyRepo.ListByClientID(ctx, clientID)
}

func entitlementFlags(entitlement string) (isAirtime, isCashpower, isBoth bool, err error) {
	switch entitlement {
	case model.ServiceAirtime:
		return true, false, false, nil
	case model.ServiceCashpower:
		return false, true, false, nil
	case EntitlementBoth:
		return true, true, true, nil
	}
	return false, false, false, ErrInvalidEntitlement
}
