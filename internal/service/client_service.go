package service

import (
	"context"
	"errors"
	"fmt"

	"iutility/internal/model"
	"iutility/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrEmailTaken = errors.New("a client with this email already exists")

// ClientService provisions tenants. Creating a client always creates its
// wallet in the same transaction; a client without a wallet is unreachable
// state.
type ClientService struct {
	db         *gorm.DB
	clientRepo *repository.ClientRepository
	walletRepo *repository.WalletRepository
}

func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{
		db:         db,
		clientRepo: repository.NewClientRepository(db),
		walletRepo: repository.NewWalletRepository(db),
	}
}

func (s *ClientService) Create(ctx context.Context, email, password, contactName, plan string, monthlyQuota int64, lowBalanceThreshold decimal.Decimal) (*model.Client, error) {
	existing, err := s.clientRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	client := &model.Client{
		Email:        email,
		PasswordHash: string(hash),
		ContactName:  contactName,
		IsActive:     true,
		Plan:         plan,
		MonthlyQuota: monthlyQuota,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.clientRepo.Create(ctx, tx, client); err != nil {
			return err
		}
		wallet := &model.ClientWallet{
			ClientID:            client.ID,
			Balance:             decimal.Zero,
			Status:              model.WalletStatusActive,
			LowBalanceThreshold: lowBalanceThreshold,
		}
		return s.walletRepo.Create(ctx, tx, wallet)
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*model.Client, error) {
	return s.clientRepo.GetByID(ctx, id)
}

func (s *ClientService) List(ctx context.Context, page, pageSize int) ([]*model.Client, int64, error) {
	return s.clientRepo.List(ctx, page, pageSize)
}

// SetActive activates or deactivates a client. Deactivation implicitly
// disables all of the client's API keys: the access gate checks the owning
// client on every call.
func (s *ClientService) SetActive(ctx context.Context, id string, active bool) error {
	return s.clientRepo.SetActive(ctx, id, active)
}
