package service

import (
	"context"
	"errors"
	"fmt"

	"iutility/internal/model"
	"iutility/internal/repository"
	"iutility/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvalidAmount = errors.New("amount must be greater than zero")

// WalletLedger is the ledger contract the purchase and top-up services build
// on. Both mutations accept an optional caller-owned transaction handle; when
// nil, the operation opens and commits its own.
type WalletLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description, reference string, topUpRequestID *string) (*model.ClientWallet, *model.WalletTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description string, utilityTxID *string) (*model.ClientWallet, *model.WalletTransaction, error)
	BalanceOf(ctx context.Context, clientID string) (decimal.Decimal, error)
}

// WalletService owns every balance mutation. A mutation locks the wallet
// row, reads the balance, writes the new balance and appends the paired
// ledger entry, all inside one database transaction. Nothing else in the
// codebase touches client_wallet.balance.
type WalletService struct {
	db         *gorm.DB
	walletRepo *repository.WalletRepository
	ledgerRepo *repository.WalletTransactionRepository
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:         db,
		walletRepo: repository.NewWalletRepository(db),
		ledgerRepo: repository.NewWalletTransactionRepository(db),
	}
}

// Credit adds funds to a client's wallet and stamps LastTopupDate.
func (s *WalletService) Credit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description, reference string, topUpRequestID *string) (*model.ClientWallet, *model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidAmount
	}

	var wallet *model.ClientWallet
	var entry *model.WalletTransaction

	run := func(tx *gorm.DB) error {
		locked, err := s.walletRepo.GetByClientIDForUpdate(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if locked.Status != model.WalletStatusActive {
			return repository.ErrWalletInactive
		}

		balanceBefore := locked.Balance
		balanceAfter := balanceBefore.Add(amount)

		if err := s.walletRepo.SetBalance(ctx, tx, locked.ID, balanceAfter, true); err != nil {
			return fmt.Errorf("credit: update balance: %w", err)
		}

		entry = &model.WalletTransaction{
			LedgerNo:       idgen.GenerateLedgerNo(),
			WalletID:       locked.ID,
			ClientID:       clientID,
			Type:           model.WalletTxTypeCredit,
			Amount:         amount,
			BalanceBefore:  balanceBefore,
			BalanceAfter:   balanceAfter,
			Description:    description,
			Reference:      reference,
			TopUpRequestID: topUpRequestID,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("credit: append ledger entry: %w", err)
		}

		locked.Balance = balanceAfter
		wallet = locked
		return nil
	}

	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.db.Transaction(run)
	}
	if err != nil {
		return nil, nil, err
	}
	return wallet, entry, nil
}

// Debit removes funds from a client's wallet. Rejects with
// repository.ErrInsufficientBalance when the locked balance cannot cover the
// amount; the balance never goes negative.
func (s *WalletService) Debit(ctx context.Context, tx *gorm.DB, clientID string, amount decimal.Decimal, description string, utilityTxID *string) (*model.ClientWallet, *model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidAmount
	}

	var wallet *model.ClientWallet
	var entry *model.WalletTransaction

	run := func(tx *gorm.DB) error {
		locked, err := s.walletRepo.GetByClientIDForUpdate(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if locked.Status != model.WalletStatusActive {
			return repository.ErrWalletInactive
		}
		if locked.Balance.LessThan(amount) {
			return repository.ErrInsufficientBalance
		}

		balanceBefore := locked.Balance
		balanceAfter := balanceBefore.Sub(amount)

		if err := s.walletRepo.SetBalance(ctx, tx, locked.ID, balanceAfter, false); err != nil {
			return fmt.Errorf("debit: update balance: %w", err)
		}

		entry = &model.WalletTransaction{
			LedgerNo:             idgen.GenerateLedgerNo(),
			WalletID:             locked.ID,
			ClientID:             clientID,
			Type:                 model.WalletTxTypeDebit,
			Amount:               amount,
			BalanceBefore:        balanceBefore,
			BalanceAfter:         balanceAfter,
			Description:          description,
			UtilityTransactionID: utilityTxID,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("debit: append ledger entry: %w", err)
		}

		locked.Balance = balanceAfter
		wallet = locked
		return nil
	}

	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.db.Transaction(run)
	}
	if err != nil {
		return nil, nil, err
	}
	return wallet, entry, nil
}

// BalanceOf returns the current balance without locking.
func (s *WalletService) BalanceOf(ctx context.Context, clientID string) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// GetWallet returns the full wallet record.
func (s *WalletService) GetWallet(ctx context.Context, clientID string) (*model.ClientWallet, error) {
	return s.walletRepo.GetByClientID(ctx, clientID)
}

// History returns the client's ledger entries, newest first.
func (s *WalletService) History(ctx context.Context, clientID string, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	return s.ledgerRepo.ListByClientID(ctx, clientID, page, pageSize)
}
