//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	la "github.com/panyam/linkauth"
)

// AutoMigrate creates or updates the accounts table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements la.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*la.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *AccountStore) FindAccountByLocalEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.first(ctx, "local_email = ?", email)
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider la.Provider, providerId string) (*la.Account, error) {
	column, ok := providerColumn(provider)
	if !ok {
		return nil, la.ErrUnknownProvider
	}
	return s.first(ctx, column+" = ?", providerId)
}

func (s *AccountStore) InsertAccount(ctx context.Context, account *la.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	model := AccountToModel(account)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

// SaveAccount overwrites every column so cleared credentials become NULL
func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	model := AccountToModel(account)
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", account.ID).
		Select("*").Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return la.ErrAccountNotFound
	}
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *AccountStore) first(ctx context.Context, query string, arg string) (*la.Account, error) {
	if arg == "" {
		return nil, la.ErrAccountNotFound
	}
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

// translateError maps unique violations to la.ErrDuplicateAccount, whether or
// not the dialector was opened with TranslateError
func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return la.ErrDuplicateAccount
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return la.ErrDuplicateAccount
	}
	return err
}
