package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"kitchenboard/internal/model"
)

// ErrAlreadyLinked is returned when a user is bound to another Telegram account.
var ErrAlreadyLinked = errors.New("user already linked to another telegram account")

// UserRepository looks up staff accounts and their Telegram links.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// LinkTelegram binds a Telegram account to the user with the given email,
// releasing it from any user that held it before. A user already bound to a
// different Telegram account is left untouched and ErrAlreadyLinked returned.
func (r *UserRepository) LinkTelegram(ctx context.Context, email string, telegramID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
			return notFound(err)
		}
		if user.TelegramID != nil && *user.TelegramID != telegramID {
			return ErrAlreadyLinked
		}
		if err := tx.Model(&model.User{}).Where("telegram_id = ? AND id <> ?", telegramID, user.ID).
			Update("telegram_id", nil).Error; err != nil {
			return fmt.Errorf("release telegram id: %w", err)
		}
		if err := tx.Model(&user).Update("telegram_id", telegramID).Error; err != nil {
			return fmt.Errorf("link telegram: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
