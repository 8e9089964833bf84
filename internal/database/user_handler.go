package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"clickguard/internal/domain"
)

// CreateUser stores a new account. passwordHash must already be hashed. The
// first account ever created becomes an admin.
func CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	user := domain.User{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: passwordHash,
		Role:     domain.RoleUser,
	}

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.User
		err := tx.Select("id").Where("email = ?", user.Email).Take(&existing).Error
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&domain.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			user.Role = domain.RoleAdmin
		}

		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("database: create user: %w", err)
	}

	return &user, nil
}

func GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	var user domain.User
	err := DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get user: %w", err)
	}
	return &user, nil
}

func GetUserFromID(ctx context.Context, id uint) (*domain.User, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}

	var user domain.User
	err := DB.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get user: %w", err)
	}
	return &user, nil
}
