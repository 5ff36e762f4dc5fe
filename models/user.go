package models

import (
	"context"
	"errors"
	"time"

	"github.com/zqywuxie/invoice-management/config"
	"github.com/zqywuxie/invoice-management/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:255;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	DisplayName  string    `gorm:"size:255;not null" json:"display_name"`
	IsAdmin      *bool     `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewUser struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	IsAdmin     bool   `json:"is_admin"`
}

var ErrInvalidCredentials = errors.New("invalid username or password")

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	isAdmin := input.IsAdmin
	user := User{
		Username:     input.Username,
		PasswordHash: string(hashed),
		DisplayName:  input.DisplayName,
		IsAdmin:      &isAdmin,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies the password and returns the user on success.
func Authenticate(ctx context.Context, username string, password string) (*User, error) {
	user, err := FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
