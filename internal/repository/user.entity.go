package repository

import (
	"time"

	"github.com/nimasrn/payment-gateway/internal/model"
)

type UserEntity struct {
	ID           int64     `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	Email        string    `db:"email"         gorm:"column:email;not null;uniqueIndex"`
	Name         string    `db:"name"          gorm:"column:name"`
	Role         string    `db:"role"          gorm:"column:role;not null;default:admin"`
	PasswordHash string    `db:"password_hash" gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:           e.ID,
		Email:        e.Email,
		Name:         e.Name,
		Role:         e.Role,
		PasswordHash: e.PasswordHash,
		CreatedAt:    e.CreatedAt,
	}
}
