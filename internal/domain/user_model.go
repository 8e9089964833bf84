package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password  string    `gorm:"not null;size:100" json:"-"`
	Role      string    `gorm:"not null;default:'user';size:16" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
