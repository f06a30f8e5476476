package entity

import "time"

// User 用户（身份服务的最小落地：核心只读）
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Username    string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"size:64;not null"`
	Email       string    `json:"email" gorm:"size:128"`
	WecomUserID string    `json:"wecom_user_id" gorm:"size:64"`
	Status      string    `json:"status" gorm:"size:16;not null;default:active"` // active/disabled
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsActive 用户是否在职可用
func (u *User) IsActive() bool {
	return u.Status == "active"
}
