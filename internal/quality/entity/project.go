package entity

import "time"

// Project 项目（项目服务的最小落地：核心只读）
type Project struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectNumber     string    `json:"project_number" gorm:"size:64;uniqueIndex;not null"`
	Name              string    `json:"name" gorm:"size:200;not null"`
	ManagerID         string    `json:"manager_id" gorm:"size:32"`
	BusinessManagerID string    `json:"business_manager_id" gorm:"size:32"`
	Status            string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Manager *User `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectMember 项目团队成员
type ProjectMember struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string    `json:"project_id" gorm:"size:32;not null;uniqueIndex:uk_project_member"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;uniqueIndex:uk_project_member"`
	Role      string    `json:"role" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}

// Profession 专业（结构/建筑/机电等）
type Profession struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:64;not null"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Profession) TableName() string {
	return "professions"
}
