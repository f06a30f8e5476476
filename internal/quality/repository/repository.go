package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 质量模块仓库集合
type Repositories struct {
	Opinion      *OpinionRepository
	Review       *ReviewRepository
	Participant  *ParticipantRepository
	SavingItem   *SavingItemRepository
	WorkflowLog  *WorkflowLogRepository
	Statistic    *StatisticRepository
	Notification *NotificationRepository
	User         *UserRepository
	Project      *ProjectRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Opinion:      NewOpinionRepository(db),
		Review:       NewReviewRepository(db),
		Participant:  NewParticipantRepository(db),
		SavingItem:   NewSavingItemRepository(db),
		WorkflowLog:  NewWorkflowLogRepository(db),
		Statistic:    NewStatisticRepository(db),
		Notification: NewNotificationRepository(db),
		User:         NewUserRepository(db),
		Project:      NewProjectRepository(db),
	}
}
