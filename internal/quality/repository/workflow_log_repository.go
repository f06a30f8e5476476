package repository

import (
	"context"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkflowLogRepository 工作流日志仓库
type WorkflowLogRepository struct {
	db *gorm.DB
}

func NewWorkflowLogRepository(db *gorm.DB) *WorkflowLogRepository {
	return &WorkflowLogRepository{db: db}
}

// FindByOpinion 按created_at倒序查询某意见的日志
func (r *WorkflowLogRepository) FindByOpinion(ctx context.Context, opinionID string, page, pageSize int) ([]entity.OpinionWorkflowLog, int64, error) {
	var items []entity.OpinionWorkflowLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.OpinionWorkflowLog{}).
		Where("opinion_id = ?", opinionID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Log 写入一条日志。日志失败不影响外围事务，错误交由调用方记录
func (r *WorkflowLogRepository) Log(ctx context.Context, log *entity.OpinionWorkflowLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(log).Error
}
