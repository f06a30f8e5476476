package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// ParticipantRepository 参与人仓库
type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// WithTx 返回绑定到指定事务的仓库
func (r *ParticipantRepository) WithTx(tx *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: tx}
}

// FindByOpinion 查询某意见的参与人（含已移除）
func (r *ParticipantRepository) FindByOpinion(ctx context.Context, opinionID string) ([]entity.OpinionParticipant, error) {
	var items []entity.OpinionParticipant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("opinion_id = ?", opinionID).
		Order("joined_at ASC").
		Find(&items).Error
	return items, err
}

// FindActiveByOpinion 查询某意见的在册参与人
func (r *ParticipantRepository) FindActiveByOpinion(ctx context.Context, opinionID string) ([]entity.OpinionParticipant, error) {
	var items []entity.OpinionParticipant
	err := r.db.WithContext(ctx).
		Where("opinion_id = ? AND removed_at IS NULL", opinionID).
		Order("joined_at ASC").
		Find(&items).Error
	return items, err
}

// FindByKey 按 (opinion, user, role) 查找
func (r *ParticipantRepository) FindByKey(ctx context.Context, opinionID, userID, role string) (*entity.OpinionParticipant, error) {
	var p entity.OpinionParticipant
	err := r.db.WithContext(ctx).
		Where("opinion_id = ? AND user_id = ? AND role = ?", opinionID, userID, role).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create 创建参与人
func (r *ParticipantRepository) Create(ctx context.Context, p *entity.OpinionParticipant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Update 更新参与人
func (r *ParticipantRepository) Update(ctx context.Context, p *entity.OpinionParticipant) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// SoftRemoveExcept 将不在保留集内的参与人标记移除；keepIDs为空时全部移除
func (r *ParticipantRepository) SoftRemoveExcept(ctx context.Context, opinionID string, keepIDs []string, now time.Time) error {
	query := r.db.WithContext(ctx).
		Model(&entity.OpinionParticipant{}).
		Where("opinion_id = ? AND removed_at IS NULL", opinionID)
	if len(keepIDs) > 0 {
		query = query.Where("id NOT IN ?", keepIDs)
	}
	return query.Update("removed_at", now).Error
}
