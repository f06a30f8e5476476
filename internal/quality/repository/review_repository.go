package repository

import (
	"context"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// ReviewRepository 审核记录仓库
type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// FindByOpinion 查询某意见的审核记录
func (r *ReviewRepository) FindByOpinion(ctx context.Context, opinionID string) ([]entity.OpinionReview, error) {
	var items []entity.OpinionReview
	err := r.db.WithContext(ctx).
		Preload("Reviewer").
		Where("opinion_id = ?", opinionID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// Exists 判断 (opinion, reviewer, role) 是否已有审核记录
func (r *ReviewRepository) Exists(ctx context.Context, opinionID, reviewerID, role string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.OpinionReview{}).
		Where("opinion_id = ? AND reviewer_id = ? AND role = ?", opinionID, reviewerID, role).
		Count(&count).Error
	return count > 0, err
}

// Create 创建审核记录
func (r *ReviewRepository) Create(ctx context.Context, review *entity.OpinionReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

// CreateTx 在指定事务内创建审核记录
func (r *ReviewRepository) CreateTx(ctx context.Context, tx *gorm.DB, review *entity.OpinionReview) error {
	return tx.WithContext(ctx).Create(review).Error
}

// FindForStatistics 查询统计口径内的全部审核记录
func (r *ReviewRepository) FindForStatistics(ctx context.Context, projectID string) ([]entity.OpinionReview, error) {
	var items []entity.OpinionReview
	query := r.db.WithContext(ctx).Model(&entity.OpinionReview{})
	if projectID != "" {
		query = query.
			Joins("JOIN quality_opinions ON quality_opinions.id = quality_opinion_reviews.opinion_id").
			Where("quality_opinions.project_id = ?", projectID)
	}
	err := query.Find(&items).Error
	return items, err
}
