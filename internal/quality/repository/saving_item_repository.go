package repository

import (
	"context"
	"errors"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// SavingItemRepository 节省明细仓库
type SavingItemRepository struct {
	db *gorm.DB
}

func NewSavingItemRepository(db *gorm.DB) *SavingItemRepository {
	return &SavingItemRepository{db: db}
}

// WithTx 返回绑定到指定事务的仓库
func (r *SavingItemRepository) WithTx(tx *gorm.DB) *SavingItemRepository {
	return &SavingItemRepository{db: tx}
}

// FindByOpinion 查询某意见的节省明细
func (r *SavingItemRepository) FindByOpinion(ctx context.Context, opinionID string) ([]entity.OpinionSavingItem, error) {
	var items []entity.OpinionSavingItem
	err := r.db.WithContext(ctx).
		Where("opinion_id = ?", opinionID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// FindByID 按ID查找明细
func (r *SavingItemRepository) FindByID(ctx context.Context, id string) (*entity.OpinionSavingItem, error) {
	var item entity.OpinionSavingItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Create 创建明细
func (r *SavingItemRepository) Create(ctx context.Context, item *entity.OpinionSavingItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Update 更新明细
func (r *SavingItemRepository) Update(ctx context.Context, item *entity.OpinionSavingItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// DeleteExcept 删除保留集之外的明细行（明细为纯派生数据，允许硬删）
func (r *SavingItemRepository) DeleteExcept(ctx context.Context, opinionID string, keepIDs []string) error {
	query := r.db.WithContext(ctx).Where("opinion_id = ?", opinionID)
	if len(keepIDs) > 0 {
		query = query.Where("id NOT IN ?", keepIDs)
	}
	return query.Delete(&entity.OpinionSavingItem{}).Error
}
