package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatisticRepository 统计快照仓库
type StatisticRepository struct {
	db *gorm.DB
}

func NewStatisticRepository(db *gorm.DB) *StatisticRepository {
	return &StatisticRepository{db: db}
}

// Upsert 按 (project_id, statistic_type, snapshot_date) 幂等写入快照
func (r *StatisticRepository) Upsert(ctx context.Context, stat *entity.ProductionStatistic) error {
	if stat.ID == "" {
		stat.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "project_id"},
				{Name: "statistic_type"},
				{Name: "snapshot_date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"payload"}),
		}).
		Create(stat).Error
}

// FindAll 查询快照列表
func (r *StatisticRepository) FindAll(ctx context.Context, projectID, statType string, from, to *time.Time, page, pageSize int) ([]entity.ProductionStatistic, int64, error) {
	var items []entity.ProductionStatistic
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ProductionStatistic{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if statType != "" {
		query = query.Where("statistic_type = ?", statType)
	}
	if from != nil {
		query = query.Where("snapshot_date >= ?", from.Format("2006-01-02"))
	}
	if to != nil {
		query = query.Where("snapshot_date <= ?", to.Format("2006-01-02"))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("snapshot_date DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindRange 查询导出区间内的快照（按日期升序）
func (r *StatisticRepository) FindRange(ctx context.Context, projectID, statType string, from, to *time.Time) ([]entity.ProductionStatistic, error) {
	var items []entity.ProductionStatistic
	query := r.db.WithContext(ctx).Model(&entity.ProductionStatistic{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if statType != "" {
		query = query.Where("statistic_type = ?", statType)
	}
	if from != nil {
		query = query.Where("snapshot_date >= ?", from.Format("2006-01-02"))
	}
	if to != nil {
		query = query.Where("snapshot_date <= ?", to.Format("2006-01-02"))
	}
	err := query.Order("snapshot_date ASC, project_id ASC").Find(&items).Error
	return items, err
}

// FindByID 按ID查找快照
func (r *StatisticRepository) FindByID(ctx context.Context, id string) (*entity.ProductionStatistic, error) {
	var stat entity.ProductionStatistic
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stat, nil
}

// FindLatest 查询最近一次快照
func (r *StatisticRepository) FindLatest(ctx context.Context, projectID, statType string) (*entity.ProductionStatistic, error) {
	var stat entity.ProductionStatistic
	query := r.db.WithContext(ctx).Model(&entity.ProductionStatistic{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	} else {
		query = query.Where("project_id = ''")
	}
	if statType != "" {
		query = query.Where("statistic_type = ?", statType)
	}
	err := query.Order("snapshot_date DESC").First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stat, nil
}
