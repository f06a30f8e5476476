package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpinionRepository 咨询意见仓库
type OpinionRepository struct {
	db *gorm.DB
}

func NewOpinionRepository(db *gorm.DB) *OpinionRepository {
	return &OpinionRepository{db: db}
}

// DB 返回底层连接（事务编排用）
func (r *OpinionRepository) DB() *gorm.DB {
	return r.db
}

// FindAll 查询意见列表
// filters: status/project_id/profession_id/search(location_name模糊)
// ordering: 白名单内的排序字段，默认created_at倒序
func (r *OpinionRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string, ordering string) ([]entity.Opinion, int64, error) {
	var items []entity.Opinion
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Opinion{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if projectID := filters["project_id"]; projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if professionID := filters["profession_id"]; professionID != "" {
		query = query.Where("profession_id = ?", professionID)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("location_name LIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order(orderClause(ordering)).
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// orderClause 排序参数白名单，支持"-field"表示倒序
func orderClause(ordering string) string {
	allowed := map[string]string{
		"created_at":       "created_at",
		"updated_at":       "updated_at",
		"submitted_at":     "submitted_at",
		"response_deadline": "response_deadline",
		"saving_amount":    "saving_amount",
		"opinion_number":   "opinion_number",
	}
	if ordering == "" {
		return "created_at DESC"
	}
	desc := false
	field := ordering
	if strings.HasPrefix(ordering, "-") {
		desc = true
		field = ordering[1:]
	}
	col, ok := allowed[field]
	if !ok {
		return "created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// FindByID 根据ID查找意见
func (r *OpinionRepository) FindByID(ctx context.Context, id string) (*entity.Opinion, error) {
	var opinion entity.Opinion
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&opinion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &opinion, nil
}

// FindByIDForUpdate 行锁查找，用于状态机串行化（须在事务内调用）
func (r *OpinionRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.Opinion, error) {
	var opinion entity.Opinion
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&opinion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &opinion, nil
}

// FindDetail 查找意见并预加载子集
func (r *OpinionRepository) FindDetail(ctx context.Context, id string) (*entity.Opinion, error) {
	var opinion entity.Opinion
	err := r.db.WithContext(ctx).
		Preload("Reviews", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Reviews.Reviewer").
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Participants.User").
		Preload("SavingItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&opinion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &opinion, nil
}

// CreateTx 在既有事务内创建意见
func (r *OpinionRepository) CreateTx(ctx context.Context, tx *gorm.DB, opinion *entity.Opinion) error {
	return tx.WithContext(ctx).Create(opinion).Error
}

// DeleteTx 在既有事务内删除意见及其全部子记录
func (r *OpinionRepository) DeleteTx(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	if err := tx.Where("opinion_id = ?", id).Delete(&entity.OpinionReview{}).Error; err != nil {
		return err
	}
	if err := tx.Where("opinion_id = ?", id).Delete(&entity.OpinionParticipant{}).Error; err != nil {
		return err
	}
	if err := tx.Where("opinion_id = ?", id).Delete(&entity.OpinionSavingItem{}).Error; err != nil {
		return err
	}
	if err := tx.Where("opinion_id = ?", id).Delete(&entity.OpinionAttachment{}).Error; err != nil {
		return err
	}
	if err := tx.Where("opinion_id = ?", id).Delete(&entity.OpinionWorkflowLog{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", id).Delete(&entity.Opinion{}).Error
}

// NextOpinionNumberTx 生成意见编号 OPIN-{项目编号}-{专业代码}-{3位序号}
// 在指定事务内扫描同前缀下最大编号的尾部整数加一；尾部无法解析时回退为1
func (r *OpinionRepository) NextOpinionNumberTx(ctx context.Context, tx *gorm.DB, projectNumber, professionCode string) (string, error) {
	prefix := fmt.Sprintf("OPIN-%s-%s-", projectNumber, professionCode)

	var maxNumber string
	err := tx.WithContext(ctx).
		Model(&entity.Opinion{}).
		Select("COALESCE(MAX(opinion_number), '')").
		Where("opinion_number LIKE ?", prefix+"%").
		Scan(&maxNumber).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxNumber != "" {
		fmt.Sscanf(maxNumber[len(prefix):], "%d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

// FindPending 查询待处理意见（提醒调度与统计共用）
func (r *OpinionRepository) FindPending(ctx context.Context, projectID string) ([]entity.Opinion, error) {
	var items []entity.Opinion
	query := r.db.WithContext(ctx).
		Where("status IN ?", entity.PendingStatuses)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	err := query.Order("created_at ASC").Find(&items).Error
	return items, err
}

// FindForStatistics 查询统计口径内的全部意见
func (r *OpinionRepository) FindForStatistics(ctx context.Context, projectID string) ([]entity.Opinion, error) {
	var items []entity.Opinion
	query := r.db.WithContext(ctx).Model(&entity.Opinion{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	err := query.Find(&items).Error
	return items, err
}
