package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// NotificationRepository 通知仓库
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// FindUnreadAlert 查找某接收人、某意见、某提醒类型的未读质量提醒
func (r *NotificationRepository) FindUnreadAlert(ctx context.Context, recipientID, projectID, opinionID, alertType string) (*entity.Notification, error) {
	var n entity.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND project_id = ? AND category = ? AND opinion_id = ? AND alert_type = ? AND is_read = false",
			recipientID, projectID, entity.NotificationCategoryQualityAlert, opinionID, alertType).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// FindByRecipient 查询某用户的通知
func (r *NotificationRepository) FindByRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, pageSize int) ([]entity.Notification, int64, error) {
	var items []entity.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = false")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_time DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 按ID查找通知
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*entity.Notification, error) {
	var n entity.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Create 创建通知
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// Update 更新通知
func (r *NotificationRepository) Update(ctx context.Context, n *entity.Notification) error {
	return r.db.WithContext(ctx).Save(n).Error
}

// MarkRead 标记已读
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_time": at}).Error
}

// CountUnreadAlerts 统计未读质量提醒（按类型分组）
func (r *NotificationRepository) CountUnreadAlerts(ctx context.Context, projectID string) (total int64, byType map[string]int64, err error) {
	byType = map[string]int64{}

	type row struct {
		AlertType string
		Count     int64
	}
	var rows []row

	query := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Select("alert_type, COUNT(*) as count").
		Where("category = ? AND is_read = false", entity.NotificationCategoryQualityAlert)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if err = query.Group("alert_type").Scan(&rows).Error; err != nil {
		return 0, nil, err
	}
	for _, r := range rows {
		byType[r.AlertType] = r.Count
		total += r.Count
	}
	return total, byType, nil
}

// CountAlertsSince 统计某时间后发出/确认的质量提醒
func (r *NotificationRepository) CountAlertsSince(ctx context.Context, projectID string, since time.Time) (sent int64, acked int64, err error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).
			Model(&entity.Notification{}).
			Where("category = ?", entity.NotificationCategoryQualityAlert)
		if projectID != "" {
			q = q.Where("project_id = ?", projectID)
		}
		return q
	}

	if err = base().Where("created_time >= ?", since).Count(&sent).Error; err != nil {
		return 0, 0, err
	}
	if err = base().Where("is_read = true AND read_time >= ?", since).Count(&acked).Error; err != nil {
		return 0, 0, err
	}
	return sent, acked, nil
}
