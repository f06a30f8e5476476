package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// =============================================================================
// 参与人/节省明细同步
// 参与人软删除保留历史引用；节省明细为派生数据，直接硬删除
// 与意见主体的写入共用事务，保证创建/更新对外原子可见
// =============================================================================

// SyncParticipants 以声明的参与人集合为准同步存量
// 无效或停用的用户直接跳过；集合外的存量参与人写入 removed_at
func (s *OpinionService) SyncParticipants(ctx context.Context, tx *gorm.DB, opinionID string, inputs []ParticipantInput) error {
	participants := s.repos.Participant.WithTx(tx)
	now := time.Now()
	keptIDs := make([]string, 0, len(inputs))

	for _, in := range inputs {
		if in.UserID == "" || in.Role == "" {
			continue
		}
		active, err := s.repos.User.IsActive(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !active {
			continue
		}

		existing, err := participants.FindByKey(ctx, opinionID, in.UserID, in.Role)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if existing != nil {
			existing.IsPrimary = in.IsPrimary
			existing.ExtraInfo = in.ExtraInfo
			existing.RemovedAt = nil
			if err := participants.Update(ctx, existing); err != nil {
				return err
			}
			keptIDs = append(keptIDs, existing.ID)
			continue
		}

		p := &entity.OpinionParticipant{
			ID:        uuid.New().String()[:32],
			OpinionID: opinionID,
			UserID:    in.UserID,
			Role:      in.Role,
			IsPrimary: in.IsPrimary,
			JoinedAt:  now,
			ExtraInfo: in.ExtraInfo,
		}
		if err := participants.Create(ctx, p); err != nil {
			return err
		}
		keptIDs = append(keptIDs, p.ID)
	}

	// 集合外的软删除；输入为空集时全部移除
	return participants.SoftRemoveExcept(ctx, opinionID, keptIDs, now)
}

// SyncSavingItems 以载荷为准同步节省明细
// 带已知id的行原地更新；quantity与unit_saving同时有值时重算total_saving；
// 其余行新建；载荷外的存量行删除
func (s *OpinionService) SyncSavingItems(ctx context.Context, tx *gorm.DB, opinionID string, inputs []SavingItemInput) error {
	items := s.repos.SavingItem.WithTx(tx)
	keptIDs := make([]string, 0, len(inputs))

	for _, in := range inputs {
		category := in.Category
		if category == "" {
			category = entity.SavingCategoryOther
		}

		total := in.TotalSaving
		if in.Quantity != nil && in.UnitSaving != nil {
			t := in.Quantity.Mul(*in.UnitSaving).Round(2)
			total = &t
		}

		var existing *entity.OpinionSavingItem
		if in.ID != "" {
			found, err := items.FindByID(ctx, in.ID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if found != nil && found.OpinionID == opinionID {
				existing = found
			}
		}

		if existing != nil {
			existing.Category = category
			existing.Description = in.Description
			existing.Quantity = in.Quantity
			existing.Unit = in.Unit
			existing.UnitSaving = in.UnitSaving
			existing.TotalSaving = total
			existing.Notes = in.Notes
			if err := items.Update(ctx, existing); err != nil {
				return err
			}
			keptIDs = append(keptIDs, existing.ID)
			continue
		}

		item := &entity.OpinionSavingItem{
			ID:          uuid.New().String()[:32],
			OpinionID:   opinionID,
			Category:    category,
			Description: in.Description,
			Quantity:    in.Quantity,
			Unit:        in.Unit,
			UnitSaving:  in.UnitSaving,
			TotalSaving: total,
			Notes:       in.Notes,
		}
		if err := items.Create(ctx, item); err != nil {
			return err
		}
		keptIDs = append(keptIDs, item.ID)
	}

	return items.DeleteExcept(ctx, opinionID, keptIDs)
}
