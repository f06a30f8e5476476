package repository

import (
	"context"
	"errors"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// ProjectRepository 项目仓库（项目服务最小契约的落地）
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByID 按ID查找项目
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// FindByNumber 按项目编号查找
func (r *ProjectRepository) FindByNumber(ctx context.Context, number string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("project_number = ?", number).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// IsAccessible 用户是否可访问项目：经理、商务经理或团队成员
func (r *ProjectRepository) IsAccessible(ctx context.Context, projectID, userID string) (bool, error) {
	project, err := r.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if project.ManagerID == userID || project.BusinessManagerID == userID {
		return true, nil
	}
	var count int64
	err = r.db.WithContext(ctx).Model(&entity.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

// ManagerOf 项目经理ID；无则空串
func (r *ProjectRepository) ManagerOf(ctx context.Context, projectID string) (string, error) {
	project, err := r.FindByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	return project.ManagerID, nil
}

// BusinessManagerOf 商务经理ID；无则空串
func (r *ProjectRepository) BusinessManagerOf(ctx context.Context, projectID string) (string, error) {
	project, err := r.FindByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	return project.BusinessManagerID, nil
}

// TeamMembers 项目团队成员
func (r *ProjectRepository) TeamMembers(ctx context.Context, projectID string) ([]entity.ProjectMember, error) {
	var members []entity.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&members).Error
	return members, err
}

// FindProfessionByID 按ID查找专业
func (r *ProjectRepository) FindProfessionByID(ctx context.Context, id string) (*entity.Profession, error) {
	var p entity.Profession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindProfessionByCode 按代码查找专业（大小写不敏感）
func (r *ProjectRepository) FindProfessionByCode(ctx context.Context, code string) (*entity.Profession, error) {
	var p entity.Profession
	err := r.db.WithContext(ctx).Where("UPPER(code) = UPPER(?)", code).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
