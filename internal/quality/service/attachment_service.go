package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
)

// AttachmentService 意见附件服务（对象存储MinIO）
type AttachmentService struct {
	repos       *repository.Repositories
	minioClient *minio.Client
	bucketName  string
	wfLogger    *WorkflowLogger
}

// NewAttachmentService 创建附件服务
func NewAttachmentService(repos *repository.Repositories, minioClient *minio.Client, bucketName string, wfLogger *WorkflowLogger) *AttachmentService {
	return &AttachmentService{
		repos:       repos,
		minioClient: minioClient,
		bucketName:  bucketName,
		wfLogger:    wfLogger,
	}
}

var attachmentTypes = map[string]bool{
	entity.AttachmentTypeDrawing:     true,
	entity.AttachmentTypePhoto:       true,
	entity.AttachmentTypeCalculation: true,
	entity.AttachmentTypeDocument:    true,
	entity.AttachmentTypeOther:       true,
}

// Upload 上传附件。意见须处于可编辑状态
func (s *AttachmentService) Upload(ctx context.Context, userID, opinionID, attachmentType, fileName, contentType string, fileSize int64, reader io.Reader) (*entity.OpinionAttachment, error) {
	if s.minioClient == nil {
		return nil, apperr.Integration("对象存储不可用，附件上传暂不支持", nil)
	}
	if !attachmentTypes[attachmentType] {
		attachmentType = entity.AttachmentTypeOther
	}

	opinion, err := s.repos.Opinion.FindByID(ctx, opinionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("意见不存在")
		}
		return nil, err
	}
	if !opinion.Editable() {
		return nil, apperr.InvalidState("当前状态 %s 不允许上传附件", opinion.Status)
	}

	id := uuid.New().String()[:32]
	objectKey := fmt.Sprintf("quality/opinions/%s/%s%s", opinionID, id, filepath.Ext(fileName))

	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectKey, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, apperr.Integration("附件上传失败", err)
	}

	attachment := &entity.OpinionAttachment{
		ID:             id,
		OpinionID:      opinionID,
		AttachmentType: attachmentType,
		ObjectKey:      objectKey,
		FileName:       fileName,
		FileSize:       fileSize,
		ContentType:    contentType,
		UploadedBy:     userID,
		CreatedAt:      time.Now(),
	}
	if err := s.repos.Opinion.DB().WithContext(ctx).Create(attachment).Error; err != nil {
		return nil, err
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:  opinionID,
		Action:     entity.WorkflowActionAttachmentAdded,
		FromStatus: opinion.Status,
		ToStatus:   opinion.Status,
		OperatorID: userID,
		Payload:    entity.JSONB{"file_name": fileName, "attachment_type": attachmentType},
	})
	return attachment, nil
}

// Download 下载附件内容
func (s *AttachmentService) Download(ctx context.Context, attachmentID string) (*entity.OpinionAttachment, io.ReadCloser, error) {
	if s.minioClient == nil {
		return nil, nil, apperr.Integration("对象存储不可用", nil)
	}

	var attachment entity.OpinionAttachment
	if err := s.repos.Opinion.DB().WithContext(ctx).Where("id = ?", attachmentID).First(&attachment).Error; err != nil {
		return nil, nil, apperr.NotFound("附件不存在")
	}

	object, err := s.minioClient.GetObject(ctx, s.bucketName, attachment.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, apperr.Integration("附件读取失败", err)
	}
	return &attachment, object, nil
}

// Delete 删除附件。意见须处于可编辑状态；对象存储清理失败不阻断
func (s *AttachmentService) Delete(ctx context.Context, userID, attachmentID string) error {
	var attachment entity.OpinionAttachment
	if err := s.repos.Opinion.DB().WithContext(ctx).Where("id = ?", attachmentID).First(&attachment).Error; err != nil {
		return apperr.NotFound("附件不存在")
	}

	opinion, err := s.repos.Opinion.FindByID(ctx, attachment.OpinionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("意见不存在")
		}
		return err
	}
	if !opinion.Editable() {
		return apperr.InvalidState("当前状态 %s 不允许删除附件", opinion.Status)
	}

	if err := s.repos.Opinion.DB().WithContext(ctx).Delete(&attachment).Error; err != nil {
		return err
	}
	if s.minioClient != nil {
		_ = s.minioClient.RemoveObject(ctx, s.bucketName, attachment.ObjectKey, minio.RemoveObjectOptions{})
	}

	s.wfLogger.Record(ctx, LogEntry{
		OpinionID:  opinion.ID,
		Action:     entity.WorkflowActionAttachmentRemoved,
		FromStatus: opinion.Status,
		ToStatus:   opinion.Status,
		OperatorID: userID,
		Payload:    entity.JSONB{"file_name": attachment.FileName},
	})
	return nil
}
