package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"github.com/zhigong-tech/conquality/internal/quality/service"
)

// AttachmentHandler 意见附件接口
type AttachmentHandler struct {
	svc *service.AttachmentService
}

// NewAttachmentHandler 创建附件处理器
func NewAttachmentHandler(svc *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// Upload 上传附件
// POST /api/v1/quality/opinions/:id/attachments  (multipart: file, attachment_type)
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传附件文件")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "无法读取上传文件")
		return
	}
	defer file.Close()

	attachmentType := c.DefaultPostForm("attachment_type", entity.AttachmentTypeOther)
	contentType := fileHeader.Header.Get("Content-Type")

	attachment, err := h.svc.Upload(c.Request.Context(), GetUserID(c), c.Param("id"),
		attachmentType, fileHeader.Filename, contentType, fileHeader.Size, file)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, attachment)
}

// Download 下载附件
// GET /api/v1/quality/attachments/:id/download
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachment, reader, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, attachment.FileName))
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(200, attachment.FileSize, contentType, reader, nil)
}

// Delete 删除附件
// DELETE /api/v1/quality/attachments/:id
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}
