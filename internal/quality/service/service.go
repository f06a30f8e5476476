package service

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhigong-tech/conquality/internal/config"
	"github.com/zhigong-tech/conquality/internal/quality/repository"
	"github.com/zhigong-tech/conquality/internal/shared/email"
	"github.com/zhigong-tech/conquality/internal/shared/wecom"
)

// NotifySink 外部通知通道。失败由调用方记录，不中断业务
type NotifySink interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
	SendChat(ctx context.Context, userIDs []string, text string) error
}

// Services 服务集合
type Services struct {
	Opinion      *OpinionService
	Review       *ReviewService
	Import       *ImportService
	Statistics   *StatisticsService
	Reminder     *ReminderService
	Export       *ExportService
	Attachment   *AttachmentService
	Notification *NotificationService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化MinIO客户端（附件存储，不可用时降级为不支持上传）
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO客户端初始化失败，附件上传不可用", zap.Error(err))
			minioClient = nil
		}
	}

	// 初始化通知通道
	var wecomClient *wecom.Client
	if cfg.WeCom.CorpID != "" && cfg.WeCom.CorpSecret != "" {
		wecomClient = wecom.NewClient(cfg.WeCom.CorpID, cfg.WeCom.CorpSecret, cfg.WeCom.AgentID)
	}
	emailSender := email.NewSender(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	sink := NewChannelSink(emailSender, wecomClient)

	wfLogger := NewWorkflowLogger(repos.WorkflowLog, logger)
	opinionSvc := NewOpinionService(repos, rdb, wfLogger, logger)
	reviewSvc := NewReviewService(repos, wfLogger, logger)
	statsSvc := NewStatisticsService(repos)

	return &Services{
		Opinion:      opinionSvc,
		Review:       reviewSvc,
		Import:       NewImportService(repos, opinionSvc),
		Statistics:   statsSvc,
		Reminder:     NewReminderService(repos, rdb, sink, cfg.Server.BaseURL, logger),
		Export:       NewExportService(repos),
		Attachment:   NewAttachmentService(repos, minioClient, cfg.MinIO.Bucket, wfLogger),
		Notification: NewNotificationService(repos),
	}
}

// ChannelSink 邮件+企业微信组合通知通道
type ChannelSink struct {
	email *email.Sender
	wecom *wecom.Client
}

// NewChannelSink 创建组合通知通道
func NewChannelSink(sender *email.Sender, client *wecom.Client) *ChannelSink {
	return &ChannelSink{email: sender, wecom: client}
}

// SendEmail 发送邮件；SMTP未配置时静默跳过
func (s *ChannelSink) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if s.email == nil || !s.email.IsConfigured() {
		return nil
	}
	return s.email.SendText(to, subject, body)
}

// SendChat 推送企业微信消息；未配置时静默跳过
func (s *ChannelSink) SendChat(ctx context.Context, userIDs []string, text string) error {
	if s.wecom == nil {
		return nil
	}
	return s.wecom.SendText(ctx, userIDs, text)
}

