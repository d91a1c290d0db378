// Package notify 负责生成候选人与HR的邮件通知。
// 通知以 OutboxMessage 形式落库，由 outbox 中继异步投递，
// 触发方（调度器、报告流水线）不感知消息队列的可用性。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assessment-go/internal/config"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"gorm.io/gorm"
)

// Notifier 写入通知发件箱
type Notifier struct {
	db  *gorm.DB
	cfg *config.RabbitMQConfig
}

// NewNotifier 创建通知器
func NewNotifier(db *gorm.DB, cfg *config.RabbitMQConfig) *Notifier {
	return &Notifier{db: db, cfg: cfg}
}

// enqueue 序列化通知并写入 outbox 表
func (n *Notifier) enqueue(ctx context.Context, aggregateID string, notification *storage.EmailNotification) error {
	notification.CreatedAt = time.Now()

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	msg := &models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        "notification.email",
		Payload:          string(payload),
		TargetExchange:   n.cfg.NotificationExchange,
		TargetRoutingKey: n.cfg.NotificationRoutingKey,
		Status:           "PENDING",
	}

	if err := n.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入通知发件箱失败: %w", err)
	}
	return nil
}

// SendReminder 发送测评开始前的提醒邮件
func (n *Notifier) SendReminder(ctx context.Context, job *models.ScheduledJob) error {
	return n.enqueue(ctx, job.JobID, &storage.EmailNotification{
		NotificationType: storage.NotificationReminder,
		Recipient:        job.CandidateEmail,
		Subject:          fmt.Sprintf("测评提醒: %s", job.PositionTitle),
		Body: fmt.Sprintf("您好 %s，您预约的技能测评将于 %s 开始，请提前准备好麦克风与摄像头。",
			job.CandidateName, job.ScheduledAt.Format("2006-01-02 15:04")),
		JobID: job.JobID,
	})
}

// SendActivated 任务激活后通知候选人测评已就绪
func (n *Notifier) SendActivated(ctx context.Context, job *models.ScheduledJob, sessionID string) error {
	return n.enqueue(ctx, job.JobID, &storage.EmailNotification{
		NotificationType: storage.NotificationJobActivated,
		Recipient:        job.CandidateEmail,
		Subject:          fmt.Sprintf("测评已就绪: %s", job.PositionTitle),
		Body: fmt.Sprintf("您好 %s，您的技能测评已就绪，请使用访问链接在 %s 前完成测评。",
			job.CandidateName, job.ExpiresAt.Format("2006-01-02 15:04")),
		JobID:     job.JobID,
		SessionID: sessionID,
	})
}

// SendActivationFailed 激活失败时通知候选人
func (n *Notifier) SendActivationFailed(ctx context.Context, job *models.ScheduledJob) error {
	return n.enqueue(ctx, job.JobID, &storage.EmailNotification{
		NotificationType: storage.NotificationActivationFail,
		Recipient:        job.CandidateEmail,
		Subject:          "测评准备失败",
		Body: fmt.Sprintf("您好 %s，很抱歉，您预约的技能测评准备过程中出现问题，我们会尽快与您联系重新安排。",
			job.CandidateName),
		JobID: job.JobID,
	})
}

// SendReportReady 报告生成完成后向HR发送带签名URL的通知
func (n *Notifier) SendReportReady(ctx context.Context, hrEmail, sessionID, candidateName, signedURL string, urlExpiry time.Time) error {
	return n.enqueue(ctx, sessionID, &storage.EmailNotification{
		NotificationType: storage.NotificationReportReady,
		Recipient:        hrEmail,
		Subject:          fmt.Sprintf("测评报告已生成: %s", candidateName),
		Body: fmt.Sprintf("候选人 %s 的测评报告已生成，下载链接 %s 之前有效。",
			candidateName, urlExpiry.Format("2006-01-02 15:04")),
		SessionID:       sessionID,
		ReportURL:       signedURL,
		ReportURLExpiry: urlExpiry.Unix(),
	})
}

// SendReportFailed 报告生成失败后通知HR
func (n *Notifier) SendReportFailed(ctx context.Context, hrEmail, sessionID, candidateName, reason string) error {
	return n.enqueue(ctx, sessionID, &storage.EmailNotification{
		NotificationType: storage.NotificationReportFailed,
		Recipient:        hrEmail,
		Subject:          fmt.Sprintf("测评报告生成失败: %s", candidateName),
		Body:             fmt.Sprintf("候选人 %s 的测评报告生成失败: %s。系统会在下次请求时重试。", candidateName, reason),
		SessionID:        sessionID,
	})
}
