package storage

import "time"

// 通知消息类型
const (
	NotificationReminder       = "assessment_reminder"
	NotificationReportReady    = "report_ready"
	NotificationReportFailed   = "report_failed"
	NotificationJobActivated   = "assessment_activated"
	NotificationActivationFail = "activation_failed"
)

// EmailNotification 投递到通知队列的邮件消息
type EmailNotification struct {
	NotificationType string    `json:"notification_type"` // 通知类型
	Recipient        string    `json:"recipient"`         // 收件人邮箱
	Subject          string    `json:"subject"`           // 邮件主题
	Body             string    `json:"body"`              // 正文
	CreatedAt        time.Time `json:"created_at"`        // 消息创建时间

	// 业务关联字段
	JobID     string `json:"job_id,omitempty"`     // 关联的预约任务
	SessionID string `json:"session_id,omitempty"` // 关联的测评会话

	// 报告相关字段
	ReportURL       string `json:"report_url,omitempty"`        // 报告签名下载URL
	ReportURLExpiry int64  `json:"report_url_expiry,omitempty"` // URL过期的Unix时间戳
}
