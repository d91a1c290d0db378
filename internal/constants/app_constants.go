package constants

import "time"

// ScheduledJob 状态
const (
	JobStatusScheduled = "scheduled"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusExpired   = "expired"
	JobStatusCancelled = "cancelled"
	JobStatusFailed    = "failed"
)

// AssessmentSession 状态与阶段
const (
	SessionStatusPending    = "pending"
	SessionStatusInProgress = "in-progress"
	SessionStatusCompleting = "completing"
	SessionStatusCompleted  = "completed"
	SessionStatusExpired    = "expired"

	PhaseMCQ       = "mcq"
	PhaseVoice     = "voice"
	PhaseCompleted = "completed"
)

// 报告状态
const (
	ReportStatusPending    = "pending"
	ReportStatusProcessing = "processing"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

// 子流水线状态（语音答案的整体状态与各子评估状态共用同一组取值）
const (
	ProcessingPending    = "pending"
	ProcessingInProgress = "processing"
	ProcessingCompleted  = "completed"
	ProcessingFailed     = "failed"
	ProcessingSkipped    = "skipped"
)

// TestResult 状态
const (
	ResultStatusPending   = "pending"
	ResultStatusCompleted = "completed"
	ResultStatusExpired   = "expired"
)

// 跳过原因
const (
	SkipReasonTimeout      = "timeout"
	SkipReasonUploadFailed = "upload_failed"
)

// 调度与时间窗口
const (
	// JobValidityWindow 任务从预定时间起的有效窗口，窗口外过期
	JobValidityWindow = 48 * time.Hour

	// SessionInactivityTTL 会话创建后未完成的有效时长
	SessionInactivityTTL = 24 * time.Hour

	// ReminderLeadWindow 提前提醒窗口：预定时间落在未来一小时内的任务发送提醒
	ReminderLeadWindow = time.Hour

	// DefaultSweepInterval 调度器默认扫描周期
	DefaultSweepInterval = 5 * time.Minute

	// DefaultReconcileInterval 分数对账扫描默认周期
	DefaultReconcileInterval = time.Hour

	// ReconcileGracePeriod 会话完成后多久仍无综合分才触发对账重算
	ReconcileGracePeriod = 30 * time.Minute
)

// 音频校验
const (
	// MinAudioBytes 小于该字节数的音频视为无效（过短）
	MinAudioBytes = 2000

	// SilenceRMSThreshold 归一化RMS低于该阈值视为静音
	SilenceRMSThreshold = 0.01

	// RMSWindowBytes RMS计算窗口：16bit PCM前一秒（44100个采样）
	RMSWindowBytes = 44100 * 2

	// SilentAnswerText 静音答案的占位转写文本
	SilentAnswerText = "[SILENT_AUDIO]"

	// AudioBytesPerSecond 估算音频时长用：16kHz 16bit 单声道
	AudioBytesPerSecond = 16000 * 2
)

// 分数权重
const (
	AudioWeight = 0.1
	TextWeight  = 0.8
	VideoWeight = 0.1

	MCQWeight   = 0.4
	VoiceWeight = 0.6

	// DefaultVideoScore 视频评估服务未返回分数时的缺省值
	DefaultVideoScore = 75.0
)

// 报告等待
const (
	ReportWaitMaxAttempts  = 30
	ReportWaitPollInterval = 2 * time.Second

	// ReportURLExpiry 报告签名URL有效期
	ReportURLExpiry = 7 * 24 * time.Hour
)

// FailureReasonMaxLen 持久化的失败原因最大长度
const FailureReasonMaxLen = 200
