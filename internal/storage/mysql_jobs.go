package storage

import (
	"assessment-go/internal/constants"
	"assessment-go/internal/storage/models"
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStateConflict 条件更新未命中任何行时返回，表示记录已被并发修改或状态不符
var ErrStateConflict = errors.New("记录状态不满足更新条件")

// CreateScheduledJob 创建预约任务记录
func (m *MySQL) CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) error {
	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("创建预约任务失败: %w", err)
	}
	return nil
}

// GetJobByID 根据JobID查询任务，未找到返回 gorm.ErrRecordNotFound
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobByToken 根据访问令牌查询任务
func (m *MySQL) GetJobByToken(ctx context.Context, token string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := m.db.WithContext(ctx).Where("access_token = ?", token).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// DueScheduledJobs 查询当前处于有效窗口内、待激活的任务。
// 边界: scheduled_at == now 视为到期，expires_at == now 仍视为有效。
func (m *MySQL) DueScheduledJobs(ctx context.Context, now time.Time) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := m.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND expires_at >= ?",
			constants.JobStatusScheduled, now, now).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询到期任务失败: %w", err)
	}
	return jobs, nil
}

// ClaimJobActivation 以条件更新方式抢占任务激活权。
// 只有仍处于 scheduled 状态的任务才能被抢占，抢占失败返回 ErrStateConflict。
func (m *MySQL) ClaimJobActivation(ctx context.Context, jobID string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND status = ?", jobID, constants.JobStatusScheduled).
		Updates(map[string]interface{}{
			"status":       constants.JobStatusActive,
			"activated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("激活任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// MarkJobQuestionsGenerated 标记任务题目已生成。
// 生成成功后才置位，重试时靠该标志跳过已生成的任务。
func (m *MySQL) MarkJobQuestionsGenerated(ctx context.Context, jobID string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND questions_generated = ?", jobID, false).
		Update("questions_generated", true)
	if result.Error != nil {
		return fmt.Errorf("标记题目已生成失败: %w", result.Error)
	}
	return nil
}

// LinkJobSession 关联任务与其测评会话
func (m *MySQL) LinkJobSession(ctx context.Context, jobID, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ?", jobID).
		Update("session_id", sessionID)
	if result.Error != nil {
		return fmt.Errorf("关联任务会话失败: %w", result.Error)
	}
	return nil
}

// RevertJobActivation 激活中途失败时将任务退回 scheduled，
// 留给下一轮激活扫描重试。仅 active 状态可退回。
func (m *MySQL) RevertJobActivation(ctx context.Context, jobID, reason string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND status = ?", jobID, constants.JobStatusActive).
		Updates(map[string]interface{}{
			"status":         constants.JobStatusScheduled,
			"activated_at":   nil,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("回退任务激活状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// MarkJobFailed 将任务置为失败并记录原因（原因已在调用侧截断）
func (m *MySQL) MarkJobFailed(ctx context.Context, jobID, reason string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":         constants.JobStatusFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("标记任务失败状态出错: %w", result.Error)
	}
	return nil
}

// MarkJobCompleted 任务完成，仅允许从 active 状态进入
func (m *MySQL) MarkJobCompleted(ctx context.Context, jobID string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND status = ?", jobID, constants.JobStatusActive).
		Updates(map[string]interface{}{
			"status":       constants.JobStatusCompleted,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("标记任务完成失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// CancelJob 取消任务，仅允许从 scheduled/active 状态进入
func (m *MySQL) CancelJob(ctx context.Context, jobID string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]string{constants.JobStatusScheduled, constants.JobStatusActive}).
		Update("status", constants.JobStatusCancelled)
	if result.Error != nil {
		return fmt.Errorf("取消任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExpireOverdueJobs 批量过期窗口外任务。严格小于: expires_at == now 的任务不过期。
// 返回受影响行数供调度器记录日志。
func (m *MySQL) ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error) {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("status IN ? AND expires_at < ?",
			[]string{constants.JobStatusScheduled, constants.JobStatusActive}, now).
		Update("status", constants.JobStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("批量过期任务失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// JobsNeedingReminder 查询需要发送提醒的任务:
// 仍处于 scheduled、预定时间落在 (now, now+lead] 之间且未发送过提醒
func (m *MySQL) JobsNeedingReminder(ctx context.Context, now time.Time, lead time.Duration) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := m.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ? AND scheduled_at > ? AND scheduled_at <= ?",
			constants.JobStatusScheduled, false, now, now.Add(lead)).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询待提醒任务失败: %w", err)
	}
	return jobs, nil
}

// MarkReminderSent 标记提醒已发送，条件更新保证至多发送一次
func (m *MySQL) MarkReminderSent(ctx context.Context, jobID string) error {
	result := m.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("job_id = ? AND reminder_sent = ?", jobID, false).
		Update("reminder_sent", true)
	if result.Error != nil {
		return fmt.Errorf("标记提醒已发送失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ListJobsByEmail 按候选人邮箱列出任务，调度接口查询用
func (m *MySQL) ListJobsByEmail(ctx context.Context, email string) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := m.db.WithContext(ctx).
		Where("candidate_email = ?", email).
		Order("scheduled_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("按邮箱查询任务失败: %w", err)
	}
	return jobs, nil
}
