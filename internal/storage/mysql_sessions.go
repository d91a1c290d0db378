package storage

import (
	"assessment-go/internal/constants"
	"assessment-go/internal/storage/models"
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// CreateSession 创建测评会话
func (m *MySQL) CreateSession(ctx context.Context, session *models.AssessmentSession) error {
	if err := m.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("创建测评会话失败: %w", err)
	}
	return nil
}

// GetSessionByID 根据SessionID查询会话，未找到返回 gorm.ErrRecordNotFound
func (m *MySQL) GetSessionByID(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimSessionStart 会话开始抢占: pending -> in-progress。
// 重复调用或会话已过期时返回 ErrStateConflict。
func (m *MySQL) ClaimSessionStart(ctx context.Context, sessionID string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.SessionStatusInProgress,
			"started_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("开始会话失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// UpdateMCQAnswers 覆盖写入选择题快照（含候选人作答），仅允许进行中的会话写入
func (m *MySQL) UpdateMCQAnswers(ctx context.Context, sessionID string, questions datatypes.JSON) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusInProgress).
		Update("mcq_questions", questions)
	if result.Error != nil {
		return fmt.Errorf("保存选择题作答失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// BeginSessionCompletion 完成抢占: in-progress -> completing。
// 该抢占是阶段收尾的唯一并发原语，保证每个阶段只收尾一次。
func (m *MySQL) BeginSessionCompletion(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusInProgress).
		Update("status", constants.SessionStatusCompleting)
	if result.Error != nil {
		return fmt.Errorf("进入收尾状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// AdvanceSessionToVoice 选择题阶段收尾后回到进行中并进入语音阶段
func (m *MySQL) AdvanceSessionToVoice(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusCompleting).
		Updates(map[string]interface{}{
			"status": constants.SessionStatusInProgress,
			"phase":  constants.PhaseVoice,
		})
	if result.Error != nil {
		return fmt.Errorf("进入语音阶段失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// RevertSessionCompletion 收尾失败回滚: completing -> in-progress，允许重试
func (m *MySQL) RevertSessionCompletion(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusCompleting).
		Update("status", constants.SessionStatusInProgress)
	if result.Error != nil {
		return fmt.Errorf("回滚收尾状态失败: %w", result.Error)
	}
	return nil
}

// FinalizeSessionCompletion 完成收尾: completing -> completed
func (m *MySQL) FinalizeSessionCompletion(ctx context.Context, sessionID string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusCompleting).
		Updates(map[string]interface{}{
			"status":       constants.SessionStatusCompleted,
			"phase":        constants.PhaseCompleted,
			"completed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("完成会话失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetSessionRecording 关联会话与其录制记录
func (m *MySQL) SetSessionRecording(ctx context.Context, sessionID, recordingID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ?", sessionID).
		Update("recording_id", recordingID)
	if result.Error != nil {
		return fmt.Errorf("关联录制记录失败: %w", result.Error)
	}
	return nil
}

// SetSessionTestResult 关联会话与其成绩记录
func (m *MySQL) SetSessionTestResult(ctx context.Context, sessionID, resultID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ?", sessionID).
		Update("test_result_id", resultID)
	if result.Error != nil {
		return fmt.Errorf("关联成绩记录失败: %w", result.Error)
	}
	return nil
}

// ExpireStaleSessions 批量过期长时间未完成的会话。
// 仅处理创建超过TTL且尚未进入终态的会话，返回被过期的会话ID列表以便级联处理。
func (m *MySQL) ExpireStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("status IN ? AND created_at < ?",
			[]string{constants.SessionStatusPending, constants.SessionStatusInProgress, constants.SessionStatusCompleting},
			cutoff).
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询过期会话失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id IN ? AND status IN ?", ids,
			[]string{constants.SessionStatusPending, constants.SessionStatusInProgress, constants.SessionStatusCompleting}).
		Update("status", constants.SessionStatusExpired)
	if result.Error != nil {
		return nil, fmt.Errorf("批量过期会话失败: %w", result.Error)
	}
	return ids, nil
}

// ClaimReportProcessing 报告生成抢占: pending|failed -> processing。
// 已在处理或已完成的会话抢占失败，保证同一会话的报告至多一个生成流程在跑。
func (m *MySQL) ClaimReportProcessing(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND report_status IN ?", sessionID,
			[]string{constants.ReportStatusPending, constants.ReportStatusFailed}).
		Update("report_status", constants.ReportStatusProcessing)
	if result.Error != nil {
		return fmt.Errorf("抢占报告生成失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetReportCompleted 报告生成完成: processing -> completed
func (m *MySQL) SetReportCompleted(ctx context.Context, sessionID string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND report_status = ?", sessionID, constants.ReportStatusProcessing).
		Updates(map[string]interface{}{
			"report_status":       constants.ReportStatusCompleted,
			"report_generated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("标记报告完成失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetReportFailed 报告生成失败: processing -> failed，后续允许重新抢占
func (m *MySQL) SetReportFailed(ctx context.Context, sessionID string) error {
	result := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("session_id = ? AND report_status = ?", sessionID, constants.ReportStatusProcessing).
		Update("report_status", constants.ReportStatusFailed)
	if result.Error != nil {
		return fmt.Errorf("标记报告失败状态出错: %w", result.Error)
	}
	return nil
}

// SessionsNeedingScoreReconcile 查询已完成但综合分仍为空的会话，供对账任务重算。
// 仅处理完成超过宽限期的会话，避免与正常聚合流程竞争。
func (m *MySQL) SessionsNeedingScoreReconcile(ctx context.Context, completedBefore time.Time) ([]models.AssessmentSession, error) {
	var sessions []models.AssessmentSession
	err := m.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Joins("JOIN test_results ON test_results.session_id = assessment_sessions.session_id").
		Where("assessment_sessions.status = ? AND assessment_sessions.completed_at < ? AND test_results.combined_score IS NULL",
			constants.SessionStatusCompleted, completedBefore).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("查询待对账会话失败: %w", err)
	}
	return sessions, nil
}
