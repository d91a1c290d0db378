package storage

import (
	"assessment-go/internal/constants"
	"assessment-go/internal/storage/models"
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// CreateVoiceAnswer 创建语音答案记录。
// (session_id, question_id) 唯一索引拦截同一题目的重复提交。
func (m *MySQL) CreateVoiceAnswer(ctx context.Context, answer *models.VoiceAnswer) error {
	if err := m.db.WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("创建语音答案失败: %w", err)
	}
	return nil
}

// GetVoiceAnswer 根据AnswerID查询答案
func (m *MySQL) GetVoiceAnswer(ctx context.Context, answerID string) (*models.VoiceAnswer, error) {
	var answer models.VoiceAnswer
	if err := m.db.WithContext(ctx).Where("answer_id = ?", answerID).First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// AnswersBySession 查询会话的全部语音答案，按创建时间排序
func (m *MySQL) AnswersBySession(ctx context.Context, sessionID string) ([]models.VoiceAnswer, error) {
	var answers []models.VoiceAnswer
	err := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话答案失败: %w", err)
	}
	return answers, nil
}

// ClaimAnswerProcessing 答案评估抢占: pending -> processing。
// 抢占失败说明另一个评估流程已在处理该答案。
func (m *MySQL) ClaimAnswerProcessing(ctx context.Context, answerID string) error {
	result := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("answer_id = ? AND processing_status = ?", answerID, constants.ProcessingPending).
		Update("processing_status", constants.ProcessingInProgress)
	if result.Error != nil {
		return fmt.Errorf("抢占答案评估失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetAnswerProcessingStatus 更新答案整体处理状态与原因
func (m *MySQL) SetAnswerProcessingStatus(ctx context.Context, answerID, status, reason string) error {
	result := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("answer_id = ?", answerID).
		Updates(map[string]interface{}{
			"processing_status": status,
			"processing_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("更新答案处理状态失败: %w", result.Error)
	}
	return nil
}

// SetAnswerTranscript 写入转写结果与有效性判定
func (m *MySQL) SetAnswerTranscript(ctx context.Context, answerID string, fields map[string]interface{}) error {
	result := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("answer_id = ?", answerID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("写入转写结果失败: %w", result.Error)
	}
	return nil
}

// SetAnswerAudioResult 写入音频评分子流水线结果
func (m *MySQL) SetAnswerAudioResult(ctx context.Context, answerID, status string, grading datatypes.JSON, reason string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("answer_id = ?", answerID).
		Updates(map[string]interface{}{
			"audio_status":       status,
			"audio_grading":      grading,
			"audio_reason":       reason,
			"audio_processed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("写入音频评分结果失败: %w", result.Error)
	}
	return nil
}

// SetAnswerTextResult 写入文本评估子流水线结果
func (m *MySQL) SetAnswerTextResult(ctx context.Context, answerID, status string, metrics datatypes.JSON, reason string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("answer_id = ?", answerID).
		Updates(map[string]interface{}{
			"text_status":       status,
			"text_metrics":      metrics,
			"text_reason":       reason,
			"text_processed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("写入文本评估结果失败: %w", result.Error)
	}
	return nil
}

// CountUnsettledAnswers 统计会话中尚未进入终态的答案数量。
// 终态为 completed/failed/skipped，计数为零时才允许分数聚合。
func (m *MySQL) CountUnsettledAnswers(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.VoiceAnswer{}).
		Where("session_id = ? AND processing_status NOT IN ?", sessionID,
			[]string{constants.ProcessingCompleted, constants.ProcessingFailed, constants.ProcessingSkipped}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计未完成答案失败: %w", err)
	}
	return count, nil
}
