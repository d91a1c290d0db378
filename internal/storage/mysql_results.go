package storage

import (
	"assessment-go/internal/constants"
	"assessment-go/internal/storage/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateTestResult 创建成绩记录，每个会话至多一条（唯一索引保证）
func (m *MySQL) CreateTestResult(ctx context.Context, result *models.TestResult) error {
	if err := m.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("创建成绩记录失败: %w", err)
	}
	return nil
}

// GetTestResultBySession 查询会话的成绩记录
func (m *MySQL) GetTestResultBySession(ctx context.Context, sessionID string) (*models.TestResult, error) {
	var result models.TestResult
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateResultScores 单条更新写入全部分量与综合分。
// 聚合器的输出是纯函数重算结果，同一输入重复写入结果一致，天然幂等。
func (m *MySQL) UpdateResultScores(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	result := m.db.WithContext(ctx).Model(&models.TestResult{}).
		Where("session_id = ?", sessionID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("写入成绩分数失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// ExpireSiblingResults 会话过期时级联过期其成绩记录
func (m *MySQL) ExpireSiblingResults(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	result := m.db.WithContext(ctx).Model(&models.TestResult{}).
		Where("session_id IN ? AND status <> ?", sessionIDs, constants.ResultStatusCompleted).
		Update("status", constants.ResultStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("级联过期成绩记录失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ExpireOtherPendingResults MCQ收尾时过期同一候选人同一职位下其余pending成绩，
// 保证每个候选人-职位组合只有一条活跃成绩记录
func (m *MySQL) ExpireOtherPendingResults(ctx context.Context, candidateEmail string, jobDescriptionID *string, exceptResultID string) (int64, error) {
	query := m.db.WithContext(ctx).Model(&models.TestResult{}).
		Where("candidate_email = ? AND status = ? AND result_id <> ?",
			candidateEmail, constants.ResultStatusPending, exceptResultID)
	if jobDescriptionID != nil {
		query = query.Where("job_description_id = ?", *jobDescriptionID)
	}
	result := query.Update("status", constants.ResultStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("过期历史成绩记录失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateRecording 创建录制记录，SessionID唯一索引保证每会话一条
func (m *MySQL) CreateRecording(ctx context.Context, recording *models.Recording) error {
	if err := m.db.WithContext(ctx).Create(recording).Error; err != nil {
		return fmt.Errorf("创建录制记录失败: %w", err)
	}
	return nil
}

// GetRecordingBySession 查询会话的录制记录
func (m *MySQL) GetRecordingBySession(ctx context.Context, sessionID string) (*models.Recording, error) {
	var recording models.Recording
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&recording).Error; err != nil {
		return nil, err
	}
	return &recording, nil
}

// GetRecordingByID 按主键查询录制记录
func (m *MySQL) GetRecordingByID(ctx context.Context, recordingID string) (*models.Recording, error) {
	var recording models.Recording
	if err := m.db.WithContext(ctx).Where("recording_id = ?", recordingID).First(&recording).Error; err != nil {
		return nil, err
	}
	return &recording, nil
}

// UpdateRecordingFields 更新录制记录字段（视频评估结果、存储键等）
func (m *MySQL) UpdateRecordingFields(ctx context.Context, recordingID string, fields map[string]interface{}) error {
	result := m.db.WithContext(ctx).Model(&models.Recording{}).
		Where("recording_id = ?", recordingID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("更新录制记录失败: %w", result.Error)
	}
	return nil
}

// ClaimVideoProcessing 视频评估抢占: pending -> processing
func (m *MySQL) ClaimVideoProcessing(ctx context.Context, recordingID string) error {
	result := m.db.WithContext(ctx).Model(&models.Recording{}).
		Where("recording_id = ? AND video_status = ?", recordingID, constants.ProcessingPending).
		Update("video_status", constants.ProcessingInProgress)
	if result.Error != nil {
		return fmt.Errorf("抢占视频评估失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetVideoResult 写入视频评估结果
func (m *MySQL) SetVideoResult(ctx context.Context, recordingID, status string, emotions datatypes.JSON, score *float64, videoErr string, now time.Time) error {
	result := m.db.WithContext(ctx).Model(&models.Recording{}).
		Where("recording_id = ?", recordingID).
		Updates(map[string]interface{}{
			"video_status":    status,
			"emotion_results": emotions,
			"video_score":     score,
			"video_error":     videoErr,
			"completed_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("写入视频评估结果失败: %w", result.Error)
	}
	return nil
}

// CreateReport 记录报告产物，创建后不再变更
func (m *MySQL) CreateReport(ctx context.Context, report *models.Report) error {
	if err := m.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("创建报告记录失败: %w", err)
	}
	return nil
}

// GetLatestReportBySession 查询会话最新生成的报告记录
func (m *MySQL) GetLatestReportBySession(ctx context.Context, sessionID string) (*models.Report, error) {
	var report models.Report
	err := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetArtifactByKindHash 按类型与内容哈希查询已登记的材料，去重命中判断用
func (m *MySQL) GetArtifactByKindHash(ctx context.Context, kind, contentHash string) (*models.Artifact, error) {
	var artifact models.Artifact
	err := m.db.WithContext(ctx).
		Where("kind = ? AND content_hash = ?", kind, contentHash).
		First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// FindOrCreateArtifact 按内容哈希查找或创建输入材料。
// 唯一索引约束下并发插入可能冲突，冲突后重新查询已有记录。
func (m *MySQL) FindOrCreateArtifact(ctx context.Context, artifact *models.Artifact) (*models.Artifact, bool, error) {
	var existing models.Artifact
	err := m.db.WithContext(ctx).
		Where("kind = ? AND content_hash = ?", artifact.Kind, artifact.ContentHash).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("查询输入材料失败: %w", err)
	}

	if err := m.db.WithContext(ctx).Create(artifact).Error; err != nil {
		// 并发插入撞唯一索引，回退为读取已存在的记录
		var raced models.Artifact
		if qerr := m.db.WithContext(ctx).
			Where("kind = ? AND content_hash = ?", artifact.Kind, artifact.ContentHash).
			First(&raced).Error; qerr == nil {
			return &raced, false, nil
		}
		return nil, false, fmt.Errorf("创建输入材料失败: %w", err)
	}
	return artifact, true, nil
}

// FindOrCreateMatchRequest 按配对哈希查找或创建配对请求，处理方式同 FindOrCreateArtifact
func (m *MySQL) FindOrCreateMatchRequest(ctx context.Context, request *models.MatchRequest) (*models.MatchRequest, bool, error) {
	var existing models.MatchRequest
	err := m.db.WithContext(ctx).
		Where("pair_hash = ?", request.PairHash).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("查询配对请求失败: %w", err)
	}

	if err := m.db.WithContext(ctx).Create(request).Error; err != nil {
		var raced models.MatchRequest
		if qerr := m.db.WithContext(ctx).
			Where("pair_hash = ?", request.PairHash).
			First(&raced).Error; qerr == nil {
			return &raced, false, nil
		}
		return nil, false, fmt.Errorf("创建配对请求失败: %w", err)
	}
	return request, true, nil
}

// GetArtifactByID 根据ArtifactID查询材料
func (m *MySQL) GetArtifactByID(ctx context.Context, artifactID string) (*models.Artifact, error) {
	var artifact models.Artifact
	if err := m.db.WithContext(ctx).Where("artifact_id = ?", artifactID).First(&artifact).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}
