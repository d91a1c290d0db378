package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/logger"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	gofrsuuid "github.com/gofrs/uuid/v5"
	googleuuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleRequest 预约测评请求
type ScheduleRequest struct {
	CandidateName    string    `json:"candidate_name"`
	CandidateEmail   string    `json:"candidate_email"`
	PositionTitle    string    `json:"position_title"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	ResumeID         string    `json:"resume_id"`
	JobDescriptionID string    `json:"job_description_id"`
}

// Validate 校验预约请求
func (r *ScheduleRequest) Validate() error {
	if strings.TrimSpace(r.CandidateName) == "" {
		return fmt.Errorf("候选人姓名不能为空")
	}
	if strings.TrimSpace(r.CandidateEmail) == "" || !strings.Contains(r.CandidateEmail, "@") {
		return fmt.Errorf("候选人邮箱无效")
	}
	if r.ScheduledAt.IsZero() {
		return fmt.Errorf("预定时间不能为空")
	}
	if r.ResumeID == "" || r.JobDescriptionID == "" {
		return fmt.Errorf("必须关联简历与职位描述")
	}
	return nil
}

// ScheduleJob 预约一次测评。
// 访问令牌随任务生成，有效窗口固定为预定时间起48小时。
func (s *Scheduler) ScheduleJob(ctx context.Context, req *ScheduleRequest) (*models.ScheduledJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// 预定时间允许是过去（立即开始的测评），但不能已超出有效窗口
	now := s.clock.Now()
	expiresAt := req.ScheduledAt.Add(constants.JobValidityWindow)
	if expiresAt.Before(now) {
		return nil, fmt.Errorf("预定时间过早，有效窗口已过")
	}

	// 两份材料必须已存在
	if _, err := s.store.MySQL.GetArtifactByID(ctx, req.ResumeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("简历 %s 不存在", req.ResumeID)
		}
		return nil, err
	}
	if _, err := s.store.MySQL.GetArtifactByID(ctx, req.JobDescriptionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("职位描述 %s 不存在", req.JobDescriptionID)
		}
		return nil, err
	}

	jobUUID, err := gofrsuuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成任务ID失败: %w", err)
	}
	job := &models.ScheduledJob{
		JobID:            jobUUID.String(),
		CandidateName:    strings.TrimSpace(req.CandidateName),
		CandidateEmail:   strings.TrimSpace(req.CandidateEmail),
		PositionTitle:    strings.TrimSpace(req.PositionTitle),
		ScheduledAt:      req.ScheduledAt,
		ExpiresAt:        expiresAt,
		Status:           constants.JobStatusScheduled,
		AccessToken:      googleuuid.NewString(),
		ResumeID:         &req.ResumeID,
		JobDescriptionID: &req.JobDescriptionID,
	}
	if err := s.store.MySQL.CreateScheduledJob(ctx, job); err != nil {
		return nil, fmt.Errorf("创建预约任务失败: %w", err)
	}

	logger.Info().
		Str("job_id", job.JobID).
		Str("candidate_email", job.CandidateEmail).
		Time("scheduled_at", job.ScheduledAt).
		Msg("测评任务已预约")
	return job, nil
}

// CancelJob 取消尚未完结的任务
func (s *Scheduler) CancelJob(ctx context.Context, jobID string) error {
	if err := s.store.MySQL.CancelJob(ctx, jobID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return fmt.Errorf("任务已完结，无法取消")
		}
		return err
	}
	logger.Info().Str("job_id", jobID).Msg("测评任务已取消")
	return nil
}

// ListJobs 按候选人邮箱列出任务，按预定时间倒序
func (s *Scheduler) ListJobs(ctx context.Context, email string) ([]models.ScheduledJob, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("邮箱不能为空")
	}
	return s.store.MySQL.ListJobsByEmail(ctx, email)
}

// GetJob 查询单个任务
func (s *Scheduler) GetJob(ctx context.Context, jobID string) (*models.ScheduledJob, error) {
	job, err := s.store.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("任务 %s 不存在", jobID)
		}
		return nil, err
	}
	return job, nil
}
