package scheduler

import (
	"context"
	"fmt"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/logger"
	"assessment-go/internal/storage/models"
	"assessment-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActivateJob 激活一个到点任务：抢占状态、生成题目、创建会话并通知候选人。
// 题目生成等中途失败时任务退回 scheduled，由下一轮激活扫描重试，
// 不会留在 active 无题目的中间态。也被候选人入口在任务到点但调度器
// 未扫到时调用。
func (s *Scheduler) ActivateJob(ctx context.Context, job *models.ScheduledJob) (string, error) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.ActivateJob",
		trace.WithAttributes(attribute.String("job.id", job.JobID)))
	defer span.End()

	now := s.clock.Now()
	if err := s.store.MySQL.ClaimJobActivation(ctx, job.JobID, now); err != nil {
		return "", err
	}

	sessionID, err := s.buildSession(ctx, job)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		reason := tracing.FailureReason(err)
		if revertErr := s.store.MySQL.RevertJobActivation(ctx, job.JobID, reason); revertErr != nil {
			// 退不回去的任务只能落failed并通知HR
			logger.Error().Err(revertErr).Str("job_id", job.JobID).Msg("回退任务激活状态出错")
			if markErr := s.store.MySQL.MarkJobFailed(ctx, job.JobID, reason); markErr != nil {
				logger.Error().Err(markErr).Str("job_id", job.JobID).Msg("标记任务激活失败出错")
			}
			if notifyErr := s.notifier.SendActivationFailed(ctx, job); notifyErr != nil {
				logger.Error().Err(notifyErr).Str("job_id", job.JobID).Msg("写入激活失败通知出错")
			}
		}
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("任务激活失败，等待下一轮扫描重试")
		return "", err
	}

	if err := s.notifier.SendActivated(ctx, job, sessionID); err != nil {
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("写入激活通知失败")
	}

	logger.Info().
		Str("job_id", job.JobID).
		Str("session_id", sessionID).
		Msg("任务已激活，会话就绪")
	return sessionID, nil
}

// buildSession 生成题目并创建会话，返回会话ID
func (s *Scheduler) buildSession(ctx context.Context, job *models.ScheduledJob) (string, error) {
	// 此前的激活尝试已生成题目并建好会话时直接复用，题目快照冻结在会话上
	if job.QuestionsGenerated && job.SessionID != nil {
		return *job.SessionID, nil
	}

	mcqs, voice, err := s.generateQuestions(ctx, job)
	if err != nil {
		return "", err
	}
	if err := s.store.MySQL.MarkJobQuestionsGenerated(ctx, job.JobID); err != nil {
		return "", err
	}

	mcqJSON, err := models.MCQQuestionsToJSON(mcqs)
	if err != nil {
		return "", fmt.Errorf("序列化选择题快照失败: %w", err)
	}
	voiceJSON, err := models.VoiceQuestionsToJSON(voice)
	if err != nil {
		return "", fmt.Errorf("序列化语音题快照失败: %w", err)
	}

	sessionUUID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成会话ID失败: %w", err)
	}
	session := &models.AssessmentSession{
		SessionID:        sessionUUID.String(),
		JobID:            &job.JobID,
		CandidateName:    job.CandidateName,
		CandidateEmail:   job.CandidateEmail,
		PositionTitle:    job.PositionTitle,
		Phase:            constants.PhaseMCQ,
		Status:           constants.SessionStatusPending,
		ReportStatus:     constants.ReportStatusPending,
		MCQQuestions:     mcqJSON,
		VoiceQuestions:   voiceJSON,
		ResumeID:         job.ResumeID,
		JobDescriptionID: job.JobDescriptionID,
	}
	if err := s.store.MySQL.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("创建会话失败: %w", err)
	}
	if err := s.store.MySQL.LinkJobSession(ctx, job.JobID, session.SessionID); err != nil {
		return "", err
	}
	return session.SessionID, nil
}

// generateQuestions 调用生成服务，基于任务关联的简历与职位描述产出题目快照。
// 题目ID在此处分配，写入会话后冻结。
func (s *Scheduler) generateQuestions(ctx context.Context, job *models.ScheduledJob) ([]models.MCQQuestion, []models.VoiceQuestion, error) {
	if job.ResumeID == nil || job.JobDescriptionID == nil {
		return nil, nil, fmt.Errorf("任务 %s 缺少简历或职位描述", job.JobID)
	}

	resume, err := s.loadArtifact(ctx, *job.ResumeID)
	if err != nil {
		return nil, nil, err
	}
	jd, err := s.loadArtifact(ctx, *job.JobDescriptionID)
	if err != nil {
		return nil, nil, err
	}

	rawMCQs, err := s.questions.GenerateMCQ(ctx, resume.filename, resume.data, jd.filename, jd.data)
	if err != nil {
		return nil, nil, fmt.Errorf("生成选择题失败: %w", err)
	}
	rawVoice, err := s.questions.GenerateVoiceQuestions(ctx, jd.filename, jd.data)
	if err != nil {
		return nil, nil, fmt.Errorf("生成语音题失败: %w", err)
	}

	stamp := time.Now().UnixMilli()
	mcqs := make([]models.MCQQuestion, 0, len(rawMCQs))
	for i, q := range rawMCQs {
		mcqs = append(mcqs, models.MCQQuestion{
			ID:            fmt.Sprintf("q-%d-%d", stamp, i),
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.Answer,
		})
	}
	voice := make([]models.VoiceQuestion, 0, len(rawVoice))
	for i, q := range rawVoice {
		voice = append(voice, models.VoiceQuestion{
			ID:       fmt.Sprintf("v-%d-%d", stamp, i),
			Question: q.Question,
		})
	}
	return mcqs, voice, nil
}

type artifactContent struct {
	filename string
	data     []byte
}

func (s *Scheduler) loadArtifact(ctx context.Context, artifactID string) (*artifactContent, error) {
	artifact, err := s.store.MySQL.GetArtifactByID(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("查询材料 %s 失败: %w", artifactID, err)
	}
	data, err := s.store.MinIO.DownloadDocument(ctx, artifact.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("下载材料 %s 失败: %w", artifactID, err)
	}
	filename := artifact.OriginalFilename
	if filename == "" {
		filename = artifact.ArtifactID + ".pdf"
	}
	return &artifactContent{filename: filename, data: data}, nil
}
