// Package session 实现候选人侧的测评会话生命周期：
// 令牌校验、MCQ作答、语音答案提交、录制上传与两段式完成。
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/logger"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Activator 由调度器实现，用于候选人先于调度器扫描进入时的即时激活
type Activator interface {
	// ActivateJob 激活一个已预定且到达有效窗口的任务，返回创建的会话ID
	ActivateJob(ctx context.Context, job *models.ScheduledJob) (string, error)
}

// ReportStarter 触发会话报告生成，由报告流水线实现
type ReportStarter interface {
	Request(ctx context.Context, sessionID string) error
}

// Service 测评会话服务
type Service struct {
	store      *storage.Storage
	hub        *pipeline.CompletionHub
	answers    *pipeline.AnswerProcessor
	recordings *pipeline.RecordingProcessor
	aggregator *pipeline.Aggregator
	reports    ReportStarter
	activator  Activator
	tracer     trace.Tracer
}

// NewService 创建会话服务
func NewService(store *storage.Storage, hub *pipeline.CompletionHub, answers *pipeline.AnswerProcessor, recordings *pipeline.RecordingProcessor, aggregator *pipeline.Aggregator, reports ReportStarter, activator Activator) *Service {
	return &Service{
		store:      store,
		hub:        hub,
		answers:    answers,
		recordings: recordings,
		aggregator: aggregator,
		reports:    reports,
		activator:  activator,
		tracer:     otel.Tracer("assessment-go/session"),
	}
}

// TokenValidation 令牌校验结果
type TokenValidation struct {
	JobID         string     `json:"job_id"`
	CandidateName string     `json:"candidate_name"`
	PositionTitle string     `json:"position_title"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Status        string     `json:"status"`
	SessionID     *string    `json:"session_id,omitempty"`
	NotYetDue     bool       `json:"not_yet_due"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
}

// ValidateToken 校验访问令牌并返回任务当前状态。
// 只读操作，不触发激活。
func (s *Service) ValidateToken(ctx context.Context, token string) (*TokenValidation, error) {
	job, err := s.jobByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &TokenValidation{
		JobID:         job.JobID,
		CandidateName: job.CandidateName,
		PositionTitle: job.PositionTitle,
		ScheduledAt:   job.ScheduledAt,
		ExpiresAt:     job.ExpiresAt,
		Status:        job.Status,
		SessionID:     job.SessionID,
		NotYetDue:     job.Status == constants.JobStatusScheduled && time.Now().Before(job.ScheduledAt),
		ActivatedAt:   job.ActivatedAt,
	}, nil
}

// StartSession 候选人通过令牌进入测评。
// 任务已激活则复用既有会话；尚未激活但已到有效窗口则即时激活，
// 不等调度器的下一轮扫描。
func (s *Service) StartSession(ctx context.Context, token string) (*models.AssessmentSession, error) {
	ctx, span := s.tracer.Start(ctx, "Session.Start")
	defer span.End()

	job, err := s.jobByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("job.id", job.JobID))

	var sessionID string
	switch job.Status {
	case constants.JobStatusActive:
		if job.SessionID == nil {
			return nil, invalidErr("任务已激活但尚未关联会话，请稍后重试")
		}
		sessionID = *job.SessionID
	case constants.JobStatusScheduled:
		now := time.Now()
		if now.Before(job.ScheduledAt) {
			return nil, NewCodedError(CodeNotReady, "测评尚未开始，预定时间 %s", job.ScheduledAt.Format("2006-01-02 15:04"))
		}
		sessionID, err = s.activator.ActivateJob(ctx, job)
		if err != nil {
			// 调度器可能恰好同时激活，重读任务拿会话
			fresh, readErr := s.store.MySQL.GetJobByID(ctx, job.JobID)
			if readErr == nil && fresh.Status == constants.JobStatusActive && fresh.SessionID != nil {
				sessionID = *fresh.SessionID
			} else {
				return nil, fmt.Errorf("激活测评任务失败: %w", err)
			}
		}
	default:
		return nil, invalidErr("任务状态 %s 不允许进入测评", job.Status)
	}

	if err := s.store.MySQL.ClaimSessionStart(ctx, sessionID, time.Now()); err != nil &&
		!errors.Is(err, storage.ErrStateConflict) {
		return nil, err
	}

	sess, err := s.store.MySQL.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if sess.Status == constants.SessionStatusExpired {
		return nil, expiredErr("会话已过期")
	}

	logger.Info().
		Str("job_id", job.JobID).
		Str("session_id", sessionID).
		Msg("候选人进入测评会话")
	return sess, nil
}

// SessionView 会话对候选人可见的视图，选择题不含正确答案
type SessionView struct {
	SessionID      string                 `json:"session_id"`
	CandidateName  string                 `json:"candidate_name"`
	PositionTitle  string                 `json:"position_title"`
	Phase          string                 `json:"phase"`
	Status         string                 `json:"status"`
	MCQQuestions   []CandidateMCQ         `json:"mcq_questions,omitempty"`
	VoiceQuestions []models.VoiceQuestion `json:"voice_questions,omitempty"`
}

// CandidateMCQ 去除正确答案的选择题视图
type CandidateMCQ struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	UserAnswer string   `json:"user_answer,omitempty"`
}

// GetSessionView 返回候选人视角的会话状态与题目
func (s *Service) GetSessionView(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		SessionID:     sess.SessionID,
		CandidateName: sess.CandidateName,
		PositionTitle: sess.PositionTitle,
		Phase:         sess.Phase,
		Status:        sess.Status,
	}

	mcqs, err := models.MCQQuestionsFromJSON(sess.MCQQuestions)
	if err != nil {
		return nil, fmt.Errorf("解析选择题快照失败: %w", err)
	}
	for _, q := range mcqs {
		view.MCQQuestions = append(view.MCQQuestions, CandidateMCQ{
			ID:         q.ID,
			Question:   q.Question,
			Options:    q.Options,
			UserAnswer: q.UserAnswer,
		})
	}

	if sess.Phase != constants.PhaseMCQ {
		voice, err := models.VoiceQuestionsFromJSON(sess.VoiceQuestions)
		if err != nil {
			return nil, fmt.Errorf("解析语音题快照失败: %w", err)
		}
		view.VoiceQuestions = voice
	}
	return view, nil
}

// UpdateMCQAnswer 记录一道选择题的作答，可重复修改直至MCQ阶段结束
func (s *Service) UpdateMCQAnswer(ctx context.Context, sessionID, questionID, answer string) error {
	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != constants.SessionStatusInProgress || sess.Phase != constants.PhaseMCQ {
		return conflictErr("当前阶段不允许修改选择题作答")
	}

	questions, err := models.MCQQuestionsFromJSON(sess.MCQQuestions)
	if err != nil {
		return fmt.Errorf("解析选择题快照失败: %w", err)
	}
	found := false
	for i := range questions {
		if questions[i].ID == questionID {
			questions[i].UserAnswer = answer
			found = true
			break
		}
	}
	if !found {
		return validationErr("题目 %s 不存在", questionID)
	}

	data, err := models.MCQQuestionsToJSON(questions)
	if err != nil {
		return err
	}
	if err := s.store.MySQL.UpdateMCQAnswers(ctx, sessionID, data); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return conflictErr("会话状态已变化，作答未保存")
		}
		return err
	}
	return nil
}

// MCQCompletion MCQ阶段完成结果
type MCQCompletion struct {
	MCQScore       float64                `json:"mcq_score"`
	CorrectCount   int                    `json:"correct_count"`
	TotalQuestions int                    `json:"total_questions"`
	VoiceQuestions []models.VoiceQuestion `json:"voice_questions"`
}

// CompleteMCQ 结束MCQ阶段：判分、建立成绩记录并推进到语音阶段。
// 并发调用只有一个能抢到completing，其余收到冲突错误。
func (s *Service) CompleteMCQ(ctx context.Context, sessionID string) (*MCQCompletion, error) {
	ctx, span := s.tracer.Start(ctx, "Session.CompleteMCQ",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != constants.PhaseMCQ {
		return nil, conflictErr("会话已不在MCQ阶段")
	}

	if err := s.store.MySQL.BeginSessionCompletion(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return nil, conflictErr("会话正在完成中或状态不允许")
		}
		return nil, err
	}

	completion, err := s.finishMCQPhase(ctx, sess)
	if err != nil {
		// 回滚到in-progress，候选人可重试
		if revertErr := s.store.MySQL.RevertSessionCompletion(ctx, sessionID); revertErr != nil {
			logger.Error().Err(revertErr).Str("session_id", sessionID).Msg("回滚MCQ完成状态失败")
		}
		return nil, err
	}

	span.SetAttributes(attribute.Float64("mcq.score", completion.MCQScore))
	logger.Info().
		Str("session_id", sessionID).
		Float64("mcq_score", completion.MCQScore).
		Int("correct", completion.CorrectCount).
		Msg("MCQ阶段完成，会话进入语音阶段")
	return completion, nil
}

// StartVoice 确认候选人进入语音阶段。
// 阶段推进在MCQ收尾时已完成，这里只做状态校验，重复调用无害。
func (s *Service) StartVoice(ctx context.Context, sessionID string) ([]models.VoiceQuestion, error) {
	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Phase {
	case constants.PhaseVoice:
		questions, err := models.VoiceQuestionsFromJSON(sess.VoiceQuestions)
		if err != nil {
			return nil, fmt.Errorf("解析语音题快照失败: %w", err)
		}
		return questions, nil
	case constants.PhaseMCQ:
		return nil, conflictErr("请先完成选择题阶段")
	default:
		return nil, conflictErr("会话已完成")
	}
}

func (s *Service) finishMCQPhase(ctx context.Context, sess *models.AssessmentSession) (*MCQCompletion, error) {
	questions, err := models.MCQQuestionsFromJSON(sess.MCQQuestions)
	if err != nil {
		return nil, fmt.Errorf("解析选择题快照失败: %w", err)
	}

	score, correct := ScoreMCQ(questions)

	resultID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成成绩ID失败: %w", err)
	}
	result := &models.TestResult{
		ResultID:         resultID.String(),
		SessionID:        sess.SessionID,
		CandidateEmail:   sess.CandidateEmail,
		JobDescriptionID: sess.JobDescriptionID,
		MCQScore:         &score,
		TotalQuestions:   len(questions),
		Status:           constants.ResultStatusPending,
	}
	if err := s.store.MySQL.CreateTestResult(ctx, result); err != nil {
		return nil, fmt.Errorf("创建成绩记录失败: %w", err)
	}
	// 同一候选人同一职位的历史pending成绩随新成绩建立而过期
	if expired, err := s.store.MySQL.ExpireOtherPendingResults(ctx,
		sess.CandidateEmail, sess.JobDescriptionID, result.ResultID); err != nil {
		logger.Warn().Err(err).Str("session_id", sess.SessionID).Msg("过期历史成绩记录失败")
	} else if expired > 0 {
		logger.Info().
			Str("session_id", sess.SessionID).
			Int64("expired", expired).
			Msg("已过期候选人历史pending成绩")
	}
	if err := s.store.MySQL.SetSessionTestResult(ctx, sess.SessionID, result.ResultID); err != nil {
		return nil, err
	}
	if err := s.store.MySQL.AdvanceSessionToVoice(ctx, sess.SessionID); err != nil {
		return nil, err
	}

	voice, err := models.VoiceQuestionsFromJSON(sess.VoiceQuestions)
	if err != nil {
		return nil, fmt.Errorf("解析语音题快照失败: %w", err)
	}
	return &MCQCompletion{
		MCQScore:       score,
		CorrectCount:   correct,
		TotalQuestions: len(questions),
		VoiceQuestions: voice,
	}, nil
}

// ScoreMCQ 按快照中的正确答案判分，返回百分制分数与答对题数。
// 答案比较忽略大小写和首尾空白。
func ScoreMCQ(questions []models.MCQQuestion) (float64, int) {
	if len(questions) == 0 {
		return 0, 0
	}
	correct := 0
	for _, q := range questions {
		if q.UserAnswer == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(q.UserAnswer), strings.TrimSpace(q.CorrectAnswer)) {
			correct++
		}
	}
	score := float64(correct) / float64(len(questions)) * 100
	return math.Min(100, math.Max(0, score)), correct
}

// MarkSkipped 将候选端放弃作答的答案置为终态。
// 跳过的答案不进评估流水线，整体与两条子状态都落skipped，invalid强制skipped
func MarkSkipped(answer *models.VoiceAnswer, skipReason string) {
	answer.Answered = false
	answer.Valid = false
	answer.SkipReason = skipReason
	answer.ProcessingStatus = constants.ProcessingSkipped
	answer.AudioStatus = constants.ProcessingSkipped
	answer.TextStatus = constants.ProcessingSkipped
}

// SubmitVoiceAnswer 提交一道语音题的音频答案。
// skipReason 非空表示候选端放弃作答（超时/上传失败），记录为预终态答案。
// 音频答案上传后在后台进入评估流水线。
func (s *Service) SubmitVoiceAnswer(ctx context.Context, sessionID, questionID string, audio []byte, skipReason string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "Session.SubmitVoiceAnswer",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("question.id", questionID)))
	defer span.End()

	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status != constants.SessionStatusInProgress || sess.Phase != constants.PhaseVoice {
		return "", conflictErr("当前阶段不允许提交语音答案")
	}

	questionText, err := s.voiceQuestionText(sess, questionID)
	if err != nil {
		return "", err
	}

	answerID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成答案ID失败: %w", err)
	}

	answer := &models.VoiceAnswer{
		AnswerID:     answerID.String(),
		SessionID:    sessionID,
		QuestionID:   questionID,
		QuestionText: questionText,
	}

	if skipReason != "" {
		if skipReason != constants.SkipReasonTimeout && skipReason != constants.SkipReasonUploadFailed {
			return "", validationErr("不支持的跳过原因 %s", skipReason)
		}
		MarkSkipped(answer, skipReason)
	} else {
		if len(audio) == 0 {
			return "", validationErr("音频内容为空")
		}
		audioKey := fmt.Sprintf("audio/answer_%d_%s.wav", time.Now().UnixMilli(), questionID)
		if _, err := s.store.MinIO.UploadMedia(ctx, audioKey, bytes.NewReader(audio), int64(len(audio)), "audio/wav"); err != nil {
			return "", fmt.Errorf("上传答案音频失败: %w", err)
		}
		answer.Answered = true
		answer.Valid = true
		answer.AudioKey = audioKey
		answer.ProcessingStatus = constants.ProcessingPending
		answer.AudioStatus = constants.ProcessingPending
		answer.TextStatus = constants.ProcessingPending
	}

	if err := s.store.MySQL.CreateVoiceAnswer(ctx, answer); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return "", conflictErr("题目 %s 已提交过答案", questionID)
		}
		return "", fmt.Errorf("创建语音答案失败: %w", err)
	}

	if skipReason == "" {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := s.answers.Process(bgCtx, answer.AnswerID); err != nil {
				logger.Error().Err(err).Str("answer_id", answer.AnswerID).Msg("答案评估流水线返回错误")
			}
		}()
	} else {
		// 跳过的答案创建即终态，同样触发一次重算并唤醒等待方
		if _, err := s.aggregator.Recompute(ctx, sessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("跳过答案后重算成绩失败")
		}
		s.hub.Notify(sessionID)
	}

	return answer.AnswerID, nil
}

func (s *Service) voiceQuestionText(sess *models.AssessmentSession, questionID string) (string, error) {
	voice, err := models.VoiceQuestionsFromJSON(sess.VoiceQuestions)
	if err != nil {
		return "", fmt.Errorf("解析语音题快照失败: %w", err)
	}
	for _, q := range voice {
		if q.ID == questionID {
			return q.Question, nil
		}
	}
	return "", validationErr("题目 %s 不存在", questionID)
}

// Recording kind 取值
const (
	RecordingKindCamera = "camera"
	RecordingKindScreen = "screen"
)

// UploadRecording 上传会话的摄像头或屏幕录像。
// 每个会话一条录制记录，摄像头录像到达后触发视频评估流水线。
func (s *Service) UploadRecording(ctx context.Context, sessionID, kind string, video []byte) (string, error) {
	ctx, span := s.tracer.Start(ctx, "Session.UploadRecording",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("recording.kind", kind)))
	defer span.End()

	if kind != RecordingKindCamera && kind != RecordingKindScreen {
		return "", validationErr("不支持的录像类型 %s", kind)
	}
	if len(video) == 0 {
		return "", validationErr("录像内容为空")
	}

	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	switch sess.Status {
	case constants.SessionStatusInProgress, constants.SessionStatusCompleting:
	default:
		return "", conflictErr("当前会话状态不允许上传录像")
	}

	recording, err := s.ensureRecording(ctx, sessionID)
	if err != nil {
		return "", err
	}

	objectKey := fmt.Sprintf("video/session_%s_%s_%d.webm", sessionID, kind, time.Now().UnixMilli())
	if _, err := s.store.MinIO.UploadMedia(ctx, objectKey, bytes.NewReader(video), int64(len(video)), "video/webm"); err != nil {
		return "", fmt.Errorf("上传录像失败: %w", err)
	}

	field := "camera_key"
	if kind == RecordingKindScreen {
		field = "screen_key"
	}
	if err := s.store.MySQL.UpdateRecordingFields(ctx, recording.RecordingID, map[string]interface{}{
		field: objectKey,
	}); err != nil {
		return "", err
	}

	if kind == RecordingKindCamera {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if err := s.recordings.Process(bgCtx, recording.RecordingID); err != nil {
				logger.Error().Err(err).Str("recording_id", recording.RecordingID).Msg("视频评估流水线返回错误")
			}
		}()
	}
	return recording.RecordingID, nil
}

func (s *Service) ensureRecording(ctx context.Context, sessionID string) (*models.Recording, error) {
	recording, err := s.store.MySQL.GetRecordingBySession(ctx, sessionID)
	if err == nil {
		return recording, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询录制记录失败: %w", err)
	}

	recordingID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成录制ID失败: %w", err)
	}
	now := time.Now()
	recording = &models.Recording{
		RecordingID: recordingID.String(),
		SessionID:   sessionID,
		VideoStatus: constants.ProcessingPending,
		StartedAt:   &now,
	}
	if err := s.store.MySQL.CreateRecording(ctx, recording); err != nil {
		// 并发创建时唯一索引兜底，重查既有记录
		if existing, qErr := s.store.MySQL.GetRecordingBySession(ctx, sessionID); qErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("创建录制记录失败: %w", err)
	}
	if err := s.store.MySQL.SetSessionRecording(ctx, sessionID, recording.RecordingID); err != nil {
		return nil, err
	}
	return recording, nil
}

// CompleteVoice 结束语音阶段，会话进入终态completed。
// 评估流水线可以继续在后台运行，报告生成自行等待其收敛。
func (s *Service) CompleteVoice(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "Session.CompleteVoice",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Phase != constants.PhaseVoice {
		return conflictErr("会话不在语音阶段")
	}

	if err := s.store.MySQL.BeginSessionCompletion(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return conflictErr("会话正在完成中或状态不允许")
		}
		return err
	}

	if err := s.store.MySQL.FinalizeSessionCompletion(ctx, sessionID, time.Now()); err != nil {
		if revertErr := s.store.MySQL.RevertSessionCompletion(ctx, sessionID); revertErr != nil {
			logger.Error().Err(revertErr).Str("session_id", sessionID).Msg("回滚语音完成状态失败")
		}
		return err
	}

	if sess.JobID != nil {
		if err := s.store.MySQL.MarkJobCompleted(ctx, *sess.JobID, time.Now()); err != nil &&
			!errors.Is(err, storage.ErrStateConflict) {
			logger.Warn().Err(err).Str("job_id", *sess.JobID).Msg("标记任务完成失败")
		}
	}

	s.hub.Notify(sessionID)

	// 完成后非阻塞触发成绩聚合和报告生成。
	// 此时部分评估流水线可能仍在运行，聚合产生的临时分数会被后续重算覆盖，
	// 报告流水线自行等待全部子流水线收敛。
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.aggregator.Recompute(bg, sessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("会话完成后重算成绩失败")
		}
		if s.reports != nil {
			if err := s.reports.Request(bg, sessionID); err != nil {
				logger.Warn().Err(err).Str("session_id", sessionID).Msg("会话完成后触发报告生成失败")
			}
		}
	}()

	logger.Info().Str("session_id", sessionID).Msg("测评会话完成")
	return nil
}

func (s *Service) jobByToken(ctx context.Context, token string) (*models.ScheduledJob, error) {
	if token == "" {
		return nil, invalidErr("缺少访问令牌")
	}
	job, err := s.store.MySQL.GetJobByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidErr("访问令牌无效")
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	switch job.Status {
	case constants.JobStatusExpired:
		return nil, expiredErr("测评链接已过期")
	case constants.JobStatusCancelled:
		return nil, invalidErr("测评已取消")
	case constants.JobStatusFailed:
		return nil, invalidErr("测评激活失败，请联系HR重新安排")
	}
	// 尚未被调度器扫到的超窗任务
	if time.Now().After(job.ExpiresAt) && job.Status != constants.JobStatusCompleted {
		return nil, expiredErr("测评链接已过期")
	}
	return job, nil
}

func (s *Service) sessionByID(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	if sessionID == "" {
		return nil, invalidErr("缺少会话ID")
	}
	sess, err := s.store.MySQL.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidErr("会话不存在")
		}
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	if sess.Status == constants.SessionStatusExpired {
		return nil, expiredErr("会话已过期")
	}
	return sess, nil
}
