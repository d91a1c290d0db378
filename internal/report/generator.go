// Package report 实现测评报告的门控生成：
// 等待评估子流水线收敛、聚合分数、渲染产物并通知HR。
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/logger"
	"assessment-go/internal/notify"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"
	"assessment-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Generator 报告生成器
type Generator struct {
	store      *storage.Storage
	hub        *pipeline.CompletionHub
	aggregator *pipeline.Aggregator
	notifier   *notify.Notifier
	renderer   Renderer

	hrEmail      string
	waitAttempts int
	waitInterval time.Duration

	tracer trace.Tracer
}

// NewGenerator 创建报告生成器
func NewGenerator(store *storage.Storage, hub *pipeline.CompletionHub, aggregator *pipeline.Aggregator, notifier *notify.Notifier, renderer Renderer, hrEmail string, waitAttempts int, waitInterval time.Duration) *Generator {
	if renderer == nil {
		renderer = NewHTMLRenderer()
	}
	if waitAttempts <= 0 {
		waitAttempts = constants.ReportWaitMaxAttempts
	}
	if waitInterval <= 0 {
		waitInterval = constants.ReportWaitPollInterval
	}
	return &Generator{
		store:        store,
		hub:          hub,
		aggregator:   aggregator,
		notifier:     notifier,
		renderer:     renderer,
		hrEmail:      hrEmail,
		waitAttempts: waitAttempts,
		waitInterval: waitInterval,
		tracer:       otel.Tracer("assessment-go/report"),
	}
}

// ErrReportInProgress 报告已在处理中或已完成
var ErrReportInProgress = errors.New("报告已在处理中或已完成")

// Request 请求为已完成会话生成报告。
// 抢到处理权后生成在后台执行，调用方立即返回。
// 失败的报告可以重新请求。
func (g *Generator) Request(ctx context.Context, sessionID string) error {
	sess, err := g.store.MySQL.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("会话 %s 不存在", sessionID)
		}
		return err
	}
	if sess.Status != constants.SessionStatusCompleted {
		return fmt.Errorf("会话尚未完成，无法生成报告")
	}

	if err := g.store.MySQL.ClaimReportProcessing(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return ErrReportInProgress
		}
		return err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := g.generate(bgCtx, sess); err != nil {
			logger.Error().Err(err).Str("session_id", sessionID).Msg("报告生成失败")
		}
	}()
	return nil
}

// generate 完整的报告生成流程，前提是已抢到processing
func (g *Generator) generate(ctx context.Context, sess *models.AssessmentSession) error {
	ctx, span := g.tracer.Start(ctx, "Report.Generate",
		trace.WithAttributes(attribute.String("session.id", sess.SessionID)))
	defer span.End()

	err := g.run(ctx, sess)
	if err == nil {
		return nil
	}

	tracing.RecordError(span, err, tracing.ErrorTypeInternal)
	if dbErr := g.store.MySQL.SetReportFailed(ctx, sess.SessionID); dbErr != nil {
		logger.Error().Err(dbErr).Str("session_id", sess.SessionID).Msg("标记报告失败状态出错")
	}
	reason := tracing.FailureReason(err)
	if notifyErr := g.notifier.SendReportFailed(ctx, g.hrEmail, sess.SessionID, sess.CandidateName, reason); notifyErr != nil {
		logger.Error().Err(notifyErr).Str("session_id", sess.SessionID).Msg("写入报告失败通知出错")
	}
	return err
}

func (g *Generator) run(ctx context.Context, sess *models.AssessmentSession) error {
	if err := g.waitForPipelines(ctx, sess.SessionID); err != nil {
		return err
	}

	scores, err := g.aggregator.Recompute(ctx, sess.SessionID)
	if err != nil {
		return fmt.Errorf("聚合分数失败: %w", err)
	}

	data, err := g.collectReportData(ctx, sess, scores)
	if err != nil {
		return err
	}

	content, contentType, ext, err := g.renderer.Render(data)
	if err != nil {
		return fmt.Errorf("渲染报告失败: %w", err)
	}

	objectKey := fmt.Sprintf("reports/report_%s_%d%s", sess.SessionID, time.Now().UnixMilli(), ext)
	if _, err := g.store.MinIO.UploadReport(ctx, objectKey, content, contentType); err != nil {
		return fmt.Errorf("上传报告失败: %w", err)
	}

	reportUUID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("生成报告ID失败: %w", err)
	}
	report := &models.Report{
		ReportID:   reportUUID.String(),
		SessionID:  sess.SessionID,
		StorageKey: objectKey,
		Filename:   fmt.Sprintf("report_%s%s", sess.SessionID, ext),
	}
	if err := g.store.MySQL.CreateReport(ctx, report); err != nil {
		return fmt.Errorf("创建报告记录失败: %w", err)
	}

	if err := g.store.MySQL.SetReportCompleted(ctx, sess.SessionID, time.Now()); err != nil {
		return err
	}

	signedURL, err := g.store.MinIO.SignedReportURL(ctx, objectKey, constants.ReportURLExpiry)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.SessionID).Msg("生成报告签名URL失败")
	} else {
		urlExpiry := time.Now().Add(constants.ReportURLExpiry)
		if err := g.notifier.SendReportReady(ctx, g.hrEmail, sess.SessionID, sess.CandidateName, signedURL, urlExpiry); err != nil {
			logger.Error().Err(err).Str("session_id", sess.SessionID).Msg("写入报告就绪通知失败")
		}
	}

	logger.Info().
		Str("session_id", sess.SessionID).
		Str("report_id", report.ReportID).
		Str("storage_key", objectKey).
		Msg("报告生成完成")
	return nil
}

// waitForPipelines 等待会话所有评估子流水线进入终态。
// 优先靠完成信号唤醒，信号丢失时按固定间隔轮询兜底；
// 超出最大尝试次数返回超时错误，报告落failed等待下次重试。
func (g *Generator) waitForPipelines(ctx context.Context, sessionID string) error {
	ch, cancel := g.hub.Subscribe(sessionID)
	// 循环内会重订阅并覆盖cancel，延迟调用必须取最新值
	defer func() { cancel() }()

	for attempt := 0; attempt < g.waitAttempts; attempt++ {
		settled, err := g.pipelinesSettled(ctx, sessionID)
		if err != nil {
			return err
		}
		if settled {
			return nil
		}
		select {
		case <-ch:
			// 某条流水线刚收敛，重新订阅下一次信号
			cancel()
			ch, cancel = g.hub.Subscribe(sessionID)
		case <-time.After(g.waitInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Warn().
		Str("session_id", sessionID).
		Int("attempts", g.waitAttempts).
		Msg("等待评估流水线收敛超时")
	return fmt.Errorf("等待评估流水线收敛超时（%d次尝试后仍有未决子流水线）", g.waitAttempts)
}

// pipelinesSettled 检查答案与视频流水线是否全部到达终态
func (g *Generator) pipelinesSettled(ctx context.Context, sessionID string) (bool, error) {
	unsettled, err := g.store.MySQL.CountUnsettledAnswers(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("统计未决答案失败: %w", err)
	}
	if unsettled > 0 {
		return false, nil
	}

	recording, err := g.store.MySQL.GetRecordingBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 没有录像的会话不等视频流水线
			return true, nil
		}
		return false, fmt.Errorf("查询录制记录失败: %w", err)
	}
	switch recording.VideoStatus {
	case constants.ProcessingCompleted, constants.ProcessingFailed, constants.ProcessingSkipped:
		return true, nil
	}
	// 摄像头录像未上传过的记录不会进入流水线
	if recording.CameraKey == "" {
		return true, nil
	}
	return false, nil
}

// DownloadURL 为已生成的报告返回预签名下载URL
func (g *Generator) DownloadURL(ctx context.Context, sessionID string) (string, error) {
	sess, err := g.store.MySQL.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("会话 %s 不存在", sessionID)
		}
		return "", err
	}
	if sess.ReportStatus != constants.ReportStatusCompleted {
		return "", fmt.Errorf("报告尚未生成，当前状态 %s", sess.ReportStatus)
	}

	rpt, err := g.store.MySQL.GetLatestReportBySession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("查询报告记录失败: %w", err)
	}
	return g.store.MinIO.SignedReportURL(ctx, rpt.StorageKey, constants.ReportURLExpiry)
}

func (g *Generator) collectReportData(ctx context.Context, sess *models.AssessmentSession, scores *pipeline.ScoreComponents) (*Data, error) {
	answers, err := g.store.MySQL.AnswersBySession(ctx, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("查询语音答案失败: %w", err)
	}
	mcqs, err := models.MCQQuestionsFromJSON(sess.MCQQuestions)
	if err != nil {
		return nil, fmt.Errorf("解析选择题快照失败: %w", err)
	}

	data := &Data{
		SessionID:     sess.SessionID,
		CandidateName: sess.CandidateName,
		PositionTitle: sess.PositionTitle,
		CompletedAt:   sess.CompletedAt,
		Scores:        scores,
		MCQQuestions:  mcqs,
		GeneratedAt:   time.Now(),
	}
	for _, a := range answers {
		data.VoiceAnswers = append(data.VoiceAnswers, VoiceAnswerView{
			QuestionText: a.QuestionText,
			AnswerText:   a.AnswerText,
			Status:       a.ProcessingStatus,
			Valid:        a.Valid,
			SkipReason:   a.SkipReason,
			DurationSec:  a.DurationSec,
		})
	}
	return data, nil
}
