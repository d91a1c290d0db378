package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/evalclient"
	"assessment-go/internal/logger"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"
	"assessment-go/internal/tracing"

	"gorm.io/datatypes"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnswerStore 答案流水线需要的持久化操作，由 storage.MySQL 实现
type AnswerStore interface {
	ClaimAnswerProcessing(ctx context.Context, answerID string) error
	GetVoiceAnswer(ctx context.Context, answerID string) (*models.VoiceAnswer, error)
	SetAnswerTranscript(ctx context.Context, answerID string, fields map[string]interface{}) error
	SetAnswerAudioResult(ctx context.Context, answerID, status string, grading datatypes.JSON, reason string, now time.Time) error
	SetAnswerTextResult(ctx context.Context, answerID, status string, metrics datatypes.JSON, reason string, now time.Time) error
	SetAnswerProcessingStatus(ctx context.Context, answerID, status, reason string) error
}

// MediaStore 流水线依赖的对象存储操作，由 storage.MinIO 实现
type MediaStore interface {
	DownloadMedia(ctx context.Context, objectKey string) ([]byte, error)
	UploadTranscript(ctx context.Context, objectKey string, text string) (string, error)
}

// ScoreRecomputer 终态落库后触发的成绩重算
type ScoreRecomputer interface {
	Recompute(ctx context.Context, sessionID string) (*ScoreComponents, error)
}

// AnswerProcessor 语音答案评估流水线：
// 抢占 -> 下载音频 -> 静音校验 -> 并行执行音频评分与转写+文本评估 -> 落库。
// 音频评分只依赖原始音频，转写失败不影响它产出；
// 单条答案的失败只影响该答案，不影响会话其他部分。
type AnswerProcessor struct {
	db          AnswerStore
	media       MediaStore
	transcriber evalclient.Transcriber
	textScorer  evalclient.TextScorer
	audioScorer evalclient.AudioScorer
	aggregator  ScoreRecomputer
	hub         *CompletionHub
	tracer      trace.Tracer
}

// NewAnswerProcessor 创建答案评估流水线
func NewAnswerProcessor(db AnswerStore, media MediaStore, transcriber evalclient.Transcriber, textScorer evalclient.TextScorer, audioScorer evalclient.AudioScorer, aggregator ScoreRecomputer, hub *CompletionHub) *AnswerProcessor {
	return &AnswerProcessor{
		db:          db,
		media:       media,
		transcriber: transcriber,
		textScorer:  textScorer,
		audioScorer: audioScorer,
		aggregator:  aggregator,
		hub:         hub,
		tracer:      otel.Tracer("assessment-go/pipeline/answer"),
	}
}

// Process 处理单条语音答案。
// 由提交接口在后台goroutine中触发，重复触发靠抢占失败去重。
func (p *AnswerProcessor) Process(ctx context.Context, answerID string) error {
	ctx, span := p.tracer.Start(ctx, "AnswerPipeline.Process",
		trace.WithAttributes(attribute.String("answer.id", answerID)))
	defer span.End()

	if err := p.db.ClaimAnswerProcessing(ctx, answerID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			logger.Debug().Str("answer_id", answerID).Msg("答案已被其他流程处理，跳过")
			return nil
		}
		return err
	}

	answer, err := p.db.GetVoiceAnswer(ctx, answerID)
	if err != nil {
		return fmt.Errorf("查询答案失败: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", answer.SessionID))

	// 无论本次落入哪个终态，都重算一次会话成绩并唤醒等待方。
	// 聚合是幂等重算，提前触发只会产生会被后续覆盖的临时分数。
	defer func() {
		if _, err := p.aggregator.Recompute(ctx, answer.SessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", answer.SessionID).Msg("答案落库后重算成绩失败")
		}
		p.hub.Notify(answer.SessionID)
	}()

	audio, err := p.media.DownloadMedia(ctx, answer.AudioKey)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return p.settleFailed(ctx, answer, fmt.Errorf("下载音频失败: %w", err))
	}

	validation := ValidateAudio(audio)
	if validation.Silent {
		return p.settleSilent(ctx, answer)
	}
	if !validation.Valid {
		return p.settleFailed(ctx, answer, fmt.Errorf("音频校验未通过: %s", validation.Reason))
	}

	// 音频评分只依赖原始音频，与转写及文本评估并行执行：
	// 转写失败只导致文本路径失败，音频分照常产出
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.runAudioScoring(ctx, answer, audio)
	}()
	go func() {
		defer wg.Done()
		p.runTranscription(ctx, span, answer, audio)
	}()
	wg.Wait()

	if err := p.db.SetAnswerProcessingStatus(ctx, answerID, constants.ProcessingCompleted, ""); err != nil {
		return err
	}

	logger.Info().
		Str("answer_id", answerID).
		Str("session_id", answer.SessionID).
		Msg("答案评估流水线完成")
	return nil
}

// runTranscription 执行转写及后续文本评估子流水线。
// 任一步失败只标记文本路径失败，不影响并行的音频评分。
func (p *AnswerProcessor) runTranscription(ctx context.Context, span trace.Span, answer *models.VoiceAnswer, audio []byte) {
	answerID := answer.AnswerID

	rawText, err := p.transcriber.Transcribe(ctx, fmt.Sprintf("answer_%s.wav", answerID), audio)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		logger.Warn().Err(err).Str("answer_id", answerID).Msg("转写失败")
		if dbErr := p.db.SetAnswerTextResult(ctx, answerID,
			constants.ProcessingFailed, nil, tracing.FailureReason(fmt.Errorf("转写失败: %w", err)), time.Now()); dbErr != nil {
			logger.Error().Err(dbErr).Str("answer_id", answerID).Msg("写入转写失败状态出错")
		}
		return
	}

	cleanedText := CleanTranscript(rawText)
	if cleanedText == "" {
		// 转写成功但没有可用内容：答案按静音占位，跳过文本评估，
		// 音频评分不受影响
		err := p.db.SetAnswerTranscript(ctx, answerID, map[string]interface{}{
			"answer_text": constants.SilentAnswerText,
			"valid":       false,
			"text_status": constants.ProcessingSkipped,
			"text_reason": "转写内容为空，跳过文本评估",
		})
		if err != nil {
			logger.Error().Err(err).Str("answer_id", answerID).Msg("写入空转写终态出错")
		}
		return
	}

	transcriptKey := fmt.Sprintf("transcripts/answer_%s.txt", answerID)
	if _, err := p.media.UploadTranscript(ctx, transcriptKey, cleanedText); err != nil {
		// 转写文本主要存在答案行里，对象存储失败只记日志
		logger.Warn().Err(err).Str("answer_id", answerID).Msg("上传转写文本失败")
		transcriptKey = ""
	}

	err = p.db.SetAnswerTranscript(ctx, answerID, map[string]interface{}{
		"answer_text":    cleanedText,
		"transcript_key": transcriptKey,
		"duration_sec":   EstimateDurationSec(len(audio)),
	})
	if err != nil {
		logger.Error().Err(err).Str("answer_id", answerID).Msg("写入转写结果出错")
		if dbErr := p.db.SetAnswerTextResult(ctx, answerID,
			constants.ProcessingFailed, nil, tracing.FailureReason(err), time.Now()); dbErr != nil {
			logger.Error().Err(dbErr).Str("answer_id", answerID).Msg("写入文本失败状态出错")
		}
		return
	}

	p.runTextScoring(ctx, answer, cleanedText)
}

// runAudioScoring 执行音频评分子流水线，结果只写本答案
func (p *AnswerProcessor) runAudioScoring(ctx context.Context, answer *models.VoiceAnswer, audio []byte) {
	grading, err := p.audioScorer.ScoreAudio(ctx, fmt.Sprintf("answer_%s.wav", answer.AnswerID), audio)
	now := time.Now()
	if err != nil {
		logger.Warn().Err(err).Str("answer_id", answer.AnswerID).Msg("音频评分失败")
		if dbErr := p.db.SetAnswerAudioResult(ctx, answer.AnswerID,
			constants.ProcessingFailed, nil, tracing.FailureReason(err), now); dbErr != nil {
			logger.Error().Err(dbErr).Str("answer_id", answer.AnswerID).Msg("写入音频评分失败状态出错")
		}
		return
	}

	gradingJSON, err := models.MapToJSON(grading.Raw)
	if err != nil {
		logger.Error().Err(err).Str("answer_id", answer.AnswerID).Msg("序列化音频评分结果失败")
		return
	}
	if err := p.db.SetAnswerAudioResult(ctx, answer.AnswerID,
		constants.ProcessingCompleted, gradingJSON, "", now); err != nil {
		logger.Error().Err(err).Str("answer_id", answer.AnswerID).Msg("写入音频评分结果出错")
	}
}

// runTextScoring 执行文本评估子流水线
func (p *AnswerProcessor) runTextScoring(ctx context.Context, answer *models.VoiceAnswer, answerText string) {
	metrics, err := p.textScorer.ScoreText(ctx, answer.QuestionText, answerText)
	now := time.Now()
	if err != nil {
		logger.Warn().Err(err).Str("answer_id", answer.AnswerID).Msg("文本评估失败")
		if dbErr := p.db.SetAnswerTextResult(ctx, answer.AnswerID,
			constants.ProcessingFailed, nil, tracing.FailureReason(err), now); dbErr != nil {
			logger.Error().Err(dbErr).Str("answer_id", answer.AnswerID).Msg("写入文本评估失败状态出错")
		}
		return
	}

	metricsJSON, err := models.MapToJSON(metrics.Raw)
	if err != nil {
		logger.Error().Err(err).Str("answer_id", answer.AnswerID).Msg("序列化文本评估结果失败")
		return
	}
	if err := p.db.SetAnswerTextResult(ctx, answer.AnswerID,
		constants.ProcessingCompleted, metricsJSON, "", now); err != nil {
		logger.Error().Err(err).Str("answer_id", answer.AnswerID).Msg("写入文本评估结果出错")
	}
}

// settleSilent 静音答案的终态处理：
// 整体completed，答案文本记占位符，音频评分completed，文本评估skipped。
func (p *AnswerProcessor) settleSilent(ctx context.Context, answer *models.VoiceAnswer) error {
	now := time.Now()
	err := p.db.SetAnswerTranscript(ctx, answer.AnswerID, map[string]interface{}{
		"processing_status":  constants.ProcessingCompleted,
		"answer_text":        constants.SilentAnswerText,
		"valid":              false,
		"audio_status":       constants.ProcessingCompleted,
		"audio_processed_at": now,
		"text_status":        constants.ProcessingSkipped,
		"text_reason":        "静音音频，跳过文本评估",
	})
	if err != nil {
		return err
	}
	logger.Info().Str("answer_id", answer.AnswerID).Msg("静音答案处理完成")
	return nil
}

// settleFailed 评估失败的终态处理，原因截断后持久化
func (p *AnswerProcessor) settleFailed(ctx context.Context, answer *models.VoiceAnswer, cause error) error {
	reason := tracing.FailureReason(cause)
	err := p.db.SetAnswerTranscript(ctx, answer.AnswerID, map[string]interface{}{
		"processing_status": constants.ProcessingFailed,
		"processing_reason": reason,
		"valid":             false,
		"audio_status":      constants.ProcessingFailed,
		"text_status":       constants.ProcessingFailed,
	})
	if err != nil {
		return err
	}
	logger.Warn().
		Str("answer_id", answer.AnswerID).
		Str("reason", reason).
		Msg("答案评估流水线失败")
	return cause
}
