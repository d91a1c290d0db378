package pipeline

import (
	"context"
	"errors"
	"fmt"
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

// RecordingStore 视频流水线需要的持久化操作，由 storage.MySQL 实现
type RecordingStore interface {
	ClaimVideoProcessing(ctx context.Context, recordingID string) error
	GetRecordingByID(ctx context.Context, recordingID string) (*models.Recording, error)
	SetVideoResult(ctx context.Context, recordingID, status string, emotions datatypes.JSON, score *float64, videoErr string, now time.Time) error
}

// RecordingProcessor 视频情绪评估流水线。
// 视频评分服务可能不返回分数，此时使用默认分。
type RecordingProcessor struct {
	db          RecordingStore
	media       MediaStore
	videoScorer evalclient.VideoScorer
	aggregator  ScoreRecomputer
	hub         *CompletionHub
	tracer      trace.Tracer
}

// NewRecordingProcessor 创建视频评估流水线
func NewRecordingProcessor(db RecordingStore, media MediaStore, videoScorer evalclient.VideoScorer, aggregator ScoreRecomputer, hub *CompletionHub) *RecordingProcessor {
	return &RecordingProcessor{
		db:          db,
		media:       media,
		videoScorer: videoScorer,
		aggregator:  aggregator,
		hub:         hub,
		tracer:      otel.Tracer("assessment-go/pipeline/recording"),
	}
}

// Process 处理单条摄像头录像。重复触发靠抢占失败去重。
func (p *RecordingProcessor) Process(ctx context.Context, recordingID string) error {
	ctx, span := p.tracer.Start(ctx, "RecordingPipeline.Process",
		trace.WithAttributes(attribute.String("recording.id", recordingID)))
	defer span.End()

	if err := p.db.ClaimVideoProcessing(ctx, recordingID); err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			logger.Debug().Str("recording_id", recordingID).Msg("录像已被其他流程处理，跳过")
			return nil
		}
		return err
	}

	recording, err := p.db.GetRecordingByID(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("查询录像失败: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", recording.SessionID))

	// 终态落库后重算会话成绩并唤醒等待方，聚合幂等，重复触发无害
	defer func() {
		if _, err := p.aggregator.Recompute(ctx, recording.SessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", recording.SessionID).Msg("录像落库后重算成绩失败")
		}
		p.hub.Notify(recording.SessionID)
	}()

	video, err := p.media.DownloadMedia(ctx, recording.CameraKey)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return p.settleFailed(ctx, recording, fmt.Errorf("下载录像失败: %w", err))
	}

	result, err := p.videoScorer.ScoreVideo(ctx, fmt.Sprintf("session_%s_camera.webm", recording.SessionID), video)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return p.settleFailed(ctx, recording, fmt.Errorf("视频评估失败: %w", err))
	}

	score := constants.DefaultVideoScore
	if result.VideoScore != nil {
		score = *result.VideoScore
	}
	emotionsJSON, err := models.MapToJSON(result.EmotionResults)
	if err != nil {
		return p.settleFailed(ctx, recording, fmt.Errorf("序列化情绪结果失败: %w", err))
	}

	err = p.db.SetVideoResult(ctx, recordingID,
		constants.ProcessingCompleted, emotionsJSON, &score, "", time.Now())
	if err != nil {
		return err
	}

	logger.Info().
		Str("recording_id", recordingID).
		Str("session_id", recording.SessionID).
		Float64("video_score", score).
		Msg("视频评估流水线完成")
	return nil
}

func (p *RecordingProcessor) settleFailed(ctx context.Context, recording *models.Recording, cause error) error {
	reason := tracing.FailureReason(cause)
	err := p.db.SetVideoResult(ctx, recording.RecordingID,
		constants.ProcessingFailed, nil, nil, reason, time.Now())
	if err != nil {
		return err
	}
	logger.Warn().
		Str("recording_id", recording.RecordingID).
		Str("reason", reason).
		Msg("视频评估流水线失败")
	return cause
}
