package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"assessment-go/internal/config"
	"assessment-go/internal/logger"
	"assessment-go/internal/report"
	"assessment-go/internal/scheduler"
	"assessment-go/internal/session"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

// AssessmentHandler 测评API处理器，组合调度、会话与报告三块服务
type AssessmentHandler struct {
	cfg       *config.Config
	storage   *storage.Storage
	scheduler *scheduler.Scheduler
	sessions  *session.Service
	reports   *report.Generator
}

// NewAssessmentHandler 创建测评处理器
func NewAssessmentHandler(cfg *config.Config, storage *storage.Storage, sched *scheduler.Scheduler, sessions *session.Service, reports *report.Generator) *AssessmentHandler {
	return &AssessmentHandler{
		cfg:       cfg,
		storage:   storage,
		scheduler: sched,
		sessions:  sessions,
		reports:   reports,
	}
}

// Storage 暴露底层存储管理器，供健康检查等只读场景使用
func (h *AssessmentHandler) Storage() *storage.Storage { return h.storage }

// Scheduler 暴露调度服务
func (h *AssessmentHandler) Scheduler() *scheduler.Scheduler { return h.scheduler }

// Sessions 暴露会话服务
func (h *AssessmentHandler) Sessions() *session.Service { return h.sessions }

// Reports 暴露报告服务
func (h *AssessmentHandler) Reports() *report.Generator { return h.reports }

// ArtifactUploadResponse 材料上传响应
type ArtifactUploadResponse struct {
	ArtifactID  string `json:"artifact_id"`
	ContentHash string `json:"content_hash"`
	Duplicate   bool   `json:"duplicate"`
}

// HandleArtifactUpload 上传简历或职位描述。
// 内容寻址去重：Redis哈希集合作为快路径，数据库唯一索引兜底，
// 同内容重复上传复用已有材料记录。
func (h *AssessmentHandler) HandleArtifactUpload(ctx context.Context, kind string, reader io.Reader, fileSize int64, filename string) (*ArtifactUploadResponse, error) {
	if kind != models.ArtifactKindResume && kind != models.ArtifactKindJobDescription {
		return nil, fmt.Errorf("不支持的材料类型 %s", kind)
	}

	// 先读内容算哈希，去重命中时完全跳过对象上传
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取材料内容失败: %w", err)
	}
	digest := sha256.Sum256(data)
	hashHex := hex.EncodeToString(digest[:])

	// Redis去重只是快路径信号，查询失败时降级到数据库唯一索引
	h.checkHashFastPath(ctx, kind, hashHex)

	existing, err := h.storage.MySQL.GetArtifactByKindHash(ctx, kind, hashHex)
	if err == nil {
		logger.Info().
			Str("kind", kind).
			Str("content_hash", hashHex).
			Str("artifact_id", existing.ArtifactID).
			Msg("检测到重复材料，复用已有记录")
		return &ArtifactUploadResponse{
			ArtifactID:  existing.ArtifactID,
			ContentHash: existing.ContentHash,
			Duplicate:   true,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询输入材料失败: %w", err)
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}
	objectKey := fmt.Sprintf("%s/%d%s", kind, time.Now().UnixMilli(), ext)
	contentType := storage.DetectContentType(filename)

	storedKey, _, err := h.storage.MinIO.UploadDocumentStreaming(ctx, objectKey, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, fmt.Errorf("上传材料失败: %w", err)
	}

	artifactUUID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成材料ID失败: %w", err)
	}
	artifact := &models.Artifact{
		ArtifactID:       artifactUUID.String(),
		Kind:             kind,
		ContentHash:      hashHex,
		StorageKey:       storedKey,
		OriginalFilename: filename,
		SizeBytes:        int64(len(data)),
	}
	stored, created, err := h.storage.MySQL.FindOrCreateArtifact(ctx, artifact)
	if err != nil {
		// 登记失败时把刚加入的快路径哈希撤掉，避免集合里留下无记录的成员
		if kind == models.ArtifactKindResume && h.storage.Redis != nil {
			if remErr := h.storage.Redis.RemoveResumeHash(ctx, hashHex); remErr != nil {
				logger.Warn().Err(remErr).Str("content_hash", hashHex).Msg("回滚简历内容哈希失败")
			}
		}
		return nil, fmt.Errorf("登记材料失败: %w", err)
	}

	if !created {
		// 并发上传撞到同内容：复用对方的记录，清掉本次多余的对象
		logger.Info().
			Str("kind", kind).
			Str("content_hash", hashHex).
			Str("artifact_id", stored.ArtifactID).
			Msg("检测到重复材料，复用已有记录")
		if delErr := h.storage.MinIO.DeleteDocument(ctx, storedKey); delErr != nil {
			logger.Warn().Err(delErr).Str("object_key", storedKey).Msg("清理冗余材料对象失败")
		}
	}
	return &ArtifactUploadResponse{
		ArtifactID:  stored.ArtifactID,
		ContentHash: stored.ContentHash,
		Duplicate:   !created,
	}, nil
}

func (h *AssessmentHandler) checkHashFastPath(ctx context.Context, kind, hashHex string) {
	if h.storage.Redis == nil {
		return
	}
	var err error
	var exists bool
	switch kind {
	case models.ArtifactKindResume:
		exists, err = h.storage.Redis.CheckAndAddResumeHash(ctx, hashHex)
	case models.ArtifactKindJobDescription:
		exists, err = h.storage.Redis.CheckAndAddJobDescHash(ctx, hashHex)
	}
	if err != nil {
		logger.Warn().Err(err).Str("content_hash", hashHex).Msg("Redis哈希集合查询失败，降级到数据库去重")
		return
	}
	if exists {
		logger.Debug().Str("kind", kind).Str("content_hash", hashHex).Msg("Redis命中重复内容哈希")
	}
}

// MatchRequestResponse 配对请求响应
type MatchRequestResponse struct {
	RequestID string `json:"request_id"`
	PairHash  string `json:"pair_hash"`
	Duplicate bool   `json:"duplicate"`
}

// HandleMatchRequest 登记一次简历-职位描述配对。
// 配对哈希由两份材料的内容哈希派生，同一配对重复提交返回已有记录。
func (h *AssessmentHandler) HandleMatchRequest(ctx context.Context, resumeID, jobDescriptionID string) (*MatchRequestResponse, error) {
	resume, err := h.storage.MySQL.GetArtifactByID(ctx, resumeID)
	if err != nil {
		return nil, fmt.Errorf("简历 %s 不存在", resumeID)
	}
	jd, err := h.storage.MySQL.GetArtifactByID(ctx, jobDescriptionID)
	if err != nil {
		return nil, fmt.Errorf("职位描述 %s 不存在", jobDescriptionID)
	}
	if resume.Kind != models.ArtifactKindResume || jd.Kind != models.ArtifactKindJobDescription {
		return nil, fmt.Errorf("材料类型不匹配")
	}

	pairDigest := sha256.Sum256([]byte(resume.ContentHash + "-" + jd.ContentHash))
	pairHash := hex.EncodeToString(pairDigest[:])

	if h.storage.Redis != nil {
		if exists, err := h.storage.Redis.CheckAndAddPairHash(ctx, pairHash); err != nil {
			logger.Warn().Err(err).Str("pair_hash", pairHash).Msg("Redis配对哈希查询失败，降级到数据库去重")
		} else if exists {
			logger.Debug().Str("pair_hash", pairHash).Msg("Redis命中重复配对")
		}
	}

	requestUUID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成配对请求ID失败: %w", err)
	}
	request := &models.MatchRequest{
		RequestID:        requestUUID.String(),
		PairHash:         pairHash,
		ResumeID:         resumeID,
		JobDescriptionID: jobDescriptionID,
	}
	stored, created, err := h.storage.MySQL.FindOrCreateMatchRequest(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("登记配对请求失败: %w", err)
	}
	return &MatchRequestResponse{
		RequestID: stored.RequestID,
		PairHash:  stored.PairHash,
		Duplicate: !created,
	}, nil
}

// CodedErrorOf 提取业务错误码，非业务错误返回空串
func CodedErrorOf(err error) (string, string) {
	var coded *session.CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}
	return "", ""
}
