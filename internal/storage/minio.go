package storage

import (
	"assessment-go/internal/config"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadMedia 上传音视频对象到媒体存储桶
	UploadMedia(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)

	// UploadTranscript 上传转写文本到媒体存储桶
	UploadTranscript(ctx context.Context, objectKey string, text string) (string, error)

	// UploadReport 上传报告产物到报告存储桶
	UploadReport(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)

	// UploadDocumentStreaming 流式上传输入材料并同时计算sha256
	UploadDocumentStreaming(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, string, error)

	// DownloadMedia 下载媒体对象
	DownloadMedia(ctx context.Context, objectKey string) ([]byte, error)

	// DownloadDocument 下载输入材料对象
	DownloadDocument(ctx context.Context, objectKey string) ([]byte, error)

	// SignedReportURL 为报告对象生成预签名下载URL
	SignedReportURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteDocument 删除输入材料对象
	DeleteDocument(ctx context.Context, objectKey string) error
	// DeleteMedia 删除媒体对象
	DeleteMedia(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client          *minio.Client
	cfg             *config.MinIOConfig
	mediaBucket     string
	documentsBucket string
	reportsBucket   string
	logger          *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing client with endpoint: %s, mediaBucket: %s, documentsBucket: %s, reportsBucket: %s",
		cfg.Endpoint, cfg.MediaBucket, cfg.DocumentsBucket, cfg.ReportsBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	mediaBucket := cfg.MediaBucket
	if mediaBucket == "" {
		mediaBucket = "assessment-media"
	}
	documentsBucket := cfg.DocumentsBucket
	if documentsBucket == "" {
		documentsBucket = "assessment-documents"
	}
	reportsBucket := cfg.ReportsBucket
	if reportsBucket == "" {
		reportsBucket = "assessment-reports"
	}

	m := &MinIO{
		client:          client,
		cfg:             cfg,
		mediaBucket:     mediaBucket,
		documentsBucket: documentsBucket,
		reportsBucket:   reportsBucket,
		logger:          logger,
	}

	for _, bucket := range []string{mediaBucket, documentsBucket, reportsBucket} {
		if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
			logger.Printf("[MinIO] Failed to ensure bucket %s exists: %v", bucket, err)
			return nil, fmt.Errorf("确保存储桶 %s 存在失败: %w", bucket, err)
		}
	}

	// 媒体对象按生命周期过期，文档和报告长期保留
	if cfg.MediaExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), mediaBucket, "expire-media", cfg.MediaExpireDays); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	m.logger.Printf("[MinIO] Setting lifecycle rule for bucket %s: ID=%s, ExpiryDays=%d", bucketName, ruleID, expiryDays)
	config := lifecycle.NewConfiguration()
	config.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}

	if err := m.client.SetBucketLifecycle(ctx, bucketName, config); err != nil {
		return err
	}
	m.logger.Printf("[MinIO] Successfully set lifecycle for bucket %s.", bucketName)
	return nil
}

// UploadMedia 上传音视频对象到媒体存储桶，返回对象键
func (m *MinIO) UploadMedia(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-UploadMedia] Uploading: ObjectKey='%s', Size=%d, ContentType='%s', Bucket='%s'",
			objectKey, size, contentType, m.mediaBucket)
	}

	info, err := m.client.PutObject(ctx, m.mediaBucket, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.mediaBucket, objectKey, err)
	}

	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-UploadMedia] Successfully uploaded %s, ETag: %s, Size: %d", objectKey, info.ETag, info.Size)
	}
	return objectKey, nil
}

// UploadTranscript 上传转写文本到媒体存储桶
func (m *MinIO) UploadTranscript(ctx context.Context, objectKey string, text string) (string, error) {
	_, err := m.client.PutObject(ctx, m.mediaBucket, objectKey, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("上传转写文本 %s 到存储桶 %s 失败: %w", objectKey, m.mediaBucket, err)
	}
	return objectKey, nil
}

// UploadReport 上传报告产物到报告存储桶
func (m *MinIO) UploadReport(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.reportsBucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传报告 %s 到存储桶 %s 失败: %w", objectKey, m.reportsBucket, err)
	}
	return objectKey, nil
}

// UploadDocumentStreaming 流式上传输入材料并同时计算sha256
// 返回: objectKey, sha256Hex, error
func (m *MinIO) UploadDocumentStreaming(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, string, error) {
	hash := sha256.New()

	// TeeReader在上传的同时把字节流喂给哈希计算器，避免二次读取
	teeReader := io.TeeReader(reader, hash)

	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-UploadDocumentStreaming] Uploading: ObjectKey='%s', Size=%d, Bucket='%s'",
			objectKey, size, m.documentsBucket)
	}

	info, err := m.client.PutObject(ctx, m.documentsBucket, objectKey, teeReader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("流式上传文件到MinIO失败: %w", err)
	}

	hashHex := hex.EncodeToString(hash.Sum(nil))

	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-UploadDocumentStreaming] Successfully uploaded %s, ETag: %s, Size: %d, SHA256: %s",
			objectKey, info.ETag, info.Size, hashHex)
	}
	return objectKey, hashHex, nil
}

// DownloadMedia 下载媒体对象
func (m *MinIO) DownloadMedia(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.mediaBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.mediaBucket, objectKey, err)
	}
	defer obj.Close()

	// Stat确认对象存在，GetObject本身是惰性的
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", m.mediaBucket, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.mediaBucket, objectKey, err)
	}

	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-DownloadMedia] Downloaded %d bytes from %s/%s (ContentType=%s)",
			len(data), m.mediaBucket, objectKey, stat.ContentType)
	}
	return data, nil
}

// DownloadDocument 下载输入材料对象
func (m *MinIO) DownloadDocument(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.documentsBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.documentsBucket, objectKey, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", m.documentsBucket, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.documentsBucket, objectKey, err)
	}
	return data, nil
}

// SignedReportURL 为报告对象生成预签名下载URL
func (m *MinIO) SignedReportURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.reportsBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteDocument 删除输入材料对象，去重竞争落败后清理冗余上传用
func (m *MinIO) DeleteDocument(ctx context.Context, objectKey string) error {
	err := m.client.RemoveObject(ctx, m.documentsBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// DeleteMedia 删除媒体对象
func (m *MinIO) DeleteMedia(ctx context.Context, objectKey string) error {
	err := m.client.RemoveObject(ctx, m.mediaBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// StatObject 暴露底层的StatObject方法，用于测试或特定场景
func (m *MinIO) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucketName, objectName, opts)
}

// DetectContentType 根据文件名扩展名推断内容类型
func DetectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
