package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"

	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockHandler 构建只挂数据库桩的处理器。
// MinIO与Redis刻意留空：去重命中的请求不允许触达对象存储
func newMockHandler(t *testing.T) (*AssessmentHandler, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return &AssessmentHandler{
		storage: &storage.Storage{MySQL: storage.NewMySQLFromDB(gdb)},
	}, mock
}

func TestHandleArtifactUpload_DuplicateContentSkipsUpload(t *testing.T) {
	// 相同内容重复上传：先按内容哈希查重，命中时复用已有记录，
	// 整个过程不产生任何对象存储写入
	h, mock := newMockHandler(t)

	content := []byte("李四的简历正文")
	digest := sha256.Sum256(content)
	hashHex := hex.EncodeToString(digest[:])

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `artifacts` WHERE kind = ? AND content_hash = ?")).
		WithArgs(models.ArtifactKindResume, hashHex, 1).
		WillReturnRows(sqlmock.NewRows([]string{"artifact_id", "kind", "content_hash", "storage_key"}).
			AddRow("art-1", models.ArtifactKindResume, hashHex, "resume/1.pdf"))

	resp, err := h.HandleArtifactUpload(context.Background(),
		models.ArtifactKindResume, bytes.NewReader(content), int64(len(content)), "resume.pdf")
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
	assert.Equal(t, "art-1", resp.ArtifactID)
	assert.Equal(t, hashHex, resp.ContentHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleArtifactUpload_RejectsUnknownKind(t *testing.T) {
	h, _ := newMockHandler(t)

	_, err := h.HandleArtifactUpload(context.Background(),
		"certificate", bytes.NewReader([]byte("x")), 1, "cert.pdf")
	assert.Error(t, err)
}
