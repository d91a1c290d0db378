package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/storage/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockMySQL 在桩连接上构建存储层，逐条校验生成的SQL
func newMockMySQL(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
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
	return &MySQL{db: gdb}, mock
}

func TestClaimJobActivation_SecondClaimConflicts(t *testing.T) {
	// 激活抢占是幂等性的根基：同一任务只有第一次条件更新命中，
	// 之后的抢占必须拿到状态冲突而不是再次激活
	m, mock := newMockMySQL(t)
	now := time.Now()

	claimSQL := regexp.QuoteMeta("UPDATE `scheduled_jobs` SET") +
		".*WHERE job_id = \\? AND status = \\?"

	mock.ExpectExec(claimSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.ClaimJobActivation(context.Background(), "job-1", now))

	mock.ExpectExec(claimSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	err := m.ClaimJobActivation(context.Background(), "job-1", now)
	assert.ErrorIs(t, err, ErrStateConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginSessionCompletion_AtMostOnce(t *testing.T) {
	// 收尾只能从in-progress进入一次，并发的第二次请求必须冲突退出
	m, mock := newMockMySQL(t)

	beginSQL := regexp.QuoteMeta("UPDATE `assessment_sessions` SET") +
		".*WHERE session_id = \\? AND status = \\?"

	mock.ExpectExec(beginSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.BeginSessionCompletion(context.Background(), "sess-1"))

	mock.ExpectExec(beginSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	err := m.BeginSessionCompletion(context.Background(), "sess-1")
	assert.ErrorIs(t, err, ErrStateConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateArtifact_ReusesByContentHash(t *testing.T) {
	// 同类材料按内容哈希寻址：命中已有记录时复用，不插入新行
	m, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `artifacts` WHERE kind = ? AND content_hash = ?")).
		WithArgs(models.ArtifactKindResume, "hash-abc", 1).
		WillReturnRows(sqlmock.NewRows([]string{"artifact_id", "kind", "content_hash", "storage_key"}).
			AddRow("art-1", models.ArtifactKindResume, "hash-abc", "documents/a.pdf"))

	got, created, err := m.FindOrCreateArtifact(context.Background(), &models.Artifact{
		ArtifactID:  "art-new",
		Kind:        models.ArtifactKindResume,
		ContentHash: "hash-abc",
		StorageKey:  "documents/b.pdf",
	})
	require.NoError(t, err)
	assert.False(t, created, "命中已有记录不应视为新建")
	assert.Equal(t, "art-1", got.ArtifactID)
	assert.Equal(t, "documents/a.pdf", got.StorageKey)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateArtifact_MissCreates(t *testing.T) {
	m, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `artifacts`")).
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `artifacts`")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, created, err := m.FindOrCreateArtifact(context.Background(), &models.Artifact{
		ArtifactID:  "art-new",
		Kind:        models.ArtifactKindResume,
		ContentHash: "hash-new",
		StorageKey:  "documents/b.pdf",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "art-new", got.ArtifactID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateArtifact_InsertRaceFallsBackToExisting(t *testing.T) {
	// 并发插入撞唯一索引后回读已存在的记录，对调用方表现为复用
	m, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `artifacts`")).
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `artifacts`")).
		WillReturnError(errors.New("Error 1062: Duplicate entry"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `artifacts`")).
		WillReturnRows(sqlmock.NewRows([]string{"artifact_id", "kind", "content_hash"}).
			AddRow("art-1", models.ArtifactKindResume, "hash-abc"))

	got, created, err := m.FindOrCreateArtifact(context.Background(), &models.Artifact{
		ArtifactID:  "art-new",
		Kind:        models.ArtifactKindResume,
		ContentHash: "hash-abc",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "art-1", got.ArtifactID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOverdueJobs_StrictBoundary(t *testing.T) {
	// 过期判定是严格小于：expires_at等于当前时刻的任务仍在有效窗口内
	m, mock := newMockMySQL(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `scheduled_jobs` SET") +
		".*WHERE status IN \\(\\?,\\?\\) AND expires_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := m.ExpireOverdueJobs(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOtherPendingResults(t *testing.T) {
	// 新成绩落库后，同一候选人同岗位的其余pending成绩批量作废，
	// 当前这条按result_id排除在外
	m, mock := newMockMySQL(t)
	jdID := "jd-1"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `test_results` SET")+
		".*WHERE.*candidate_email = \\? AND status = \\? AND result_id <> \\?.* AND job_description_id = \\?").
		WithArgs(constants.ResultStatusExpired, sqlmock.AnyArg(),
			"alice@example.com", constants.ResultStatusPending, "res-keep", jdID).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := m.ExpireOtherPendingResults(context.Background(), "alice@example.com", &jdID, "res-keep")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOtherPendingResults_NoJobDescription(t *testing.T) {
	// 没有岗位维度时按候选人全量作废
	m, mock := newMockMySQL(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `test_results` SET") +
		".*WHERE candidate_email = \\? AND status = \\? AND result_id <> \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := m.ExpireOtherPendingResults(context.Background(), "alice@example.com", nil, "res-keep")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
