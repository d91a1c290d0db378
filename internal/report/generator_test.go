package report

import (
	"context"
	"regexp"
	"testing"
	"time"

	"assessment-go/internal/config"
	"assessment-go/internal/constants"
	"assessment-go/internal/notify"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockGenerator(t *testing.T, waitAttempts int) (*Generator, sqlmock.Sqlmock) {
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

	store := &storage.Storage{MySQL: storage.NewMySQLFromDB(gdb)}
	notifier := notify.NewNotifier(gdb, &config.RabbitMQConfig{
		NotificationExchange:   "assessment.notifications.exchange",
		NotificationRoutingKey: "notification.email",
	})
	g := &Generator{
		store:        store,
		hub:          pipeline.NewCompletionHub(),
		notifier:     notifier,
		renderer:     NewHTMLRenderer(),
		hrEmail:      "hr@example.com",
		waitAttempts: waitAttempts,
		waitInterval: time.Millisecond,
		tracer:       otel.Tracer("assessment-go/report"),
	}
	return g, mock
}

func expectUnsettledCount(mock sqlmock.Sqlmock, count int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `voice_answers`")).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(count))
}

func TestWaitForPipelines_TimesOutWhileUnsettled(t *testing.T) {
	// 等待预算耗尽且仍有未决子流水线时必须返回错误，
	// 绝不能带着临时分数继续生成报告
	g, mock := newMockGenerator(t, 2)

	expectUnsettledCount(mock, 1)
	expectUnsettledCount(mock, 1)

	err := g.waitForPipelines(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "超时")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForPipelines_SettledImmediately(t *testing.T) {
	// 无未决答案且会话没有录像时立即放行
	g, mock := newMockGenerator(t, 2)

	expectUnsettledCount(mock, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `recordings`")).
		WillReturnError(gorm.ErrRecordNotFound)

	require.NoError(t, g.waitForPipelines(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerate_WaitTimeoutFailsReportAndNotifies(t *testing.T) {
	// 等待超时走统一失败路径：report_status落failed并写入HR失败通知，
	// 下一次报告请求可以重试
	g, mock := newMockGenerator(t, 1)

	expectUnsettledCount(mock, 1)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `assessment_sessions` SET")+
		".*WHERE session_id = \\? AND report_status = \\?").
		WithArgs(constants.ReportStatusFailed, sqlmock.AnyArg(),
			"sess-1", constants.ReportStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `outbox_messages`")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := g.generate(context.Background(), &models.AssessmentSession{
		SessionID:     "sess-1",
		CandidateName: "张三",
		Status:        constants.SessionStatusCompleted,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
