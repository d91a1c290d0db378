// Package outbox 实现通知投递的发件箱模式：
// 通知先作为 OutboxMessage 落库，由中继轮询并发布到消息队列，
// 投递失败不影响触发方的业务事务。
package outbox

import (
	"context"
	"time"

	"assessment-go/internal/logger"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollingInterval = 5 * time.Second // 轮询 outbox 表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息批量大小
	maxRetryCount          = 5               // 消息发布失败的最大重试次数
)

// MessageRelay 轮询 outbox 表并将通知发布到消息代理。
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建一个新的 MessageRelay 实例。
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
}

// Start 开始消息中继的轮询过程。
func (r *MessageRelay) Start() {
	logger.Info().Msg("通知中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				logger.Info().Msg("通知中继已停止")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					logger.Error().Err(err).Msg("处理待投递通知失败")
				}
			}
		}
	}()
}

// Stop 优雅地停止消息中继服务。
func (r *MessageRelay) Stop() {
	close(r.done)
}

// processPendingMessages 获取并处理一批来自 outbox 表的待投递通知。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	// 事务保证获取与状态更新的原子性。
	// 查询本身不创建Span，避免空轮询制造噪声。
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// `FOR UPDATE SKIP LOCKED` 跳过已被其他实例锁定的行，支持水平扩展。
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		logger.Error().Err(err).Msg("查询待投递通知失败")
		return err
	}

	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	logger.Debug().Int("count", len(messages)).Msg("开始投递通知批次")

	for _, msg := range messages {
		err := r.publisher.PublishMessage(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true, // 持久化
		)

		if err != nil {
			logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retry_count", msg.RetryCount+1).
				Msg("发布通知失败")
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
		} else {
			msg.Status = "SENT"
			now := time.Now()
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 更新失败则整个事务回滚，消息保持PENDING，下一轮重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			logger.Error().Err(err).Uint64("message_id", msg.ID).Msg("更新通知状态失败")
			return err
		}
	}

	return tx.Commit().Error
}
