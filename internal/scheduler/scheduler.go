// Package scheduler 负责预约任务的全生命周期调度：
// 到点激活、超窗过期、开考提醒、闲置会话清理与分数对账。
// 所有扫描都以数据库条件更新抢占，多实例部署天然安全。
package scheduler

import (
	"context"
	"errors"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/evalclient"
	"assessment-go/internal/logger"
	"assessment-go/internal/notify"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Clock 时间源，测试中可注入
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock 默认时间源
var SystemClock Clock = realClock{}

// Scheduler 调度器
type Scheduler struct {
	store      *storage.Storage
	notifier   *notify.Notifier
	questions  evalclient.QuestionGenerator
	aggregator *pipeline.Aggregator
	clock      Clock

	sweepInterval     time.Duration
	reconcileInterval time.Duration

	done   chan struct{}
	tracer trace.Tracer
}

// New 创建调度器
func New(store *storage.Storage, notifier *notify.Notifier, questions evalclient.QuestionGenerator, aggregator *pipeline.Aggregator, clock Clock, sweepInterval, reconcileInterval time.Duration) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if sweepInterval <= 0 {
		sweepInterval = constants.DefaultSweepInterval
	}
	if reconcileInterval <= 0 {
		reconcileInterval = constants.DefaultReconcileInterval
	}
	return &Scheduler{
		store:             store,
		notifier:          notifier,
		questions:         questions,
		aggregator:        aggregator,
		clock:             clock,
		sweepInterval:     sweepInterval,
		reconcileInterval: reconcileInterval,
		done:              make(chan struct{}),
		tracer:            otel.Tracer("assessment-go/scheduler"),
	}
}

// Start 启动后台扫描循环
func (s *Scheduler) Start() {
	go s.sweepLoop()
	go s.reconcileLoop()
	logger.Info().
		Dur("sweep_interval", s.sweepInterval).
		Dur("reconcile_interval", s.reconcileInterval).
		Msg("调度器已启动")
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	close(s.done)
	logger.Info().Msg("调度器已停止")
}

func (s *Scheduler) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	// 启动后立即扫一轮，不等第一个tick
	s.Sweep(context.Background())
	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) reconcileLoop() {
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Reconcile(context.Background())
		case <-s.done:
			return
		}
	}
}

// Sweep 执行一轮扫描：激活到点任务、过期超窗任务、发送提醒、清理闲置会话
func (s *Scheduler) Sweep(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.Sweep")
	defer span.End()

	now := s.clock.Now()
	s.activateDueJobs(ctx, now)
	s.expireOverdue(ctx, now)
	s.sendReminders(ctx, now)
	s.expireStaleSessions(ctx, now)
}

func (s *Scheduler) activateDueJobs(ctx context.Context, now time.Time) {
	jobs, err := s.store.MySQL.DueScheduledJobs(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("查询到点任务失败")
		return
	}
	for i := range jobs {
		job := &jobs[i]
		if _, err := s.ActivateJob(ctx, job); err != nil {
			if errors.Is(err, storage.ErrStateConflict) {
				// 其他实例或候选人入口已抢到激活
				continue
			}
			logger.Error().Err(err).Str("job_id", job.JobID).Msg("激活任务失败")
		}
	}
}

func (s *Scheduler) expireOverdue(ctx context.Context, now time.Time) {
	n, err := s.store.MySQL.ExpireOverdueJobs(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("过期超窗任务失败")
		return
	}
	if n > 0 {
		logger.Info().Int64("count", n).Msg("超窗任务已过期")
	}
}

func (s *Scheduler) sendReminders(ctx context.Context, now time.Time) {
	jobs, err := s.store.MySQL.JobsNeedingReminder(ctx, now, constants.ReminderLeadWindow)
	if err != nil {
		logger.Error().Err(err).Msg("查询待提醒任务失败")
		return
	}
	for i := range jobs {
		job := &jobs[i]
		// 先抢标记再发送，多实例下同一任务只提醒一次
		if err := s.store.MySQL.MarkReminderSent(ctx, job.JobID); err != nil {
			if !errors.Is(err, storage.ErrStateConflict) {
				logger.Error().Err(err).Str("job_id", job.JobID).Msg("标记提醒失败")
			}
			continue
		}
		if err := s.notifier.SendReminder(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.JobID).Msg("写入提醒通知失败")
		}
	}
}

func (s *Scheduler) expireStaleSessions(ctx context.Context, now time.Time) {
	cutoff := now.Add(-constants.SessionInactivityTTL)
	sessionIDs, err := s.store.MySQL.ExpireStaleSessions(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("清理闲置会话失败")
		return
	}
	if len(sessionIDs) == 0 {
		return
	}
	logger.Info().Int("count", len(sessionIDs)).Msg("闲置会话已过期")

	if _, err := s.store.MySQL.ExpireSiblingResults(ctx, sessionIDs); err != nil {
		logger.Error().Err(err).Msg("级联过期成绩记录失败")
	}
}

// Reconcile 对账：完成已久但没有综合分的会话重新触发聚合。
// 聚合是幂等的纯重算，重复执行无副作用。
func (s *Scheduler) Reconcile(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.Reconcile")
	defer span.End()

	cutoff := s.clock.Now().Add(-constants.ReconcileGracePeriod)
	sessions, err := s.store.MySQL.SessionsNeedingScoreReconcile(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("查询待对账会话失败")
		return
	}
	for i := range sessions {
		sessionID := sessions[i].SessionID
		if _, err := s.aggregator.Recompute(ctx, sessionID); err != nil {
			logger.Error().Err(err).Str("session_id", sessionID).Msg("对账重算分数失败")
			continue
		}
		logger.Info().Str("session_id", sessionID).Msg("对账重算分数完成")
	}
}
