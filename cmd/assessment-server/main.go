package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-go/internal/api/handler"
	"assessment-go/internal/api/router"
	"assessment-go/internal/config"
	"assessment-go/internal/evalclient"
	"assessment-go/internal/logger"
	"assessment-go/internal/notify"
	"assessment-go/internal/outbox"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/report"
	"assessment-go/internal/scheduler"
	"assessment-go/internal/session"
	"assessment-go/internal/storage"
	"assessment-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}
	initLogger(cfg)

	// 2. 链路追踪
	ctx := context.Background()
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitProvider(ctx, &cfg.Tracing)
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("关闭链路追踪失败")
			}
		}()
	}

	// 3. 存储层
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil || storageManager.MinIO == nil {
		logger.Fatal().Msg("MySQL和MinIO是必需组件，初始化失败")
	}

	// 4. 外部评估服务客户端
	evalClient, err := evalclient.NewClient(&cfg.Evaluation)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化评估服务客户端失败")
	}

	// 5. 业务组件
	hub := pipeline.NewCompletionHub()
	aggregator := pipeline.NewAggregator(storageManager.MySQL)
	answerProc := pipeline.NewAnswerProcessor(storageManager.MySQL, storageManager.MinIO, evalClient, evalClient, evalClient, aggregator, hub)
	recordingProc := pipeline.NewRecordingProcessor(storageManager.MySQL, storageManager.MinIO, evalClient, aggregator, hub)
	notifier := notify.NewNotifier(storageManager.MySQL.DB(), &cfg.RabbitMQ)

	sched := scheduler.New(
		storageManager, notifier, evalClient, aggregator, scheduler.SystemClock,
		config.GetDuration(cfg.Scheduler.SweepInterval, 0),
		config.GetDuration(cfg.Scheduler.ReconcileInterval, 0),
	)
	reports := report.NewGenerator(
		storageManager, hub, aggregator, notifier, nil,
		cfg.Report.HREmail,
		cfg.Report.WaitAttempts,
		config.GetDuration(cfg.Report.WaitInterval, 0),
	)
	sessions := session.NewService(storageManager, hub, answerProc, recordingProc, aggregator, reports, sched)

	// 6. 通知出箱中继：轮询待发通知并投递到RabbitMQ
	if storageManager.RabbitMQ != nil {
		relay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ)
		relay.Start()
		defer relay.Stop()
	} else {
		logger.Warn().Msg("RabbitMQ不可用，通知消息将积压在出箱表")
	}

	// 7. 后台调度器
	if !cfg.Scheduler.Disabled {
		sched.Start()
		defer sched.Stop()
	} else {
		logger.Info().Msg("调度器已禁用，仅提供HTTP服务")
	}

	// 8. HTTP服务器
	opts := []hertzconfig.Option{server.WithHostPorts(cfg.Server.Address)}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tCfg := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracerCfg = tCfg
	}
	h := server.Default(opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	hlog.SetLogger(hertzzerolog.From(logger.Logger))

	assessmentHandler := handler.NewAssessmentHandler(cfg, storageManager, sched, sessions, reports)
	router.RegisterRoutes(h, assessmentHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("测评服务已启动")

	// 9. 等待终止信号并优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// initLogger 按配置初始化日志系统
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}
	if logConfig.Level == "" {
		logConfig.Level = "info"
	}
	if logConfig.Format == "" {
		if os.Getenv("ENV") == "production" {
			logConfig.Format = "json"
		} else {
			logConfig.Format = "pretty"
		}
	}
	if logConfig.TimeFormat == "" {
		logConfig.TimeFormat = time.RFC3339
	}
	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "assessment-go").
		Logger()
}
