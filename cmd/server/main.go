package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdk-detect/sdk-detect-go/internal/api"
	"github.com/sdk-detect/sdk-detect-go/internal/api/handlers"
	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
	"github.com/sdk-detect/sdk-detect-go/internal/config"
	"github.com/sdk-detect/sdk-detect-go/internal/detect"
	"github.com/sdk-detect/sdk-detect-go/internal/domain"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
	"github.com/sdk-detect/sdk-detect-go/internal/middleware"
	"github.com/sdk-detect/sdk-detect-go/internal/queue"
	"github.com/sdk-detect/sdk-detect-go/internal/repository"
	"github.com/sdk-detect/sdk-detect-go/internal/service"
	"github.com/sdk-detect/sdk-detect-go/internal/watcher"
	"github.com/sdk-detect/sdk-detect-go/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fmt.Printf("SDK Detection Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 1. 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting SDK Detection Service %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 3. 初始化数据库
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	scanRepo := repository.NewScanRepository(db, logger)
	logger.Info("Database connected successfully")

	// 4. 加载签名目录（内置 + 可选外部文件）
	maxDepth := cfg.Engine.MaxPrefixDepth
	if maxDepth <= 0 {
		maxDepth = fingerprint.DefaultMaxPrefixDepth
	}
	cat, err := catalog.Load(cfg.Engine.SignatureFile, maxDepth)
	if err != nil {
		logger.Fatalf("Failed to load signature catalog: %v", err)
	}
	logger.WithField("signatures", cat.Len()).Info("Signature catalog loaded")

	// 5. 组装检测引擎
	extractor := fingerprint.NewExtractor(logger, maxDepth)
	matcher := detect.NewMatcher(logger)
	aggregator := detect.NewAggregator(extractor, matcher, cat, logger, cfg.Engine.MemberWorkers)

	// 6. 指标与事件广播
	promMetrics := middleware.NewPrometheusMetrics(logger, "sdk_detect")
	eventHandler := handlers.NewEventHandler(logger)
	eventHandler.Start()

	// 7. 扫描服务
	scanService := service.NewScanService(scanRepo, aggregator, logger)
	scanService.SetMetrics(promMetrics)
	scanService.SetEventSink(eventHandler)

	workerCount := cfg.Worker.Concurrency
	if workerCount <= 0 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 任务执行端：RabbitMQ 消费或本地 Worker 池
	var dispatcher handlers.ScanDispatcher
	if cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(&queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
		}, cfg.RabbitMQ.Queue, workerCount, logger)
		if err != nil {
			logger.Fatalf("Failed to init RabbitMQ: %v", err)
		}
		defer mq.Close()

		producer := queue.NewProducer(mq, logger)
		consumer := queue.NewConsumer(mq, func(ctx context.Context, msg *queue.ScanMessage) error {
			return scanService.Execute(ctx, msg.TaskID, msg.PackagePath)
		}, workerCount, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()

		dispatcher = &queueDispatcher{producer: producer}
		promMetrics.SetWorkerPoolSize(workerCount)
		go watchQueueDepth(ctx, producer, promMetrics)
		logger.Info("Scan tasks will be executed via RabbitMQ")
	} else {
		pool := worker.NewPool(workerCount, cfg.Worker.QueueSize, scanService, logger)
		pool.Start(ctx)
		defer pool.Stop()

		dispatcher = &poolDispatcher{pool: pool}
		promMetrics.SetWorkerPoolSize(workerCount)
		go watchPoolDepth(ctx, pool, promMetrics)
		logger.Info("Scan tasks will be executed by local worker pool")
	}

	// 9. 目录监控：投递目录中出现的包自动入队
	if cfg.Watcher.Enabled {
		pw, err := watcher.NewPackageWatcher(cfg.Watcher.Dir, nil, func(ctx context.Context, path string) error {
			task, err := scanService.CreateTask(ctx, path)
			if err != nil {
				return err
			}
			return dispatcher.Dispatch(ctx, task)
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to init package watcher: %v", err)
		}
		if err := pw.Start(ctx); err != nil {
			logger.Fatalf("Failed to start package watcher: %v", err)
		}
		defer pw.Stop()
	}

	// 10. HTTP 服务
	scanHandler := handlers.NewScanHandler(scanService, dispatcher, logger)
	catalogHandler := handlers.NewCatalogHandler(cat, logger)
	router := api.SetupRouter(cfg, logger, scanHandler, catalogHandler, eventHandler, promMetrics)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("HTTP server listening on :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 11. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}

	cancel()
	logger.Info("Server stopped")
}

// queueDispatcher 经 RabbitMQ 投递任务
type queueDispatcher struct {
	producer *queue.Producer
}

func (d *queueDispatcher) Dispatch(ctx context.Context, task *domain.ScanTask) error {
	return d.producer.PublishScan(ctx, &queue.ScanMessage{
		TaskID:      task.ID,
		PackagePath: task.PackagePath,
	})
}

// poolDispatcher 直接提交到本地 Worker 池
type poolDispatcher struct {
	pool *worker.Pool
}

func (d *poolDispatcher) Dispatch(ctx context.Context, task *domain.ScanTask) error {
	return d.pool.Submit(&worker.Task{
		ID:          task.ID,
		PackagePath: task.PackagePath,
	})
}

func watchQueueDepth(ctx context.Context, producer *queue.Producer, m *middleware.PrometheusMetrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := producer.GetQueueSize(); err == nil {
				m.SetWorkerQueueSize(n)
			}
		}
	}
}

func watchPoolDepth(ctx context.Context, pool *worker.Pool, m *middleware.PrometheusMetrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetWorkerQueueSize(pool.GetQueueSize())
		}
	}
}
