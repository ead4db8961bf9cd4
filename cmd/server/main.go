package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/handler"
	"referralpay/internal/infrastructure/cache"
	"referralpay/internal/infrastructure/database"
	"referralpay/internal/infrastructure/mq"
	"referralpay/internal/job"
	"referralpay/internal/logging"
	"referralpay/internal/service"
	"referralpay/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	if err := logging.InitLogger(cfg.Log.Production); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logging.Sync()

	// 初始化 ID 生成器
	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		logging.Logger.Fatal("初始化 ID 生成器失败", zap.Int("worker_id", cfg.Server.WorkerID), zap.Error(err))
	}

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)

	publisher := mq.InitKafka(&cfg.Kafka)
	defer publisher.Close()

	walletService := service.NewWalletService(db, redisClient, cfg)
	commissionService, err := service.NewCommissionService(db, redisClient, cfg, walletService)
	if err != nil {
		logging.Logger.Fatal("初始化佣金服务失败", zap.Error(err))
	}
	withdrawalService := service.NewWithdrawalService(db, cfg, walletService)
	referralService := service.NewReferralService(db, redisClient, cfg, commissionService)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	resumeJob := job.NewCommissionResumeJob(commissionService, cfg)
	go resumeJob.Start(ctx)

	reconcileJob := job.NewReconcileJob(db, walletService, cfg)
	go reconcileJob.Start(ctx)

	h := handler.NewHandler(walletService, commissionService, withdrawalService, referralService)
	router := handler.SetupRouter(h)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logging.Logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("服务关闭异常", zap.Error(err))
	}

	logging.Logger.Info("服务已关闭")
}
