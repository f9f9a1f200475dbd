package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"remit_mall/internal/activity"
	"remit_mall/internal/config"
	"remit_mall/internal/inventory"
	"remit_mall/internal/model"
	"remit_mall/internal/notify"
	"remit_mall/internal/order"
	"remit_mall/internal/remittance"
	"remit_mall/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	// .env 仅本地开发用，不存在就静默跳过
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("数据库建表失败", zap.Error(err))
	}
	seedAdmin(db, logger)

	// 2. Redis：限流 + 通知出箱流
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	notifier := notify.NewStreamNotifier(rdb, cfg.NotifyStream, logger)
	producer := notify.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := notify.NewRelay(rdb, producer, cfg.NotifyStream, cfg.NotifyGroup, cfg.NotifyConsumer, logger)

	// 3. 领域引擎
	inv := inventory.NewManager(db, logger)
	acts := activity.New(db, logger)
	orders := order.NewEngine(db, inv, acts, notifier, logger)
	remits := remittance.NewEngine(db, acts, notifier, logger)

	r := gin.Default()
	router.Setup(r, router.Deps{
		DB:     db,
		Redis:  rdb,
		Orders: orders,
		Remits: remits,
		Inv:    inv,
		Acts:   acts,
		Log:    logger,
	}, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go relay.Run(ctx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务异常退出", zap.Error(err))
		}
	}()
	logger.Info("服务已启动", zap.String("addr", cfg.HTTPAddr))

	<-ctx.Done()
	logger.Info("收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP 关闭失败", zap.Error(err))
	}
	logger.Info("服务已退出")
}

func newLogger(level string) *zap.Logger {
	lv, err := zapcore.ParseLevel(level)
	if err != nil {
		lv = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lv)
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

// seedAdmin 保证空库第一次启动就有可用的管理员账号。
func seedAdmin(db *gorm.DB, logger *zap.Logger) {
	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		logger.Fatal("检查管理员账号失败", zap.Error(err))
	}
	if count > 0 {
		return
	}
	admin := model.User{Name: "admin", Role: model.RoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		logger.Fatal("创建默认管理员失败", zap.Error(err))
	}
	logger.Info("已创建默认管理员", zap.Uint("user_id", admin.ID))
}
