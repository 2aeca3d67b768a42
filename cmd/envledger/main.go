package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"envledger/internal/anchor"
	"envledger/internal/config"
	"envledger/internal/contracts"
	"envledger/internal/crypto"
	"envledger/internal/events"
	"envledger/internal/httpapi"
	"envledger/internal/ingest"
	"envledger/internal/ledger"
	"envledger/internal/logger"
	"envledger/internal/storage"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.FacilityID)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 打开存储后端
	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open ledger store",
			zap.String("backend", cfg.Ledger.Backend),
			zap.Error(err),
		)
	}
	defer store.Close()

	// 4. 合约引擎与账本引擎
	provider := crypto.NewProvider()
	rules := contracts.NewEngine(provider, log)
	engine := ledger.NewEngine(ledger.Config{
		FacilityID:   cfg.FacilityID,
		FacilityName: cfg.FacilityName,
		MinedBy:      cfg.Ledger.MinedBy,
		BlockSize:    cfg.Ledger.BlockSize,
		Difficulty:   cfg.Ledger.Difficulty,
	}, store, provider, rules, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize ledger", zap.Error(err))
	}

	// 5. Redis 事件流（可选）
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		publisher := events.NewStreamPublisher(redisClient, log)
		unsubscribe := engine.Subscribe(publisher.Subscriber())
		defer unsubscribe()
	}

	// 6. 外部锚定（可选）
	if cfg.Anchor.Endpoint != "" {
		anchorClient := anchor.NewClient(cfg.Anchor.Endpoint, cfg.FacilityID, log)
		unsubscribe := engine.Subscribe(anchorClient.Subscriber())
		defer unsubscribe()
	}

	// 7. MQTT 传感器摄入（可选）
	if cfg.MQTT.Enabled {
		consumer := ingest.NewConsumer(engine, rules, cfg.FacilityID, log)
		source, err := ingest.StartMQTT(ingest.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      1,
		}, consumer, log)
		if err != nil {
			log.Fatal("Failed to start MQTT ingestion", zap.Error(err))
		}
		defer source.Stop()
	}

	// 8. HTTP API
	handler := httpapi.NewHandler(engine, rules, cfg.FacilityID, log)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler,
	}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 9. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}

	// 取消挖矿等后台操作，再关闭 HTTP
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}

	log.Info("Ledger service stopped")
}

// openStore 按配置选择 LevelDB 或 PostgreSQL 后端
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		return storage.OpenPostgresStore(cfg.DSN(), log)
	default:
		return storage.OpenLevelStore(cfg.Ledger.DataDir, log)
	}
}
