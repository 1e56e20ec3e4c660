// Package main API Server 入口
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

	"contacts-api/internal/apiserver/auth"
	"contacts-api/internal/apiserver/server"
	"contacts-api/internal/config"
	"contacts-api/internal/shared/cache"
	rediscache "contacts-api/internal/shared/cache/redis"
	"contacts-api/internal/shared/mail"
	objstore "contacts-api/internal/shared/minio"
	"contacts-api/internal/shared/storage"
	pgdriver "contacts-api/internal/shared/storage/driver/postgres"
	sqlitedriver "contacts-api/internal/shared/storage/driver/sqlite"
	"contacts-api/internal/shared/storage/mongostore"
	"contacts-api/internal/shared/storage/repository"
	"contacts-api/pkg/logging"
)

func main() {
	configDir := flag.String("config", "", "config directory (overrides default search paths)")
	flag.Parse()
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	// 加载配置（自动加载 .env.{APP_ENV}，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	authCfg := auth.Config{
		JWTSecret:      cfg.Auth.JWTSecret,
		AccessTokenTTL: cfg.Auth.AccessTokenDuration(),
		ActionTokenTTL: cfg.Auth.ActionTokenDuration(),
	}

	// 初始化持久化存储（用户目录 + 联系人）
	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to database [driver=%s]", cfg.DatabaseDriver)

	// 初始化 Redis 会话缓存
	// Redis 不可用时退化为 NoOpCache：每次认证直查用户目录，功能不受影响
	var sessions cache.Cache
	if redisStore, err := rediscache.NewStoreFromURL(cfg.RedisURL); err != nil {
		log.Printf("Session cache DISABLED, Redis unavailable: %v", err)
		sessions = cache.NewNoOpCache()
	} else {
		sessions = redisStore
	}
	defer sessions.Close()

	// 初始化 MinIO 头像存储
	avatars, err := objstore.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("Failed to create MinIO client: %v", err)
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	err = avatars.EnsureBucket(bucketCtx)
	cancelBucket()
	if err != nil {
		log.Fatalf("Failed to ensure MinIO bucket: %v", err)
	}
	log.Println("Connected to MinIO")

	// 初始化 SMTP 邮件客户端（缺凭据时自动禁用，不影响其余功能）
	notifier, err := mail.NewClient(cfg.SMTP, cfg.ServerURL, logging.Default("mail"))
	if err != nil {
		log.Fatalf("Failed to create mail client: %v", err)
	}

	// 初始化管理员账号（由 ADMIN_EMAIL / ADMIN_PASSWORD 驱动，缺省跳过）
	if err := auth.EnsureAdminUser(store, sessions, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}

	// 初始化 Handler
	h := server.NewHandler(store, sessions, avatars, notifier, authCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// buildStore 根据配置的驱动创建持久化存储
//
// postgres 执行内嵌的 deployments/init.sql，sqlite 启动时自动建表，
// mongodb 连接时创建集合和索引。三种驱动都不需要外部迁移步骤。
func buildStore(cfg *config.Config) (storage.PersistentStore, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := sqlitedriver.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlitedriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	case "mongodb":
		dbName := cfg.DatabaseDBName
		if dbName == "" {
			dbName = "contacts_db"
		}
		return mongostore.NewStore(cfg.DatabaseURL, dbName)
	default: // postgres
		db, err := pgdriver.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := pgdriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres auto-migrate: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	}
}
