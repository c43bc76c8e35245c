// Package main запускает HTTP-сервер сервиса заказов школьной формы.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/vestetec-system/internal/config"
	"github.com/mmeshcher/vestetec-system/internal/handler"
	"github.com/mmeshcher/vestetec-system/internal/mailer"
	"github.com/mmeshcher/vestetec-system/internal/repository"
	"github.com/mmeshcher/vestetec-system/internal/service"
	"github.com/mmeshcher/vestetec-system/internal/token"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	revocations, closeRevocations, err := newRevocationList(cfg, sugar)
	if err != nil {
		sugar.Fatalw("redis initialization error", "error", err.Error())
	}
	defer closeRevocations()

	var mail service.Mailer
	if cfg.MailjetEnabled() {
		mail = mailer.NewClient(mailer.Config{
			BaseURL:     cfg.MailjetBaseURL,
			APIKey:      cfg.MailjetAPIKey,
			SecretKey:   cfg.MailjetSecretKey,
			SenderEmail: cfg.MailSenderEmail,
			SenderName:  cfg.MailSenderName,
		}, logger)
	} else {
		sugar.Warn("mailjet is not configured, verification codes will only be logged")
		mail = mailer.NewLogMailer(logger)
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		sugar.Warn("JWT_SECRET is not set, using a random key; tokens will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			sugar.Fatalw("generate jwt secret", "error", err.Error())
		}
	}
	tokens := token.NewManager(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)

	svc := service.NewService(repo, mail, tokens, revocations, logger,
		service.WithDeliveryLead(cfg.DeliveryLead()),
		service.WithBcryptCost(cfg.BcryptCost),
	)
	defer svc.Close()

	if cfg.AdminEmail != "" {
		id, err := svc.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
		if err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
		sugar.Infow("admin account ready", "id", id, "email", cfg.AdminEmail)
	}

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая деактивация истёкших кодов подтверждения
	g.Go(func() error {
		svc.StartCodeSweeper(ctx, cfg.CodeSweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting vestetec server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newRevocationList подключается к Redis, а без REDIS_URL возвращает список в памяти процесса.
func newRevocationList(cfg *config.Config, sugar *zap.SugaredLogger) (token.RevocationList, func(), error) {
	if cfg.RedisURL == "" {
		sugar.Warn("REDIS_URL is not set, token revocations are kept in memory")
		return token.NewMemoryRevocations(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	return token.NewRedisRevocations(client), func() { _ = client.Close() }, nil
}
