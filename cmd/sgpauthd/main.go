package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/pepe1603/sgpauth"
	"github.com/pepe1603/sgpauth/internal/boot"
	"github.com/pepe1603/sgpauth/internal/httpapi"
	"github.com/pepe1603/sgpauth/internal/store"
	"github.com/pepe1603/sgpauth/mailq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := boot.Load(ctx)
	if err != nil {
		return err
	}

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	// The inactivity listener needs expired-key events from Redis.
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		logger.Warn("could not enable keyspace notifications, inactivity suspension disabled", "err", err)
	}

	conn, err := amqp.Dial(config.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	pubCh, err := conn.Channel()
	if err != nil {
		return err
	}
	mailCfg := mailq.DefaultConfig()
	mailCfg.MaxAttempts = config.MailMaxAttempts
	producer, err := mailq.NewProducer(pubCh, mailCfg)
	if err != nil {
		return err
	}

	engine, err := sgpauth.New().
		WithJWTSecret([]byte(config.JWTSecret)).
		WithRedis(rdb).
		WithStore(db).
		WithMailQueue(producer).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI: true, LogStatus: true, LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	httpapi.Register(e, engine)

	var wg sync.WaitGroup

	if config.RunMailConsumer {
		conCh, err := conn.Channel()
		if err != nil {
			return err
		}
		consumer, err := mailq.NewConsumer(conCh, mailCfg, &mailq.SMTPMailer{
			Addr: config.SMTPAddr,
			From: config.SMTPFrom,
		}, nil, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mail consumer stopped", "err", err)
			}
		}()
	}

	if config.RunInactivityJob {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.RunInactivityListener(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("inactivity listener stopped", "err", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.RunWarningScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("warning scheduler stopped", "err", err)
			}
		}()
	}

	go func() {
		if err := e.Start(config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}

	wg.Wait()
	return nil
}
