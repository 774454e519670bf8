package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uika/tsugu-go-bot/internal/bot"
	"github.com/uika/tsugu-go-bot/internal/config"
	"github.com/uika/tsugu-go-bot/internal/forward"
	"github.com/uika/tsugu-go-bot/internal/msgcat"
	"github.com/uika/tsugu-go-bot/internal/obslog"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/internal/render"
	"github.com/uika/tsugu-go-bot/internal/resolver"
	"github.com/uika/tsugu-go-bot/internal/session"
	"github.com/uika/tsugu-go-bot/internal/tsuguapi"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		panic(err)
	}
	logger := obslog.L().Named("main")
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config failed", zap.Error(err))
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("load message catalog failed", zap.Error(err))
	}

	client := tsuguapi.NewClient(cfg.BackendURL, cfg.UserdataBackendURL,
		tsuguapi.WithTimeout(cfg.Timeout),
		tsuguapi.WithPlatform(cfg.Platform),
		tsuguapi.WithProxy(cfg.Proxy, cfg.BackendProxy, cfg.UserdataBackendProxy),
		tsuguapi.WithRenderOptions(cfg.UseEasyBG, cfg.Compress),
	)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("parse redis url failed", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	cancelPing()

	sessions := session.NewStore(rdb, cfg.VerifyTTL)
	res := resolver.New(client)
	renderer := render.New(cat)

	var audit forward.AuditRepo
	if cfg.DatabaseURL != "" {
		repo, err := forward.NewPostgresAudit(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open audit database failed", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		audit = repo
	}
	forwarder := forward.New(client, client, audit, cfg.Platform, cfg.BandoriStationToken)

	gateway := redconn.NewGateway(cfg.GatewayURL, 10)

	handlers := bot.NewHandlers(client, res, renderer, sessions, cat, cfg.Platform)
	router := bot.NewRouter(handlers, renderer, sessions, gateway, forwarder, bot.Options{
		Reply:   cfg.Reply,
		At:      cfg.At,
		NoSpace: cfg.NoSpace,
		Aliases: cfg.CommandAliases,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway.OnEvent(func(ev *redconn.Event) {
		go router.Handle(ctx, ev)
	})

	if err := gateway.Connect(ctx); err != nil {
		logger.Fatal("gateway connect failed", zap.Error(err))
	}
	logger.Info("bot started",
		zap.String("platform", cfg.Platform),
		zap.String("gateway", cfg.GatewayURL))

	<-ctx.Done()
	logger.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gateway.Close(closeCtx); err != nil {
		logger.Warn("gateway close failed", zap.Error(err))
	}
}
