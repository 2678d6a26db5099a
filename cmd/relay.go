package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/MiiZZo/voicechat/internal/application/config"
	"github.com/MiiZZo/voicechat/internal/application/constant"
	"github.com/MiiZZo/voicechat/internal/application/metric"
	"github.com/MiiZZo/voicechat/internal/infra/adapters/memory"
	"github.com/MiiZZo/voicechat/internal/infra/ports/http/handlers"
	"github.com/MiiZZo/voicechat/internal/infra/ports/http/server"
	"github.com/MiiZZo/voicechat/internal/infra/ports/turn"
	"github.com/MiiZZo/voicechat/internal/usecase"
)

func runRelay() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	registry := memory.NewRoomRegistry()
	connRepo := memory.NewConnectionRepository()

	signalingUsecase := usecase.NewSignalingUsecase(registry, connRepo)

	roomHandler := handlers.NewRoomHandler()
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, connRepo, signalingUsecase)

	echoSrv := server.New(cfg, roomHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer()

	if cfg.Turn.Enabled {
		turnSrv, err := turn.Start(&cfg.Turn)
		if err != nil {
			slog.Error("start turn server", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer turnSrv.Close()

		slog.Info("turn server started", slog.Int("port", cfg.Turn.Port))
	}

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricsPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
