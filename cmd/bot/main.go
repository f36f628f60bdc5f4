package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/r7zex/t-invest-bot/internal/bot"
	"github.com/r7zex/t-invest-bot/internal/clients/invest"
	"github.com/r7zex/t-invest-bot/internal/config"
	"github.com/r7zex/t-invest-bot/internal/modules/history"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
	"github.com/r7zex/t-invest-bot/internal/scheduler"
	"github.com/r7zex/t-invest-bot/internal/server"
	"github.com/r7zex/t-invest-bot/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting T-Invest bot 🟢")

	// Upstream API client and the shared market data gateway.
	client := invest.NewClient(invest.Config{
		BaseURL:   cfg.InvestBaseURL,
		Token:     cfg.InvestAPIKey,
		VerifySSL: cfg.VerifySSL,
		Log:       log,
	})
	gateway := portfolio.NewGateway(client, log)
	reconstructor := history.NewReconstructor(gateway, log)

	// Telegram transport.
	tgBot, err := bot.New(bot.Config{
		Token:         cfg.TelegramToken,
		AllowedPhone:  cfg.AllowedPhone,
		Gateway:       gateway,
		Reconstructor: reconstructor,
		Log:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Background jobs.
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.DigestSchedule, scheduler.NewDigestJob(tgBot, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register digest job")
	}
	sched.Start()
	defer sched.Stop()

	// Health endpoint.
	srv := server.New(server.Config{
		Port: cfg.Port,
		Log:  log,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	go tgBot.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	tgBot.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}
