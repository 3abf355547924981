package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mymmrac/telego"

	"leadbridge/internal/api"
	"leadbridge/internal/commission"
	"leadbridge/internal/config"
	"leadbridge/internal/database"
	"leadbridge/internal/leads"
	"leadbridge/internal/notify"
	"leadbridge/internal/stats"
	"leadbridge/internal/store"
	"leadbridge/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		fatal("could not connect to database", err)
	}
	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		fatal("could not connect to redis", err)
	}

	banks, err := commission.LoadBankTable(cfg.BanksFile)
	if err != nil {
		fatal("could not load bank table", err)
	}

	st := store.New(db)

	var senders []notify.Sender
	if cfg.BotToken != "" {
		bot, err := telego.NewBot(cfg.BotToken)
		if err != nil {
			fatal("failed to create bot", err)
		}
		senders = append(senders, notify.NewTelegramSender(bot))
	}
	if cfg.SMTPHost != "" {
		senders = append(senders, notify.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom))
	}
	if len(senders) == 0 {
		logger.Warn("no notification transport configured, events are closed without delivery")
	}
	dispatcher := notify.NewDispatcher(st, senders,
		notify.WithRate(cfg.NotifyRate),
		notify.WithBatch(cfg.DispatchBatch),
		notify.WithLogger(logger.With("component", "dispatcher")),
	)

	opts := []leads.Option{
		leads.WithNotifier(dispatcher),
		leads.WithLogger(logger.With("component", "leads")),
	}
	var marker leads.Marker
	if rdb != nil {
		marker = store.NewRedisMarker(rdb)
		opts = append(opts, leads.WithMarker(marker))
	}
	leadSvc := leads.NewService(st, banks, opts...)
	statsSvc := stats.NewService(st, logger.With("component", "stats"))

	checker := worker.NewChecker(leadSvc, dispatcher, marker, cfg.CallbackInterval, cfg.DispatchInterval, logger.With("component", "worker"))
	workerDone := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(workerDone)
	}()

	handler := api.NewHandler(leadSvc, statsSvc, st, logger.With("component", "api"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.AllowedInternalIPs),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("service started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server failed", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	<-workerDone
	if rdb != nil {
		_ = rdb.Close()
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
