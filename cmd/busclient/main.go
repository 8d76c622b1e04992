package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"schoolbus/internal/api"
	"schoolbus/internal/attachment"
	"schoolbus/internal/auth"
	"schoolbus/internal/chat"
	"schoolbus/internal/config"
	"schoolbus/internal/metrics"
	"schoolbus/internal/realtime"
	"schoolbus/internal/resolver"
	"schoolbus/internal/session"
	"schoolbus/internal/tracking"
	"schoolbus/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadClient()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.GlobalLogger.SetOutput(os.Stderr, os.Stderr)
	logger.GlobalLogger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	user, err := auth.ParseSession(cfg.API.Token)
	if err != nil {
		logger.Fatal("Invalid AUTH_TOKEN: %v", err)
	}
	tokens := auth.StaticToken(cfg.API.Token)
	mode, err := tracking.ParseMode(cfg.Tracking.Mode)
	if err != nil {
		logger.Fatal("Invalid TRACKING_MODE: %v", err)
	}

	var m *metrics.Collector
	if cfg.MetricsAddr != "" {
		m = metrics.NewCollector()
		srv := m.Serve(cfg.MetricsAddr)
		defer srv.Close()
	}

	// Backend access
	client := api.NewClient(cfg.API.BaseURL, tokens, cfg.API.Timeout)
	dialer := &realtime.WSDialer{URL: cfg.API.SocketURL, Tokens: tokens, Metrics: m}

	con := newConsole(os.Stdout, user)

	var stream *chat.Synchronizer
	stream = chat.NewSynchronizer(client, dialer, attachment.NewCoordinator(client, m), user, chat.Options{
		DedupWindow: cfg.Chat.DedupWindow,
		OnUpdate:    func() { con.showMessages(stream.Messages()) },
		OnTyping:    con.showTyping,
		Metrics:     m,
	})
	tracker := tracking.NewTracker(dialer, tracking.Bell{W: os.Stdout}, tracking.Options{
		TickInterval: cfg.Tracking.TickInterval,
		OnUpdate:     con.showPosition,
		Metrics:      m,
	})
	sess := session.New(resolver.New(client, m), client, stream, tracker, session.Options{
		Mode:      mode,
		Live:      cfg.Tracking.Live,
		OnContext: con.showContext,
	})
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Signed in as %s (%s)", user.ID, user.Role)
	if err := sess.SetUser(ctx, user); err != nil {
		logger.Error("Error opening trip channels: %v", err)
	}

	con.help()
	con.run(ctx, os.Stdin, stream, sess)
	logger.Info("Shutting down...")
}
