package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/tomyedwab/zpzhost/config"
	"github.com/tomyedwab/zpzhost/journal"
	"github.com/tomyedwab/zpzhost/session"
)

func main() {
	flags := config.BindFlags(flag.CommandLine)
	flag.Parse()

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if flags.ConfigGiven() {
		cfg, err = config.Load(flags.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(flags.ConfigPath)
	}
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	flags.Apply(cfg)

	if flags.History > 0 {
		if err := printHistory(cfg, flags.History); err != nil {
			logger.Error("Failed to read journal", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting zpzhost", "guest", cfg.Guest.Path, "headless", cfg.Headless.Enabled, "renderer", cfg.Display.Renderer)
	s, err := session.New(ctx, cfg, session.Options{Logger: logger})
	if err != nil {
		logger.Error("Failed to start session", "error", err)
		os.Exit(1)
	}

	if cfg.Headless.Enabled {
		err = s.RunHeadless(ctx)
	} else {
		err = s.RunWindowed(ctx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if closeErr := s.Close(context.Background()); closeErr != nil {
		logger.Error("Failed to close session", "error", closeErr)
	}
	if err != nil {
		logger.Error("Session failed", "error", err)
		os.Exit(1)
	}
}

func printHistory(cfg *config.Config, limit int) error {
	if cfg.Journal.Path == "" {
		return errors.New("no journal configured; set journal.path or -journal")
	}
	j, err := journal.Open(cfg.Resolve(cfg.Journal.Path))
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.Recent(limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tEVENT\tDETAIL")
	for _, e := range events {
		id := e.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time().Local().Format(time.DateTime), id, e.EventType, e.Detail)
	}
	return w.Flush()
}
