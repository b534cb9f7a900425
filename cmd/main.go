package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-publisher/internal"
	"video-publisher/internal/ai"
	"video-publisher/internal/api"
	"video-publisher/internal/logging"
	"video-publisher/internal/metrics"
	"video-publisher/internal/notify"
	"video-publisher/internal/posting"
	"video-publisher/internal/s3"
	"video-publisher/internal/scheduler"
	"video-publisher/internal/store"
	"video-publisher/internal/uploaders"
	"video-publisher/internal/video"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	once := flag.Bool("once", false, "Run a single schedule check and exit")
	flag.Parse()

	// Load .env file if it exists (try multiple paths)
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		_ = godotenv.Load(path)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.ErrorsLogPath)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutdown signal received")
		cancel()
	}()

	s3c, err := s3.New(cfg)
	if err != nil {
		log.Errorf("s3 client: %v", err)
		return
	}
	st, err := store.New(s3c, cfg, log)
	if err != nil {
		log.Errorf("store: %v", err)
		return
	}
	m := metrics.New()
	m.Register(collectors.NewBuildInfoCollector())

	var notifiers notify.Multi
	alert := func(string) error { return nil }
	if cfg.TelegramToken != "" && cfg.NotifyChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.NotifyChatID, log)
		if err != nil {
			log.Warnf("telegram notifications disabled: %v", err)
		} else {
			notifiers = append(notifiers, tg)
			alert = tg.Send
		}
	}
	if n := notify.NewNATS(cfg.NATSURL, log); n != nil {
		notifiers = append(notifiers, n)
		defer n.Close()
	}

	mgr := uploaders.NewDefaultManager(cfg, st, st, st, log)
	log.Infof("uploaders manager initialized with %d platforms", len(mgr.AvailablePlatforms()))

	poster := posting.New(st, mgr, log, posting.Options{
		Selection: cfg.VideoSelection,
		Titles:    ai.NewTitleGenerator(cfg.GeminiAPIKey, log),
		Prober:    video.NewProber(cfg.FFProbePath, log),
		Notifier:  notifiers,
		Metrics:   m,
	})
	monitor := scheduler.NewQueueMonitor(st, m, alert, cfg.MonitorInterval, log)
	svc := scheduler.New(cfg, st, poster, monitor, log)

	if *once {
		ran := svc.Tick(ctx)
		log.Infof("schedule check done, %d concepts ran", len(ran))
		return
	}

	go notify.NewMemWatcher(alert, cancel, log).Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(st, poster, cfg.ErrorsLogPath, m, log), m.Handler(), cfg.APIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("http: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
			cancel()
		}
	}()

	if err := svc.Run(ctx, cfg.ScheduleCron); err != nil {
		log.Errorf("scheduler stopped: %v", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
}
