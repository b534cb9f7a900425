package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"video-publisher/internal"
	"video-publisher/internal/ai"
	"video-publisher/internal/logging"
	"video-publisher/internal/metrics"
	"video-publisher/internal/model"
	"video-publisher/internal/notify"
	"video-publisher/internal/posting"
	"video-publisher/internal/s3"
	"video-publisher/internal/store"
	"video-publisher/internal/uploaders"
	"video-publisher/internal/video"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var (
		conceptID = flag.String("concept", os.Getenv("CONCEPT_ID"), "Concept id (defaults to $CONCEPT_ID)")
		videoID   = flag.String("video", os.Getenv("VIDEO_ID"), "Video id to post; empty picks one from the queue")
		platforms = flag.String("platforms", "", "Comma separated platforms, e.g. YouTube,Instagram; empty uses the concept's")
	)
	flag.Parse()

	if *conceptID == "" {
		fmt.Println("Usage: post -concept <id> [-video <id>] [-platforms YouTube,TikTok,Instagram]")
		os.Exit(1)
	}

	var selected []model.Platform
	for _, s := range strings.Split(*platforms, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, err := model.ParsePlatform(s)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		selected = append(selected, p)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.ErrorsLogPath)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log, posting.PostParams{ConceptID: *conceptID, VideoID: *videoID, Platforms: selected})
	cancel()
	log.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg internal.Config, log *logging.Logger, params posting.PostParams) int {
	s3Client, err := s3.New(cfg)
	if err != nil {
		log.Errorf("Error creating S3 client: %v", err)
		return 1
	}
	st, err := store.New(s3Client, cfg, log)
	if err != nil {
		log.Errorf("Error creating store: %v", err)
		return 1
	}

	var notifiers notify.Multi
	if cfg.TelegramToken != "" && cfg.NotifyChatID != 0 {
		if tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.NotifyChatID, log); err == nil {
			notifiers = append(notifiers, tg)
		} else {
			log.Warnf("telegram notifications disabled: %v", err)
		}
	}
	if n := notify.NewNATS(cfg.NATSURL, log); n != nil {
		notifiers = append(notifiers, n)
		defer n.Close()
	}

	poster := posting.New(st, uploaders.NewDefaultManager(cfg, st, st, st, log), log, posting.Options{
		Selection: cfg.VideoSelection,
		Titles:    ai.NewTitleGenerator(cfg.GeminiAPIKey, log),
		Prober:    video.NewProber(cfg.FFProbePath, log),
		Notifier:  notifiers,
		Metrics:   metrics.New(),
	})

	out, err := poster.Post(ctx, params)
	if err != nil {
		log.Errorf("post %s: %v", params.ConceptID, err)
		return 1
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return 0
}
